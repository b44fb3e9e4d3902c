package integration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/delacruz/bakeshop-api/internal/database"
	"github.com/delacruz/bakeshop-api/internal/models"
	"github.com/delacruz/bakeshop-api/internal/store"
)

func TestProcessPayment(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	user := createTestUser(t, db, "payer@example.com", "Payer")
	product := createTestProduct(t, db, "Brazo de Mercedes", 380)

	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	order, err := store.PlaceOrder(ctx, db, now, testWindow(), store.PlaceOrderRequest{
		UserID:        &user.ID,
		Items:         []store.OrderItemRequest{{ProductID: product.ID, Quantity: 1}},
		Fulfillment:   models.FulfillmentDelivery,
		PaymentMethod: "cod",
	})
	if err != nil {
		t.Fatalf("Place order: %v", err)
	}

	paid, err := store.ProcessPayment(ctx, db, order.ID, "gcash", store.SimulatedProcessor{})
	if err != nil {
		t.Fatalf("Process payment: %v", err)
	}

	if paid.PaymentStatus != models.PaymentStatusPaid {
		t.Errorf("Expected payment status paid, got %s", paid.PaymentStatus)
	}
	if paid.PaymentMethod != "gcash" {
		t.Errorf("Expected payment method gcash, got %s", paid.PaymentMethod)
	}
	if paid.Status != models.OrderStatusProcessing {
		t.Errorf("Payment success should advance status to processing, got %s", paid.Status)
	}
}

func TestProcessPaymentTwice(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	user := createTestUser(t, db, "double@example.com", "Double")
	product := createTestProduct(t, db, "Leche Flan", 120)

	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	order, err := store.PlaceOrder(ctx, db, now, testWindow(), store.PlaceOrderRequest{
		UserID:        &user.ID,
		Items:         []store.OrderItemRequest{{ProductID: product.ID, Quantity: 1}},
		Fulfillment:   models.FulfillmentDelivery,
		PaymentMethod: "cod",
	})
	if err != nil {
		t.Fatalf("Place order: %v", err)
	}

	first, err := store.ProcessPayment(ctx, db, order.ID, "card", store.SimulatedProcessor{})
	if err != nil {
		t.Fatalf("First payment: %v", err)
	}

	_, err = store.ProcessPayment(ctx, db, order.ID, "paypal", store.SimulatedProcessor{})
	if !errors.Is(err, database.ErrOrderAlreadyPaid) {
		t.Errorf("Expected already-paid conflict, got: %v", err)
	}

	after, err := store.GetOrder(ctx, db, order.ID)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if after.PaymentMethod != first.PaymentMethod {
		t.Errorf("Rejected payment must not change method: got %s", after.PaymentMethod)
	}
	if after.Status != first.Status || after.PaymentStatus != first.PaymentStatus {
		t.Error("Rejected payment must leave the order unchanged")
	}
}

func TestProcessPaymentInvalidMethod(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	user := createTestUser(t, db, "badmethod@example.com", "BadMethod")
	product := createTestProduct(t, db, "Egg Pie", 95)

	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	order, err := store.PlaceOrder(ctx, db, now, testWindow(), store.PlaceOrderRequest{
		UserID:        &user.ID,
		Items:         []store.OrderItemRequest{{ProductID: product.ID, Quantity: 1}},
		Fulfillment:   models.FulfillmentDelivery,
		PaymentMethod: "cod",
	})
	if err != nil {
		t.Fatalf("Place order: %v", err)
	}

	_, err = store.ProcessPayment(ctx, db, order.ID, "barter", store.SimulatedProcessor{})

	var validationErr *store.ValidationError
	if !errors.As(err, &validationErr) {
		t.Errorf("Expected validation error, got: %v", err)
	}

	after, err := store.GetOrder(ctx, db, order.ID)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if after.PaymentStatus != models.PaymentStatusUnpaid {
		t.Errorf("Order should stay unpaid, got %s", after.PaymentStatus)
	}
}

func TestProcessPaymentUnknownOrder(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := store.ProcessPayment(context.Background(), db, 999999, "gcash", store.SimulatedProcessor{})
	if !errors.Is(err, database.ErrOrderNotFound) {
		t.Errorf("Expected order not found, got: %v", err)
	}
}

func TestConcurrentPayments(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	user := createTestUser(t, db, "race@example.com", "Race")
	product := createTestProduct(t, db, "Silvanas Box", 250)

	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	order, err := store.PlaceOrder(ctx, db, now, testWindow(), store.PlaceOrderRequest{
		UserID:        &user.ID,
		Items:         []store.OrderItemRequest{{ProductID: product.ID, Quantity: 1}},
		Fulfillment:   models.FulfillmentDelivery,
		PaymentMethod: "cod",
	})
	if err != nil {
		t.Fatalf("Place order: %v", err)
	}

	concurrency := 8
	var wg sync.WaitGroup
	results := make(chan error, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.ProcessPayment(ctx, db, order.ID, "gcash", store.SimulatedProcessor{})
			results <- err
		}()
	}

	wg.Wait()
	close(results)

	successCount := 0
	conflictCount := 0
	for err := range results {
		switch {
		case err == nil:
			successCount++
		case errors.Is(err, database.ErrOrderAlreadyPaid):
			conflictCount++
		default:
			t.Errorf("Unexpected error: %v", err)
		}
	}

	if successCount != 1 {
		t.Errorf("Exactly one payment should succeed, got %d", successCount)
	}
	if conflictCount != concurrency-1 {
		t.Errorf("Expected %d conflicts, got %d", concurrency-1, conflictCount)
	}

	after, err := store.GetOrder(ctx, db, order.ID)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if after.PaymentStatus != models.PaymentStatusPaid {
		t.Errorf("Expected final payment status paid, got %s", after.PaymentStatus)
	}
}
