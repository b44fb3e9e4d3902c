package integration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/delacruz/bakeshop-api/internal/models"
	"github.com/delacruz/bakeshop-api/internal/notify"
	"github.com/delacruz/bakeshop-api/internal/store"
	"github.com/delacruz/bakeshop-api/pkg/logger"
)

type captureSink struct {
	mu       sync.Mutex
	failures int
	got      []models.Notification
}

func (s *captureSink) Publish(ctx context.Context, n models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("broker unavailable")
	}
	s.got = append(s.got, n)
	return nil
}

func (s *captureSink) delivered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

func TestRelayDrainsOutbox(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	user := createTestUser(t, db, "relay@example.com", "Relay")
	product := createTestProduct(t, db, "Ube Pandesal", 22)

	order, err := store.PlaceOrder(ctx, db, nowForTests(), testWindow(), store.PlaceOrderRequest{
		UserID:        &user.ID,
		Items:         []store.OrderItemRequest{{ProductID: product.ID, Quantity: 1}},
		Fulfillment:   models.FulfillmentDelivery,
		PaymentMethod: "gcash",
	})
	if err != nil {
		t.Fatalf("Place order: %v", err)
	}

	if _, err := store.UpdateOrderStatus(ctx, db, order.ID, models.OrderStatusReadyForPickup); err != nil {
		t.Fatalf("Update order status: %v", err)
	}

	pending, err := store.PendingNotifications(ctx, db, 10)
	if err != nil {
		t.Fatalf("List pending notifications: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("Expected 1 pending outbox row, got %d", len(pending))
	}

	// First publish attempt fails; the row must stay pending and be
	// retried on a later tick.
	sink := &captureSink{failures: 1}
	relay := notify.NewRelay(db, sink, logger.New(logger.DefaultConfig()), 10*time.Millisecond)

	relayCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		relay.Run(relayCtx)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for sink.delivered() < 1 {
		select {
		case <-deadline:
			t.Fatal("Relay never delivered the notification")
		case <-time.After(20 * time.Millisecond):
		}
	}

	cancel()
	<-done

	pending, err = store.PendingNotifications(ctx, db, 10)
	if err != nil {
		t.Fatalf("List pending notifications: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("Outbox should be drained, %d rows still pending", len(pending))
	}

	if sink.got[0].OrderID != order.ID {
		t.Errorf("Delivered notification references order %d, want %d", sink.got[0].OrderID, order.ID)
	}

	// The feed entry survives dispatch.
	feed, err := store.ListNotificationsForUser(ctx, db, user.ID)
	if err != nil {
		t.Fatalf("List notifications: %v", err)
	}
	if len(feed) != 1 {
		t.Errorf("Expected the feed entry to remain, got %d", len(feed))
	}
}
