package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/delacruz/bakeshop-api/internal/database"
	"github.com/delacruz/bakeshop-api/internal/models"
	"github.com/delacruz/bakeshop-api/internal/schedule"
)

type PlaceOrderRequest struct {
	UserID        *int64
	Items         []OrderItemRequest
	Fulfillment   string
	PickupTime    *time.Time
	PaymentMethod string
}

type OrderItemRequest struct {
	ProductID      int64
	Quantity       int
	Customizations json.RawMessage
}

const orderColumns = `id, user_id, subtotal, discount, shipping_fee, total,
	status, payment_method, payment_status, fulfillment, pickup_time,
	created_at, updated_at`

func scanOrder(row interface{ Scan(...interface{}) error }) (*models.Order, error) {
	order := &models.Order{}
	err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.Subtotal,
		&order.Discount,
		&order.ShippingFee,
		&order.Total,
		&order.Status,
		&order.PaymentMethod,
		&order.PaymentStatus,
		&order.Fulfillment,
		&order.PickupTime,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return order, nil
}

func validatePlaceOrder(now time.Time, window schedule.Window, req PlaceOrderRequest) error {
	if len(req.Items) == 0 {
		return invalidf("items", "at least one item is required")
	}
	for i, item := range req.Items {
		if item.ProductID <= 0 {
			return invalidf(fmt.Sprintf("items.%d.product_id", i), "product id is required")
		}
		if item.Quantity < 1 {
			return invalidf(fmt.Sprintf("items.%d.quantity", i), "quantity must be a positive integer")
		}
	}
	if req.Fulfillment != models.FulfillmentPickup && req.Fulfillment != models.FulfillmentDelivery {
		return invalidf("fulfillment", "must be one of: pickup, delivery")
	}
	if req.PaymentMethod == "" {
		return invalidf("payment_method", "payment method is required")
	}
	if req.PickupTime != nil && !req.PickupTime.After(now) {
		return invalidf("pickup_time", "pickup time must be in the future")
	}

	// Delivery orders and pickup orders without a stated time skip the
	// business-hours check entirely.
	if req.Fulfillment == models.FulfillmentPickup && req.PickupTime != nil {
		if err := schedule.ValidatePickup(*req.PickupTime, window); err != nil {
			return &ValidationError{Field: "pickup_time", Message: err.Error()}
		}
	}

	return nil
}

// PlaceOrder prices the requested items against the catalog, then
// persists the order and its line snapshots in one transaction. Item
// rows copy the product name and base price at this instant; later
// catalog edits never touch them.
func PlaceOrder(ctx context.Context, db *sql.DB, now time.Time, window schedule.Window, req PlaceOrderRequest) (*models.Order, error) {
	if err := validatePlaceOrder(now, window, req); err != nil {
		return nil, err
	}

	var order *models.Order

	err := database.WithRetry(ctx, db, database.TxOptions{
		IsolationLevel: sql.LevelSerializable,
		MaxRetries:     3,
	}, func(tx *sql.Tx) error {
		if req.UserID != nil {
			var exists bool
			err := tx.QueryRowContext(ctx,
				"SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)",
				*req.UserID).Scan(&exists)
			if err != nil {
				return fmt.Errorf("check user exists: %w", err)
			}
			if !exists {
				return database.ErrUserNotFound
			}
		}

		type pricedItem struct {
			name  string
			price decimal.Decimal
		}

		subtotal := decimal.Zero
		priced := make(map[int64]pricedItem)

		for _, item := range req.Items {
			var name string
			var price decimal.Decimal
			var available bool

			err := tx.QueryRowContext(ctx,
				`SELECT name, base_price, is_available
				 FROM products
				 WHERE id = $1`,
				item.ProductID).Scan(&name, &price, &available)
			if err != nil {
				if err == sql.ErrNoRows {
					return database.ErrProductNotFound
				}
				return fmt.Errorf("resolve product %d: %w", item.ProductID, err)
			}

			if !available {
				return invalidf("items", "product %q is not available", name)
			}

			priced[item.ProductID] = pricedItem{name: name, price: price}
			subtotal = subtotal.Add(price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}

		discount := decimal.Zero
		shippingFee := decimal.Zero
		total := subtotal.Sub(discount).Add(shippingFee)

		row := tx.QueryRowContext(ctx,
			`INSERT INTO orders (user_id, subtotal, discount, shipping_fee, total,
			                     status, payment_method, payment_status, fulfillment,
			                     pickup_time, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
			 RETURNING `+orderColumns,
			req.UserID, subtotal, discount, shippingFee, total,
			models.OrderStatusPending, req.PaymentMethod, models.PaymentStatusUnpaid,
			req.Fulfillment, req.PickupTime)

		created, err := scanOrder(row)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		for _, item := range req.Items {
			p := priced[item.ProductID]
			lineTotal := p.price.Mul(decimal.NewFromInt(int64(item.Quantity)))

			var customizations interface{}
			if len(item.Customizations) > 0 {
				customizations = []byte(item.Customizations)
			}

			orderItem := models.OrderItem{
				OrderID:        created.ID,
				ProductID:      item.ProductID,
				ProductName:    p.name,
				UnitPrice:      p.price,
				Quantity:       item.Quantity,
				TotalPrice:     lineTotal,
				Customizations: item.Customizations,
			}

			err := tx.QueryRowContext(ctx,
				`INSERT INTO order_items (order_id, product_id, product_name, unit_price,
				                          quantity, total_price, customizations, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
				 RETURNING id, created_at`,
				created.ID, item.ProductID, p.name, p.price,
				item.Quantity, lineTotal, customizations).Scan(&orderItem.ID, &orderItem.CreatedAt)
			if err != nil {
				return fmt.Errorf("create order item: %w", err)
			}

			created.Items = append(created.Items, orderItem)
		}

		order = created
		return nil
	})

	if err != nil {
		return nil, err
	}

	return order, nil
}

// GetOrder returns the order with its item snapshots attached.
func GetOrder(ctx context.Context, db *sql.DB, id int64) (*models.Order, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)

	order, err := scanOrder(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := getOrderItems(ctx, db, id)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

func getOrderItems(ctx context.Context, db *sql.DB, orderID int64) ([]models.OrderItem, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, order_id, product_id, product_name, unit_price,
		        quantity, total_price, customizations, created_at
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY id`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		var customizations []byte
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.ProductName,
			&item.UnitPrice,
			&item.Quantity,
			&item.TotalPrice,
			&customizations,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		item.Customizations = customizations
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

type OrderStatus struct {
	OrderID       int64  `json:"order_id"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
}

func GetOrderStatus(ctx context.Context, db *sql.DB, id int64) (*OrderStatus, error) {
	status := &OrderStatus{OrderID: id}

	err := db.QueryRowContext(ctx,
		`SELECT status, payment_status FROM orders WHERE id = $1`,
		id).Scan(&status.Status, &status.PaymentStatus)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order status: %w", err)
	}

	return status, nil
}

// UpdateOrderStatus sets the order's lifecycle status. Any recognized
// status may replace any other; only membership in the closed set is
// enforced. When the order belongs to a user, a feed notification is
// written in the same transaction and delivered to the broker later.
func UpdateOrderStatus(ctx context.Context, db *sql.DB, id int64, status string) (*models.Order, error) {
	if !models.ValidOrderStatus(status) {
		return nil, invalidf("status", "must be one of: pending, processing, ready for pickup, completed, cancelled")
	}

	var order *models.Order

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`UPDATE orders
			 SET status = $1, updated_at = NOW()
			 WHERE id = $2
			 RETURNING `+orderColumns,
			status, id)

		updated, err := scanOrder(row)
		if err != nil {
			if err == sql.ErrNoRows {
				return database.ErrOrderNotFound
			}
			return fmt.Errorf("update order status: %w", err)
		}

		if updated.UserID != nil {
			if err := enqueueNotification(ctx, tx, *updated.UserID, updated.ID, status); err != nil {
				return err
			}
		}

		order = updated
		return nil
	})

	if err != nil {
		return nil, err
	}

	return order, nil
}

// ListScheduledPickups returns orders whose pickup time is strictly in
// the future, soonest first. Past pickups fall out of the list without
// being deleted.
func ListScheduledPickups(ctx context.Context, db *sql.DB, now time.Time) ([]models.Order, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE pickup_time IS NOT NULL
		   AND pickup_time > $1
		 ORDER BY pickup_time ASC`,
		now)
	if err != nil {
		return nil, fmt.Errorf("list scheduled pickups: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

// ListOrdersForUser returns the user's orders newest first, items
// attached.
func ListOrdersForUser(ctx context.Context, db *sql.DB, userID int64) ([]models.Order, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list user orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	for i := range orders {
		items, err := getOrderItems(ctx, db, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}

	return orders, nil
}
