package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/delacruz/bakeshop-api/internal/database"
	"github.com/delacruz/bakeshop-api/internal/models"
)

// PaymentProcessor is the port a real gateway integration would fill.
type PaymentProcessor interface {
	Charge(ctx context.Context, orderID int64, method string, amount decimal.Decimal) error
}

// SimulatedProcessor accepts every charge. The storefront has no real
// gateway; the double-payment guard in ProcessPayment is the only
// thing standing between a caller and a "successful" payment.
type SimulatedProcessor struct{}

func (SimulatedProcessor) Charge(ctx context.Context, orderID int64, method string, amount decimal.Decimal) error {
	return nil
}

// ProcessPayment marks the order paid at most once. The order row is
// locked for the duration of the transaction, so of two concurrent
// attempts exactly one can pass the unpaid check. A successful payment
// always moves the order to processing.
func ProcessPayment(ctx context.Context, db *sql.DB, id int64, method string, proc PaymentProcessor) (*models.Order, error) {
	if !models.ValidPaymentMethod(method) {
		return nil, invalidf("payment_method", "must be one of: gcash, card, paypal")
	}

	var order *models.Order

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+orderColumns+`
			 FROM orders
			 WHERE id = $1
			 FOR UPDATE`,
			id)

		current, err := scanOrder(row)
		if err != nil {
			if err == sql.ErrNoRows {
				return database.ErrOrderNotFound
			}
			return fmt.Errorf("lock order: %w", err)
		}

		if current.PaymentStatus == models.PaymentStatusPaid {
			return database.ErrOrderAlreadyPaid
		}

		if err := proc.Charge(ctx, current.ID, method, current.Total); err != nil {
			return fmt.Errorf("charge order %d: %w", current.ID, err)
		}

		row = tx.QueryRowContext(ctx,
			`UPDATE orders
			 SET payment_status = $1, payment_method = $2, status = $3, updated_at = NOW()
			 WHERE id = $4
			 RETURNING `+orderColumns,
			models.PaymentStatusPaid, method, models.OrderStatusProcessing, id)

		updated, err := scanOrder(row)
		if err != nil {
			return fmt.Errorf("mark order paid: %w", err)
		}

		order = updated
		return nil
	})

	if err != nil {
		return nil, err
	}

	return order, nil
}
