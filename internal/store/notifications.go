package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/delacruz/bakeshop-api/internal/database"
	"github.com/delacruz/bakeshop-api/internal/models"
)

// enqueueNotification appends a feed entry inside the caller's
// transaction. The row doubles as the delivery outbox: the relay picks
// up anything with a null dispatched_at after commit.
func enqueueNotification(ctx context.Context, tx *sql.Tx, userID, orderID int64, status string) error {
	message := fmt.Sprintf("Your order #%d status changed to %s.", orderID, status)

	_, err := tx.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, order_id, status, message, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())`,
		uuid.New().String(), userID, orderID, status, message)
	if err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}

	return nil
}

// ListNotificationsForUser returns the user's feed, newest first.
func ListNotificationsForUser(ctx context.Context, db *sql.DB, userID int64) ([]models.Notification, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, user_id, order_id, status, message, read_at, dispatched_at, created_at
		 FROM notifications
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		var n models.Notification
		err := rows.Scan(
			&n.ID,
			&n.UserID,
			&n.OrderID,
			&n.Status,
			&n.Message,
			&n.ReadAt,
			&n.DispatchedAt,
			&n.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return notifications, nil
}

// MarkNotificationRead stamps read_at; re-reading an already-read
// notification keeps the original timestamp.
func MarkNotificationRead(ctx context.Context, db *sql.DB, id string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE notifications
		 SET read_at = COALESCE(read_at, NOW())
		 WHERE id = $1`,
		id)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrNotificationNotFound
	}

	return nil
}

// PendingNotifications returns undelivered outbox rows, oldest first.
func PendingNotifications(ctx context.Context, db *sql.DB, limit int) ([]models.Notification, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, user_id, order_id, status, message, read_at, dispatched_at, created_at
		 FROM notifications
		 WHERE dispatched_at IS NULL
		 ORDER BY created_at ASC
		 LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("list pending notifications: %w", err)
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		var n models.Notification
		err := rows.Scan(
			&n.ID,
			&n.UserID,
			&n.OrderID,
			&n.Status,
			&n.Message,
			&n.ReadAt,
			&n.DispatchedAt,
			&n.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return notifications, nil
}

// MarkNotificationDispatched records successful broker delivery.
func MarkNotificationDispatched(ctx context.Context, db *sql.DB, id string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE notifications SET dispatched_at = NOW() WHERE id = $1`,
		id)
	if err != nil {
		return fmt.Errorf("mark notification dispatched: %w", err)
	}
	return nil
}
