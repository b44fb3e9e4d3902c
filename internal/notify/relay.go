package notify

import (
	"context"
	"database/sql"
	"time"

	"github.com/delacruz/bakeshop-api/internal/models"
	"github.com/delacruz/bakeshop-api/internal/store"
	"github.com/delacruz/bakeshop-api/pkg/logger"
)

const relayBatchSize = 100

// Sink is where the relay hands each outbox row. Satisfied by
// *Publisher in production.
type Sink interface {
	Publish(ctx context.Context, n models.Notification) error
}

// Relay polls the outbox and pushes undelivered rows to the sink.
// Rows that fail to publish stay pending and are retried on the next
// tick.
type Relay struct {
	db       *sql.DB
	sink     Sink
	log      *logger.Logger
	interval time.Duration
}

func NewRelay(db *sql.DB, sink Sink, log *logger.Logger, interval time.Duration) *Relay {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Relay{
		db:       db,
		sink:     sink,
		log:      log.WithComponent("notify_relay"),
		interval: interval,
	}
}

// Run blocks until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("notification relay stopped")
			return
		case <-ticker.C:
			r.drain(ctx)
		}
	}
}

func (r *Relay) drain(ctx context.Context) {
	pending, err := store.PendingNotifications(ctx, r.db, relayBatchSize)
	if err != nil {
		r.log.Error("fetch pending notifications", "error", err)
		return
	}

	for _, n := range pending {
		if err := r.sink.Publish(ctx, n); err != nil {
			r.log.Warn("publish notification", "notification_id", n.ID, "error", err)
			continue
		}

		if err := store.MarkNotificationDispatched(ctx, r.db, n.ID); err != nil {
			// The next tick republishes; consumers must tolerate the
			// occasional duplicate.
			r.log.Error("mark notification dispatched", "notification_id", n.ID, "error", err)
		}
	}
}
