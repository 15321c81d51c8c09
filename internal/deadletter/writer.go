// Package deadletter parks failed fan-outs for retry. A fan-out failure
// never propagates to the service that produced the event; the event is
// stored here and retried with backoff until it succeeds or is quarantined.
package deadletter

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is one parked event awaiting redistribution.
type Entry struct {
	ID        int64
	EventType string
	Payload   json.RawMessage
	Topic     string
	Partition int
	Offset    int64
	Reason    string
	Attempts  int
}

// Writer persists failed fan-out events.
type Writer struct {
	pool *pgxpool.Pool
}

// NewWriter initialises a writer backed by the provided connection pool.
func NewWriter(pool *pgxpool.Pool) *Writer {
	return &Writer{pool: pool}
}

// Park records a failed event alongside the failure reason. The entry
// becomes due immediately; the manager applies backoff on later failures.
func (w *Writer) Park(ctx context.Context, entry Entry) error {
	_, err := w.pool.Exec(ctx,
		`INSERT INTO fanout_dlq (event_type, payload, topic, partition, record_offset, reason, next_retry_at)
         VALUES ($1,$2,$3,$4,$5,$6, NOW())`,
		entry.EventType, entry.Payload, entry.Topic, entry.Partition, entry.Offset, entry.Reason,
	)
	return err
}
