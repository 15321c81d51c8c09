package deadletter

import (
	"context"
	"errors"
	"log"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/feed/internal/domain"
)

// Distributor is the slice of the fan-out writer the manager re-invokes.
type Distributor interface {
	Distribute(ctx context.Context, event domain.Event) (int, error)
}

// Manager drains due dead-letter entries and re-attempts distribution.
// Successful entries are removed; failing entries back off exponentially and
// are quarantined after maxRetries attempts.
type Manager struct {
	pool       *pgxpool.Pool
	dist       Distributor
	maxRetries int
	baseDelay  time.Duration
	logger     *log.Logger
}

// NewManager constructs a Manager.
func NewManager(pool *pgxpool.Pool, dist Distributor, maxRetries int, baseDelay time.Duration) *Manager {
	return &Manager{
		pool:       pool,
		dist:       dist,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		logger:     log.New(log.Writer(), "[dlq] ", log.LstdFlags),
	}
}

// RunOnce processes at most batchSize due entries and reports how many it
// handled. Entries are claimed with SKIP LOCKED so concurrent managers never
// double-process.
func (m *Manager) RunOnce(ctx context.Context, batchSize int) (int, error) {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx,
		`SELECT dlq_id, event_type, payload, attempts
         FROM fanout_dlq
         WHERE quarantined_at IS NULL AND next_retry_at <= NOW()
         ORDER BY dlq_id
         LIMIT $1
         FOR UPDATE SKIP LOCKED`,
		batchSize,
	)
	if err != nil {
		return 0, err
	}

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.EventType, &e.Payload, &e.Attempts); err != nil {
			rows.Close()
			return 0, err
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	processed := 0
	for _, entry := range entries {
		if err := m.retry(ctx, tx, entry); err != nil {
			return processed, err
		}
		processed++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return processed, nil
}

func (m *Manager) retry(ctx context.Context, tx pgx.Tx, entry Entry) error {
	event, decodeErr := domain.DecodeEvent(entry.EventType, entry.Payload)
	if decodeErr == nil {
		_, distErr := m.dist.Distribute(ctx, event)
		if distErr == nil {
			_, err := tx.Exec(ctx, `DELETE FROM fanout_dlq WHERE dlq_id = $1`, entry.ID)
			if err == nil {
				recordRetried(entry.EventType, "resolved")
				m.logger.Printf("redistributed %s (dlq_id=%d, attempt=%d)", entry.EventType, entry.ID, entry.Attempts+1)
			}
			return err
		}
		if errors.Is(distErr, domain.ErrInvalidEvent) {
			// Invalid events never become valid; quarantine immediately.
			return m.quarantine(ctx, tx, entry, distErr.Error())
		}
		return m.reschedule(ctx, tx, entry, distErr.Error())
	}
	// Undecodable entries are quarantined rather than retried forever.
	return m.quarantine(ctx, tx, entry, decodeErr.Error())
}

func (m *Manager) reschedule(ctx context.Context, tx pgx.Tx, entry Entry, reason string) error {
	attempts := entry.Attempts + 1
	if attempts >= m.maxRetries {
		return m.quarantine(ctx, tx, entry, reason)
	}

	delay := time.Duration(float64(m.baseDelay) * math.Pow(2, float64(attempts)))
	_, err := tx.Exec(ctx,
		`UPDATE fanout_dlq SET attempts = $2, reason = $3, next_retry_at = NOW() + $4 WHERE dlq_id = $1`,
		entry.ID, attempts, reason, delay,
	)
	if err == nil {
		recordRetried(entry.EventType, "rescheduled")
		m.logger.Printf("rescheduled %s (dlq_id=%d, attempt=%d, delay=%s)", entry.EventType, entry.ID, attempts, delay)
	}
	return err
}

func (m *Manager) quarantine(ctx context.Context, tx pgx.Tx, entry Entry, reason string) error {
	_, err := tx.Exec(ctx,
		`UPDATE fanout_dlq SET attempts = attempts + 1, reason = $2, quarantined_at = NOW() WHERE dlq_id = $1`,
		entry.ID, reason,
	)
	if err == nil {
		recordQuarantined(entry.EventType)
		m.logger.Printf("quarantined %s (dlq_id=%d): %s", entry.EventType, entry.ID, reason)
	}
	return err
}
