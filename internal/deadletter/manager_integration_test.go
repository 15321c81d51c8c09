//go:build integration

package deadletter

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/feed/internal/domain"
)

type scriptedDistributor struct {
	errs  map[string]error
	calls []string
}

func (d *scriptedDistributor) Distribute(_ context.Context, event domain.Event) (int, error) {
	switch e := event.(type) {
	case domain.ReviewCreated:
		d.calls = append(d.calls, e.ReviewID)
		return 2, d.errs[e.ReviewID]
	default:
		return 0, errors.New("unexpected event")
	}
}

func TestManagerResolvesDueEntries(t *testing.T) {
	ctx := context.Background()
	pool := setupDLQDatabase(t, ctx)

	writer := NewWriter(pool)
	require.NoError(t, writer.Park(ctx, parkedReview(t, "rev-1", "postgres down")))

	dist := &scriptedDistributor{}
	manager := NewManager(pool, dist, 5, time.Second)

	processed, err := manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, processed)
	require.Equal(t, []string{"rev-1"}, dist.calls)
	require.Zero(t, dlqRowCount(t, ctx, pool, ""))
}

func TestManagerReschedulesWithBackoff(t *testing.T) {
	ctx := context.Background()
	pool := setupDLQDatabase(t, ctx)

	writer := NewWriter(pool)
	require.NoError(t, writer.Park(ctx, parkedReview(t, "rev-1", "postgres down")))

	dist := &scriptedDistributor{errs: map[string]error{"rev-1": errors.New("still down")}}
	manager := NewManager(pool, dist, 5, time.Minute)

	processed, err := manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, processed)

	var attempts int
	var nextRetry time.Time
	var reason string
	err = pool.QueryRow(ctx,
		`SELECT attempts, next_retry_at, reason FROM fanout_dlq WHERE quarantined_at IS NULL`,
	).Scan(&attempts, &nextRetry, &reason)
	require.NoError(t, err)
	require.Equal(t, 1, attempts)
	require.Equal(t, "still down", reason)
	require.True(t, nextRetry.After(time.Now().Add(time.Minute)), "backoff pushes the entry out of the due window")

	// The entry is no longer due, so the next sweep is empty.
	processed, err = manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Zero(t, processed)
}

func TestManagerQuarantinesAfterMaxRetries(t *testing.T) {
	ctx := context.Background()
	pool := setupDLQDatabase(t, ctx)

	entry := parkedReview(t, "rev-1", "postgres down")
	writer := NewWriter(pool)
	require.NoError(t, writer.Park(ctx, entry))
	_, err := pool.Exec(ctx, `UPDATE fanout_dlq SET attempts = 4`)
	require.NoError(t, err)

	dist := &scriptedDistributor{errs: map[string]error{"rev-1": errors.New("still down")}}
	manager := NewManager(pool, dist, 5, time.Second)

	processed, err := manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, processed)
	require.Equal(t, 1, dlqRowCount(t, ctx, pool, "WHERE quarantined_at IS NOT NULL"))
}

func TestManagerQuarantinesInvalidEvents(t *testing.T) {
	ctx := context.Background()
	pool := setupDLQDatabase(t, ctx)

	writer := NewWriter(pool)
	require.NoError(t, writer.Park(ctx, Entry{
		EventType: "visit.created",
		Payload:   json.RawMessage(`{}`),
		Topic:     "review_events",
		Reason:    "postgres down",
	}))

	manager := NewManager(pool, &scriptedDistributor{}, 5, time.Second)

	// Unknown event types never decode; quarantined on the first sweep.
	processed, err := manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, processed)
	require.Equal(t, 1, dlqRowCount(t, ctx, pool, "WHERE quarantined_at IS NOT NULL"))
}

func parkedReview(t *testing.T, reviewID, reason string) Entry {
	t.Helper()
	payload, err := json.Marshal(domain.ReviewCreated{
		ReviewID: reviewID,
		Actor:    domain.UserSnapshot{ID: "alice", Username: "alice", DisplayName: "Alice"},
		Cafe:     domain.CafeSnapshot{ID: "cafe-1", Name: "Coffee Lab"},
		Rating:   5,
	})
	require.NoError(t, err)
	return Entry{
		EventType: domain.EventTypeReviewCreated,
		Payload:   payload,
		Topic:     "review_events",
		Offset:    12,
		Reason:    reason,
	}
}

func dlqRowCount(t *testing.T, ctx context.Context, pool *pgxpool.Pool, where string) int {
	t.Helper()
	var count int
	err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM fanout_dlq `+where).Scan(&count)
	require.NoError(t, err)
	return count
}

func setupDLQDatabase(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("feed"),
		postgrescontainer.WithUsername("platform"),
		postgrescontainer.WithPassword("platform"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	for _, rel := range []string{
		"../../db/postgres/migrations/0001_activities.up.sql",
		"../../db/postgres/migrations/0002_fanout_dlq.up.sql",
	} {
		contents, readErr := os.ReadFile(resolvePath(t, rel))
		require.NoError(t, readErr)
		_, execErr := pool.Exec(ctx, string(contents))
		require.NoError(t, execErr)
	}

	return pool
}

func resolvePath(t *testing.T, rel string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), rel)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
