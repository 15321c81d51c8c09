// Package postgres provides pgx-backed persistence for the feed service.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/feed/internal/domain"
)

// Repository persists activity records. It is the only writer of the
// activities table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const activityColumns = `activity_id, recipient_id, actor_id, activity_type, target_type, target_id, payload, created_at, is_deleted`

// InsertBatch writes all records in a single transaction so concurrent
// fan-outs never expose a partial batch. Conflicts on the
// (recipient_id, target_type, target_id) uniqueness constraint are skipped:
// a redelivered creation event inserts nothing and reports zero new rows.
func (r *Repository) InsertBatch(ctx context.Context, records []domain.ActivityRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	const stmt = `INSERT INTO activities (` + activityColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (recipient_id, target_type, target_id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, rec := range records {
		payload, err := json.Marshal(rec.Payload)
		if err != nil {
			return 0, fmt.Errorf("marshal payload for %s: %w", rec.ID, err)
		}
		batch.Queue(stmt,
			rec.ID,
			rec.RecipientID,
			rec.ActorID,
			rec.Type,
			rec.Target.Type,
			rec.Target.ID,
			payload,
			rec.CreatedAt,
			rec.Deleted,
		)
	}

	results := tx.SendBatch(ctx, batch)
	inserted := 0
	for range records {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return 0, err
		}
		inserted += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return inserted, nil
}

// SoftDeleteByTarget flips is_deleted on every record referencing the target.
// The update is commutative: applying it twice leaves the same state.
func (r *Repository) SoftDeleteByTarget(ctx context.Context, target domain.ActivityTarget) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE activities SET is_deleted = TRUE WHERE target_type = $1 AND target_id = $2`,
		target.Type, target.ID,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// FeedByRecipient returns live records newest first. The query is answered
// by the (recipient_id, created_at DESC) index alone; payloads are
// denormalized so no joins happen here.
func (r *Repository) FeedByRecipient(ctx context.Context, recipientID string, limit, offset int) ([]domain.ActivityRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+activityColumns+`
         FROM activities
         WHERE recipient_id = $1 AND is_deleted = FALSE
         ORDER BY created_at DESC, activity_id DESC
         LIMIT $2 OFFSET $3`,
		recipientID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.ActivityRecord, 0, limit)
	for rows.Next() {
		rec, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountByType counts records of one category. liveOnly restricts the count
// to rows not yet soft-deleted.
func (r *Repository) CountByType(ctx context.Context, activityType domain.ActivityType, liveOnly bool) (int64, error) {
	query := `SELECT COUNT(*) FROM activities WHERE activity_type = $1`
	if liveOnly {
		query += ` AND is_deleted = FALSE`
	}
	var count int64
	if err := r.pool.QueryRow(ctx, query, activityType).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// PurgeByType retires a whole activity category. Soft purge flips
// is_deleted on live rows; hard purge removes the rows permanently.
func (r *Repository) PurgeByType(ctx context.Context, activityType domain.ActivityType, hard bool) (int64, error) {
	var (
		tag pgconn.CommandTag
		err error
	)
	if hard {
		tag, err = r.pool.Exec(ctx, `DELETE FROM activities WHERE activity_type = $1`, activityType)
	} else {
		tag, err = r.pool.Exec(ctx, `UPDATE activities SET is_deleted = TRUE WHERE activity_type = $1 AND is_deleted = FALSE`, activityType)
	}
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanActivity(row pgx.Row) (domain.ActivityRecord, error) {
	var (
		rec     domain.ActivityRecord
		payload []byte
	)
	if err := row.Scan(&rec.ID, &rec.RecipientID, &rec.ActorID, &rec.Type, &rec.Target.Type, &rec.Target.ID, &payload, &rec.CreatedAt, &rec.Deleted); err != nil {
		return domain.ActivityRecord{}, err
	}
	if err := json.Unmarshal(payload, &rec.Payload); err != nil {
		return domain.ActivityRecord{}, fmt.Errorf("decode payload for %s: %w", rec.ID, err)
	}
	return rec, nil
}
