// Package reconcile provides the batch tooling that repairs feed state:
// backfill of historical events and purge of whole activity categories.
// Both operations are idempotent and safe to repeat after a partial run.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"example.com/feed/internal/domain"
)

// ErrConfirmationRequired is returned when a hard purge is requested without
// explicit confirmation.
var ErrConfirmationRequired = errors.New("hard purge requires explicit confirmation")

// HistorySource iterates historical entities in ascending creation order.
type HistorySource interface {
	ReviewsCreatedSince(ctx context.Context, since time.Time, limit, offset int) ([]domain.ReviewCreated, error)
	FollowsCreatedSince(ctx context.Context, since time.Time, limit, offset int) ([]domain.FollowCreated, error)
}

// Distributor is the slice of the fan-out writer backfill re-invokes.
type Distributor interface {
	Distribute(ctx context.Context, event domain.Event) (int, error)
}

// Reconciler runs backfill and purge against the activity store.
type Reconciler struct {
	history HistorySource
	dist    Distributor
	repo    domain.ActivityRepository
	logger  *log.Logger
}

// NewReconciler constructs a Reconciler.
func NewReconciler(history HistorySource, dist Distributor, repo domain.ActivityRepository) *Reconciler {
	return &Reconciler{
		history: history,
		dist:    dist,
		repo:    repo,
		logger:  log.New(log.Writer(), "[reconcile] ", log.LstdFlags),
	}
}

// BackfillReport summarises one backfill run. Failures are per-item; a run
// only aborts when the history source itself cannot be read.
type BackfillReport struct {
	ReviewsProcessed int
	ReviewsFailed    int
	FollowsProcessed int
	FollowsFailed    int
	RecordsWritten   int
	DryRun           bool
}

// Backfill replays creation events for every review and follow created at or
// after since, in ascending time order. Re-running over already-distributed
// history writes nothing new: inserts dedupe on (recipient, target).
func (r *Reconciler) Backfill(ctx context.Context, since time.Time, batchSize int, dryRun bool) (BackfillReport, error) {
	if batchSize <= 0 {
		batchSize = 100
	}
	report := BackfillReport{DryRun: dryRun}

	for offset := 0; ; offset += batchSize {
		events, err := r.history.ReviewsCreatedSince(ctx, since, batchSize, offset)
		if err != nil {
			return report, fmt.Errorf("read review history: %w", err)
		}
		for _, e := range events {
			if dryRun {
				report.ReviewsProcessed++
				continue
			}
			written, err := r.dist.Distribute(ctx, e)
			if err != nil {
				report.ReviewsFailed++
				r.logger.Printf("backfill review %s failed: %v", e.ReviewID, err)
				continue
			}
			report.ReviewsProcessed++
			report.RecordsWritten += written
		}
		if len(events) < batchSize {
			break
		}
	}

	for offset := 0; ; offset += batchSize {
		events, err := r.history.FollowsCreatedSince(ctx, since, batchSize, offset)
		if err != nil {
			return report, fmt.Errorf("read follow history: %w", err)
		}
		for _, e := range events {
			if dryRun {
				report.FollowsProcessed++
				continue
			}
			written, err := r.dist.Distribute(ctx, e)
			if err != nil {
				report.FollowsFailed++
				r.logger.Printf("backfill follow %s failed: %v", e.FollowID, err)
				continue
			}
			report.FollowsProcessed++
			report.RecordsWritten += written
		}
		if len(events) < batchSize {
			break
		}
	}

	return report, nil
}

// PurgeMode selects between reversible and permanent removal.
type PurgeMode string

const (
	PurgeSoft PurgeMode = "soft"
	PurgeHard PurgeMode = "hard"
)

// PurgeReport summarises one purge run.
type PurgeReport struct {
	Type     domain.ActivityType
	Mode     PurgeMode
	Affected int64
}

// PreviewPurge reports how many rows a purge would touch without changing
// anything. Soft purge only touches live rows; hard purge removes every row
// of the category, soft-deleted ones included.
func (r *Reconciler) PreviewPurge(ctx context.Context, activityType domain.ActivityType, mode PurgeMode) (int64, error) {
	if !activityType.Valid() {
		return 0, fmt.Errorf("unknown activity type %q", activityType)
	}
	return r.repo.CountByType(ctx, activityType, mode == PurgeSoft)
}

// Purge retires a whole activity category. Hard purges are irreversible and
// refused unless confirmed. Purging a category with no rows is a no-op.
func (r *Reconciler) Purge(ctx context.Context, activityType domain.ActivityType, mode PurgeMode, confirmed bool) (PurgeReport, error) {
	if !activityType.Valid() {
		return PurgeReport{}, fmt.Errorf("unknown activity type %q", activityType)
	}
	if mode != PurgeSoft && mode != PurgeHard {
		return PurgeReport{}, fmt.Errorf("unknown purge mode %q", mode)
	}
	if mode == PurgeHard && !confirmed {
		return PurgeReport{}, ErrConfirmationRequired
	}

	affected, err := r.repo.PurgeByType(ctx, activityType, mode == PurgeHard)
	if err != nil {
		return PurgeReport{}, fmt.Errorf("purge %s (%s): %w", activityType, mode, err)
	}
	r.logger.Printf("purged %d %s activities (%s)", affected, activityType, mode)
	return PurgeReport{Type: activityType, Mode: mode, Affected: affected}, nil
}
