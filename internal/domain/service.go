// Package domain defines the business logic for the feed service.
package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"example.com/feed/internal/observability"
)

// FeedMaxLimit is the hard ceiling applied to feed page sizes regardless of
// what the caller asks for.
const FeedMaxLimit = 100

// SyncFanoutThreshold documents the scale boundary of synchronous fan-out.
// Past roughly this many followers, Distribute should move behind a worker
// pool; the idempotence contract already permits that without read-path
// changes.
const SyncFanoutThreshold = 1000

// ActivityRepository captures persistence operations on activity records.
type ActivityRepository interface {
	// InsertBatch writes all records atomically. Rows conflicting on
	// (recipient, target) are skipped and counted as success, which is
	// what makes redelivered events safe. Returns the number of rows
	// actually inserted.
	InsertBatch(ctx context.Context, records []ActivityRecord) (int, error)
	// SoftDeleteByTarget flips is_deleted on every record referencing the
	// target, across all recipients. Zero matches is a no-op.
	SoftDeleteByTarget(ctx context.Context, target ActivityTarget) (int64, error)
	// FeedByRecipient returns live records for one recipient, newest
	// first, answerable from the (recipient, created_at desc) index.
	FeedByRecipient(ctx context.Context, recipientID string, limit, offset int) ([]ActivityRecord, error)
	// CountByType counts records of one category; liveOnly excludes
	// soft-deleted rows.
	CountByType(ctx context.Context, activityType ActivityType, liveOnly bool) (int64, error)
	// PurgeByType retires a whole category: soft (reversible) or hard
	// (rows physically removed). Returns affected rows.
	PurgeByType(ctx context.Context, activityType ActivityType, hard bool) (int64, error)
}

// Service is the fan-out writer and feed reader. It owns ActivityRecord
// creation exclusively; nothing else writes to the activities table.
type Service struct {
	repo   ActivityRepository
	graph  FollowGraph
	filter *PrivacyFilter
}

// NewService constructs a Service over the repository and follow graph.
func NewService(repo ActivityRepository, graph FollowGraph) *Service {
	return &Service{
		repo:   repo,
		graph:  graph,
		filter: NewPrivacyFilter(graph),
	}
}

// Filter exposes the privacy predicate used at fan-out time.
func (s *Service) Filter() *PrivacyFilter {
	return s.filter
}

// Distribute turns one domain event into per-recipient feed records.
// Creation events fan out; deletion events bulk soft-delete by target.
// Returns the number of records written (or soft-deleted). Redelivering the
// same event is safe: inserts dedupe on (recipient, target) and soft delete
// is commutative.
//
// Errors from Distribute must never fail the triggering mutation upstream;
// callers log, park the event for retry, and move on.
func (s *Service) Distribute(ctx context.Context, event Event) (int, error) {
	if err := event.Validate(); err != nil {
		return 0, err
	}

	switch e := event.(type) {
	case ReviewCreated:
		return s.distributeReview(ctx, e)
	case FollowCreated:
		return s.distributeFollow(ctx, e)
	case ReviewDeleted:
		n, err := s.SoftDeleteTarget(ctx, ActivityTarget{Type: ActivityTypeReview, ID: e.ReviewID})
		return int(n), err
	case FollowRemoved:
		n, err := s.SoftDeleteTarget(ctx, ActivityTarget{Type: ActivityTypeFollow, ID: e.FollowID})
		return int(n), err
	}
	return 0, fmt.Errorf("%w: unknown event type %T", ErrInvalidEvent, event)
}

func (s *Service) distributeReview(ctx context.Context, e ReviewCreated) (int, error) {
	payload := Payload{Review: &ReviewPayload{
		CafeID:           e.Cafe.ID,
		CafeName:         e.Cafe.Name,
		CafePlaceID:      e.Cafe.PlaceID,
		Rating:           e.Rating,
		Comment:          e.Comment,
		ActorUsername:    e.Actor.Username,
		ActorDisplayName: e.Actor.DisplayName,
		ActorAvatarURL:   e.Actor.AvatarURL,
	}}
	target := ActivityTarget{Type: ActivityTypeReview, ID: e.ReviewID}
	createdAt := eventTime(e.CreatedAt)

	// The actor always sees their own review.
	recipients := []string{e.Actor.ID}

	followers, err := s.graph.Followers(ctx, e.Actor.ID)
	if err != nil {
		return 0, fmt.Errorf("list followers of %s: %w", e.Actor.ID, err)
	}
	for _, followerID := range followers {
		visible, err := s.filter.Visible(ctx, followerID, e.Actor.ID)
		if err != nil {
			return 0, fmt.Errorf("visibility check for %s: %w", followerID, err)
		}
		if visible {
			recipients = append(recipients, followerID)
		}
	}

	records := make([]ActivityRecord, 0, len(recipients))
	for _, recipientID := range recipients {
		records = append(records, ActivityRecord{
			ID:          uuid.NewString(),
			RecipientID: recipientID,
			ActorID:     e.Actor.ID,
			Type:        ActivityTypeReview,
			Target:      target,
			Payload:     payload,
			CreatedAt:   createdAt,
		})
	}

	written, err := s.repo.InsertBatch(ctx, records)
	if err != nil {
		return 0, fmt.Errorf("fan out review %s: %w", e.ReviewID, err)
	}
	observability.RecordFanout(string(ActivityTypeReview), written)
	return written, nil
}

// distributeFollow writes two recipient sets with distinct payload roles.
// Neither set is privacy-filtered: the followed user must always learn of an
// incoming follow, and follow actions are always-public by product rule,
// unlike reviews.
func (s *Service) distributeFollow(ctx context.Context, e FollowCreated) (int, error) {
	payload := Payload{Follow: &FollowPayload{
		FollowerID:          e.Follower.ID,
		FollowerUsername:    e.Follower.Username,
		FollowerDisplayName: e.Follower.DisplayName,
		FollowerAvatarURL:   e.Follower.AvatarURL,
		FollowedID:          e.Followed.ID,
		FollowedUsername:    e.Followed.Username,
		FollowedDisplayName: e.Followed.DisplayName,
		FollowedAvatarURL:   e.Followed.AvatarURL,
	}}
	target := ActivityTarget{Type: ActivityTypeFollow, ID: e.FollowID}
	createdAt := eventTime(e.CreatedAt)

	// "X followed you" notification for the followed user.
	recipients := []string{e.Followed.ID}

	// "X followed Y" feed entry for the follower's own followers.
	audience, err := s.graph.Followers(ctx, e.Follower.ID)
	if err != nil {
		return 0, fmt.Errorf("list followers of %s: %w", e.Follower.ID, err)
	}
	for _, id := range audience {
		if id == e.Followed.ID {
			// Already receiving the notification record for this target.
			continue
		}
		recipients = append(recipients, id)
	}

	records := make([]ActivityRecord, 0, len(recipients))
	for _, recipientID := range recipients {
		records = append(records, ActivityRecord{
			ID:          uuid.NewString(),
			RecipientID: recipientID,
			ActorID:     e.Follower.ID,
			Type:        ActivityTypeFollow,
			Target:      target,
			Payload:     payload,
			CreatedAt:   createdAt,
		})
	}

	written, err := s.repo.InsertBatch(ctx, records)
	if err != nil {
		return 0, fmt.Errorf("fan out follow %s: %w", e.FollowID, err)
	}
	observability.RecordFanout(string(ActivityTypeFollow), written)
	return written, nil
}

// SoftDeleteTarget flips is_deleted on every record referencing the target.
// Applying it twice is equivalent to applying it once; a target with no
// records is a no-op, not an error.
func (s *Service) SoftDeleteTarget(ctx context.Context, target ActivityTarget) (int64, error) {
	if !target.Type.Valid() || target.ID == "" {
		return 0, fmt.Errorf("%w: soft delete needs a typed target id", ErrInvalidEvent)
	}
	n, err := s.repo.SoftDeleteByTarget(ctx, target)
	if err != nil {
		return 0, fmt.Errorf("soft delete %s %s: %w", target.Type, target.ID, err)
	}
	if n > 0 {
		observability.RecordSoftDeleted(string(target.Type), n)
	}
	return n, nil
}

// GetFeed returns the recipient's most recent live records, newest first.
// The limit is clamped to FeedMaxLimit server-side regardless of input.
func (s *Service) GetFeed(ctx context.Context, recipientID string, limit, offset int) ([]ActivityRecord, error) {
	if limit <= 0 || limit > FeedMaxLimit {
		limit = FeedMaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.FeedByRecipient(ctx, recipientID, limit, offset)
}

func eventTime(ts time.Time) time.Time {
	if ts.IsZero() {
		return time.Now().UTC()
	}
	return ts.UTC()
}
