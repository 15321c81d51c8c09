package domain

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeGraph struct {
	followers map[string][]string
	settings  map[string]PrivacySettings
	edges     map[string]bool
	err       error
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		followers: make(map[string][]string),
		settings:  make(map[string]PrivacySettings),
		edges:     make(map[string]bool),
	}
}

func (g *fakeGraph) follow(followerID, followedID string) {
	g.followers[followedID] = append(g.followers[followedID], followerID)
	g.edges[followerID+"->"+followedID] = true
}

func (g *fakeGraph) Followers(ctx context.Context, userID string) ([]string, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.followers[userID], nil
}

func (g *fakeGraph) IsFollowing(ctx context.Context, followerID, followedID string) (bool, error) {
	return g.edges[followerID+"->"+followedID], nil
}

func (g *fakeGraph) Settings(ctx context.Context, userID string) (PrivacySettings, error) {
	if s, ok := g.settings[userID]; ok {
		return s, nil
	}
	return PrivacySettings{ProfileVisibility: "public", ActivityVisibility: VisibilityPublic}, nil
}

// fakeRepo mimics the Postgres repository including the uniqueness
// constraint on (recipient, target).
type fakeRepo struct {
	records   []ActivityRecord
	insertErr error
}

func (r *fakeRepo) key(rec ActivityRecord) string {
	return fmt.Sprintf("%s|%s|%s", rec.RecipientID, rec.Target.Type, rec.Target.ID)
}

func (r *fakeRepo) InsertBatch(ctx context.Context, records []ActivityRecord) (int, error) {
	if r.insertErr != nil {
		return 0, r.insertErr
	}
	existing := make(map[string]bool, len(r.records))
	for _, rec := range r.records {
		existing[r.key(rec)] = true
	}
	inserted := 0
	for _, rec := range records {
		if existing[r.key(rec)] {
			continue
		}
		existing[r.key(rec)] = true
		r.records = append(r.records, rec)
		inserted++
	}
	return inserted, nil
}

func (r *fakeRepo) SoftDeleteByTarget(ctx context.Context, target ActivityTarget) (int64, error) {
	var n int64
	for i := range r.records {
		if r.records[i].Target == target {
			r.records[i].Deleted = true
			n++
		}
	}
	return n, nil
}

func (r *fakeRepo) FeedByRecipient(ctx context.Context, recipientID string, limit, offset int) ([]ActivityRecord, error) {
	var feed []ActivityRecord
	for _, rec := range r.records {
		if rec.RecipientID == recipientID && !rec.Deleted {
			feed = append(feed, rec)
		}
	}
	sort.Slice(feed, func(i, j int) bool { return feed[i].CreatedAt.After(feed[j].CreatedAt) })
	if offset >= len(feed) {
		return nil, nil
	}
	feed = feed[offset:]
	if len(feed) > limit {
		feed = feed[:limit]
	}
	return feed, nil
}

func (r *fakeRepo) CountByType(ctx context.Context, activityType ActivityType, liveOnly bool) (int64, error) {
	var n int64
	for _, rec := range r.records {
		if rec.Type != activityType {
			continue
		}
		if liveOnly && rec.Deleted {
			continue
		}
		n++
	}
	return n, nil
}

func (r *fakeRepo) PurgeByType(ctx context.Context, activityType ActivityType, hard bool) (int64, error) {
	var n int64
	if hard {
		kept := r.records[:0]
		for _, rec := range r.records {
			if rec.Type == activityType {
				n++
				continue
			}
			kept = append(kept, rec)
		}
		r.records = kept
		return n, nil
	}
	for i := range r.records {
		if r.records[i].Type == activityType && !r.records[i].Deleted {
			r.records[i].Deleted = true
			n++
		}
	}
	return n, nil
}

func (r *fakeRepo) recipients() []string {
	var out []string
	for _, rec := range r.records {
		out = append(out, rec.RecipientID)
	}
	sort.Strings(out)
	return out
}

func reviewEvent(reviewID, actorID string, at time.Time) ReviewCreated {
	return ReviewCreated{
		ReviewID:  reviewID,
		Actor:     UserSnapshot{ID: actorID, Username: actorID, DisplayName: actorID},
		Cafe:      CafeSnapshot{ID: "cafe-1", Name: "Coffee Lab"},
		Rating:    5,
		CreatedAt: at,
	}
}

func followEvent(followID, followerID, followedID string, at time.Time) FollowCreated {
	return FollowCreated{
		FollowID:  followID,
		Follower:  UserSnapshot{ID: followerID, Username: followerID, DisplayName: followerID},
		Followed:  UserSnapshot{ID: followedID, Username: followedID, DisplayName: followedID},
		CreatedAt: at,
	}
}

func TestDistributeReviewFansOutToEligibleFollowers(t *testing.T) {
	ctx := context.Background()
	graph := newFakeGraph()
	graph.follow("bob", "alice")
	graph.follow("carol", "alice")
	repo := &fakeRepo{}
	service := NewService(repo, graph)

	written, err := service.Distribute(ctx, reviewEvent("rev-1", "alice", time.Now()))
	require.NoError(t, err)
	require.Equal(t, 3, written, "actor plus two followers")
	require.Equal(t, []string{"alice", "bob", "carol"}, repo.recipients())

	for _, rec := range repo.records {
		require.Equal(t, "alice", rec.ActorID)
		require.Equal(t, ActivityTypeReview, rec.Type)
		require.Equal(t, ActivityTarget{Type: ActivityTypeReview, ID: "rev-1"}, rec.Target)
		require.NotNil(t, rec.Payload.Review)
		require.Equal(t, "Coffee Lab", rec.Payload.Review.CafeName)
		require.Nil(t, rec.Payload.Follow)
	}
}

func TestDistributeReviewRespectsPrivacy(t *testing.T) {
	ctx := context.Background()

	t.Run("private hides from all followers", func(t *testing.T) {
		graph := newFakeGraph()
		graph.follow("bob", "alice")
		graph.settings["alice"] = PrivacySettings{ActivityVisibility: VisibilityPrivate}
		repo := &fakeRepo{}
		service := NewService(repo, graph)

		written, err := service.Distribute(ctx, reviewEvent("rev-1", "alice", time.Now()))
		require.NoError(t, err)
		require.Equal(t, 1, written, "only the actor's own feed")
		require.Equal(t, []string{"alice"}, repo.recipients())
	})

	t.Run("followers-only includes only actual followers", func(t *testing.T) {
		graph := newFakeGraph()
		graph.follow("bob", "alice")
		graph.settings["alice"] = PrivacySettings{ActivityVisibility: VisibilityFollowers}
		repo := &fakeRepo{}
		service := NewService(repo, graph)

		written, err := service.Distribute(ctx, reviewEvent("rev-1", "alice", time.Now()))
		require.NoError(t, err)
		require.Equal(t, 2, written)
		require.Equal(t, []string{"alice", "bob"}, repo.recipients())
	})
}

func TestDistributeReviewIdempotent(t *testing.T) {
	ctx := context.Background()
	graph := newFakeGraph()
	graph.follow("bob", "alice")
	repo := &fakeRepo{}
	service := NewService(repo, graph)

	event := reviewEvent("rev-1", "alice", time.Now())

	written, err := service.Distribute(ctx, event)
	require.NoError(t, err)
	require.Equal(t, 2, written)

	// Redelivery conflicts on (recipient, target) and inserts nothing.
	written, err = service.Distribute(ctx, event)
	require.NoError(t, err)
	require.Equal(t, 0, written)
	require.Len(t, repo.records, 2)
}

func TestDistributeFollowAsymmetry(t *testing.T) {
	ctx := context.Background()
	graph := newFakeGraph()
	// carol follows alice; alice follows bob.
	graph.follow("carol", "alice")
	// Privacy settings must not matter for follow fan-out on either side.
	graph.settings["alice"] = PrivacySettings{ActivityVisibility: VisibilityPrivate}
	graph.settings["bob"] = PrivacySettings{ActivityVisibility: VisibilityPrivate}
	repo := &fakeRepo{}
	service := NewService(repo, graph)

	written, err := service.Distribute(ctx, followEvent("fol-1", "alice", "bob", time.Now()))
	require.NoError(t, err)
	require.Equal(t, 2, written)
	// bob gets the "new follower" notification, carol the feed entry.
	require.Equal(t, []string{"bob", "carol"}, repo.recipients())

	for _, rec := range repo.records {
		require.Equal(t, ActivityTypeFollow, rec.Type)
		require.NotNil(t, rec.Payload.Follow)
		require.Equal(t, "alice", rec.Payload.Follow.FollowerID)
		require.Equal(t, "bob", rec.Payload.Follow.FollowedID)
	}
}

func TestDistributeFollowDeduplicatesFollowedRecipient(t *testing.T) {
	ctx := context.Background()
	graph := newFakeGraph()
	// bob already follows alice, so bob appears both as the followed user
	// and in alice's follower audience.
	graph.follow("bob", "alice")
	repo := &fakeRepo{}
	service := NewService(repo, graph)

	written, err := service.Distribute(ctx, followEvent("fol-1", "alice", "bob", time.Now()))
	require.NoError(t, err)
	require.Equal(t, 1, written)
	require.Equal(t, []string{"bob"}, repo.recipients())
}

func TestDistributeRejectsInvalidEvents(t *testing.T) {
	ctx := context.Background()
	service := NewService(&fakeRepo{}, newFakeGraph())

	cases := []Event{
		ReviewCreated{},
		ReviewCreated{ReviewID: "rev-1"},
		ReviewDeleted{},
		FollowCreated{FollowID: "fol-1", Follower: UserSnapshot{ID: "a"}, Followed: UserSnapshot{ID: "a"}},
		FollowRemoved{},
	}
	for _, event := range cases {
		_, err := service.Distribute(ctx, event)
		require.ErrorIs(t, err, ErrInvalidEvent)
	}
}

func TestSoftDeleteTargetIdempotent(t *testing.T) {
	ctx := context.Background()
	graph := newFakeGraph()
	graph.follow("bob", "alice")
	repo := &fakeRepo{}
	service := NewService(repo, graph)

	_, err := service.Distribute(ctx, reviewEvent("rev-1", "alice", time.Now()))
	require.NoError(t, err)

	target := ActivityTarget{Type: ActivityTypeReview, ID: "rev-1"}

	n, err := service.SoftDeleteTarget(ctx, target)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	// Second application leaves the same state.
	_, err = service.SoftDeleteTarget(ctx, target)
	require.NoError(t, err)
	for _, rec := range repo.records {
		require.True(t, rec.Deleted)
	}
	require.Len(t, repo.records, 2, "soft delete never removes rows")
}

func TestSoftDeleteUnknownTargetIsNoOp(t *testing.T) {
	ctx := context.Background()
	service := NewService(&fakeRepo{}, newFakeGraph())

	n, err := service.SoftDeleteTarget(ctx, ActivityTarget{Type: ActivityTypeReview, ID: "missing"})
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestGetFeedClampsAndFilters(t *testing.T) {
	ctx := context.Background()
	repo := &fakeRepo{}
	service := NewService(repo, newFakeGraph())

	base := time.Date(2026, time.August, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 150; i++ {
		repo.records = append(repo.records, ActivityRecord{
			ID:          fmt.Sprintf("act-%03d", i),
			RecipientID: "alice",
			ActorID:     "alice",
			Type:        ActivityTypeReview,
			Target:      ActivityTarget{Type: ActivityTypeReview, ID: fmt.Sprintf("rev-%03d", i)},
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
			Deleted:     i%2 == 1,
		})
	}

	feed, err := service.GetFeed(ctx, "alice", 1000, 0)
	require.NoError(t, err)
	require.Len(t, feed, FeedMaxLimit, "limit clamped to the hard maximum")

	for i, rec := range feed {
		require.False(t, rec.Deleted)
		if i > 0 {
			require.False(t, rec.CreatedAt.After(feed[i-1].CreatedAt), "feed must be non-increasing by created_at")
		}
	}
}

// Mirrors the canonical lifecycle: a review fans out, gains recipients after
// new follows via re-distribution, and disappears from feeds on deletion
// while its rows remain.
func TestReviewLifecycleAcrossFollowChanges(t *testing.T) {
	ctx := context.Background()
	graph := newFakeGraph()
	repo := &fakeRepo{}
	service := NewService(repo, graph)

	event := reviewEvent("rev-1", "alice", time.Now())

	// Alice has no followers yet.
	written, err := service.Distribute(ctx, event)
	require.NoError(t, err)
	require.Equal(t, 1, written)

	// Bob and Carol follow Alice; a re-fan-out (as backfill would do) only
	// adds the missing recipients.
	graph.follow("bob", "alice")
	graph.follow("carol", "alice")

	written, err = service.Distribute(ctx, event)
	require.NoError(t, err)
	require.Equal(t, 2, written)
	require.Equal(t, []string{"alice", "bob", "carol"}, repo.recipients())

	// Deleting the review flips all three records.
	n, err := service.Distribute(ctx, ReviewDeleted{ReviewID: "rev-1"})
	require.NoError(t, err)
	require.Equal(t, 3, n)

	feed, err := service.GetFeed(ctx, "bob", 50, 0)
	require.NoError(t, err)
	require.Empty(t, feed)
	require.Len(t, repo.records, 3, "stored row count is unchanged")
}
