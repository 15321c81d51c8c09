package domain

import "context"

// ActivityVisibility is the three-state policy users pick for their activity.
type ActivityVisibility string

const (
	VisibilityPublic    ActivityVisibility = "public"
	VisibilityFollowers ActivityVisibility = "followers"
	VisibilityPrivate   ActivityVisibility = "private"
)

// PrivacySettings are owned by the accounts service; a user with no stored
// settings row defaults to public.
type PrivacySettings struct {
	ProfileVisibility  string
	ActivityVisibility ActivityVisibility
}

// FollowGraph exposes the follow edges and privacy settings owned by the
// social-graph service. The feed service only reads it.
type FollowGraph interface {
	// Followers returns the IDs of users following userID.
	Followers(ctx context.Context, userID string) ([]string, error)
	// IsFollowing reports whether a follower->followed edge exists.
	IsFollowing(ctx context.Context, followerID, followedID string) (bool, error)
	// Settings returns the user's privacy settings, defaulting to public
	// when none are stored.
	Settings(ctx context.Context, userID string) (PrivacySettings, error)
}

// PrivacyFilter decides whether one user's activity is visible to another.
// It is evaluated once per candidate recipient at fan-out time; a later
// visibility change does not retroactively hide or reveal records already
// distributed.
type PrivacyFilter struct {
	graph FollowGraph
}

// NewPrivacyFilter constructs a PrivacyFilter over the follow graph.
func NewPrivacyFilter(graph FollowGraph) *PrivacyFilter {
	return &PrivacyFilter{graph: graph}
}

// Visible reports whether viewerID may see ownerID's activity.
func (f *PrivacyFilter) Visible(ctx context.Context, viewerID, ownerID string) (bool, error) {
	if viewerID == ownerID {
		return true, nil
	}

	settings, err := f.graph.Settings(ctx, ownerID)
	if err != nil {
		return false, err
	}

	switch settings.ActivityVisibility {
	case VisibilityPublic, "":
		return true, nil
	case VisibilityPrivate:
		return false, nil
	case VisibilityFollowers:
		return f.graph.IsFollowing(ctx, viewerID, ownerID)
	}
	return false, nil
}
