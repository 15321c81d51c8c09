package domain

import "time"

// ActivityType discriminates the kinds of activity that appear in feeds.
// Visits were retired from the feed for privacy; re-adding a category means
// extending this enum, the payload union and the display mapping.
type ActivityType string

const (
	ActivityTypeReview ActivityType = "review"
	ActivityTypeFollow ActivityType = "follow"
)

// Valid reports whether the type is one of the known feed categories.
func (t ActivityType) Valid() bool {
	return t == ActivityTypeReview || t == ActivityTypeFollow
}

// ActivityTarget is a tagged reference to the entity that triggered the
// activity. All records spawned by one event share the same target.
type ActivityTarget struct {
	Type ActivityType `json:"type"`
	ID   string       `json:"id"`
}

// ReviewPayload is the frozen snapshot stored with review activities.
// It is captured once at fan-out time and never refreshed when the review,
// cafe or actor profile later changes.
type ReviewPayload struct {
	CafeID           string  `json:"cafe_id"`
	CafeName         string  `json:"cafe_name"`
	CafePlaceID      string  `json:"cafe_place_id,omitempty"`
	Rating           float64 `json:"rating"`
	Comment          string  `json:"comment,omitempty"`
	ActorUsername    string  `json:"actor_username"`
	ActorDisplayName string  `json:"actor_display_name"`
	ActorAvatarURL   string  `json:"actor_avatar_url,omitempty"`
}

// FollowPayload is the frozen snapshot stored with follow activities. It
// carries both sides of the edge so the display mapping needs no lookups.
type FollowPayload struct {
	FollowerID          string `json:"follower_id"`
	FollowerUsername    string `json:"follower_username"`
	FollowerDisplayName string `json:"follower_display_name"`
	FollowerAvatarURL   string `json:"follower_avatar_url,omitempty"`
	FollowedID          string `json:"followed_id"`
	FollowedUsername    string `json:"followed_username"`
	FollowedDisplayName string `json:"followed_display_name"`
	FollowedAvatarURL   string `json:"followed_avatar_url,omitempty"`
}

// Payload is the discriminated payload union. Exactly one branch is set,
// matching the record's ActivityType.
type Payload struct {
	Review *ReviewPayload `json:"review,omitempty"`
	Follow *FollowPayload `json:"follow,omitempty"`
}

// ActivityRecord is one denormalized feed entry for one recipient.
// Records are created only by Distribute and mutated only by soft delete.
type ActivityRecord struct {
	ID          string
	RecipientID string
	ActorID     string
	Type        ActivityType
	Target      ActivityTarget
	Payload     Payload
	CreatedAt   time.Time
	Deleted     bool
}
