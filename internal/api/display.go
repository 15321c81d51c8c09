package api

import "example.com/feed/internal/domain"

// Display kinds exposed to clients. The mapping is a pure function of stored
// fields; nothing here touches the database.
const (
	KindOwnReview         = "own_review"
	KindFollowingReview   = "following_review"
	KindNewFollower       = "new_follower"
	KindFollowingFollowed = "following_followed"
)

// DisplayKind derives the client-facing kind from who performed the activity
// and who is seeing it.
//
// Reviews split on self vs. followee. Follow records split on role: the
// followed user sees "someone followed me", everyone else in the audience
// sees "someone I follow followed someone".
func DisplayKind(rec domain.ActivityRecord) string {
	switch rec.Type {
	case domain.ActivityTypeReview:
		if rec.RecipientID == rec.ActorID {
			return KindOwnReview
		}
		return KindFollowingReview
	case domain.ActivityTypeFollow:
		if rec.Payload.Follow != nil && rec.RecipientID == rec.Payload.Follow.FollowedID {
			return KindNewFollower
		}
		return KindFollowingFollowed
	}
	return string(rec.Type)
}
