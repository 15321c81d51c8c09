package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Wire names of the events the fan-out writer consumes.
const (
	EventTypeReviewCreated = "review.created"
	EventTypeReviewDeleted = "review.deleted"
	EventTypeFollowCreated = "follow.created"
	EventTypeFollowRemoved = "follow.removed"
)

// ErrInvalidEvent wraps event validation failures. Callers on the event
// ingestion path treat these as terminal: the event is logged and dropped,
// never retried and never surfaced to the producing service.
var ErrInvalidEvent = errors.New("invalid event")

// Event is one of the four domain events the fan-out writer understands:
// ReviewCreated, ReviewDeleted, FollowCreated, FollowRemoved.
type Event interface {
	Validate() error
}

// UserSnapshot carries the denormalized actor fields captured into payloads.
// DisplayName arrives already masked for anonymous-display users; the feed
// service never recomputes it.
type UserSnapshot struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// CafeSnapshot carries the denormalized cafe fields for review payloads.
type CafeSnapshot struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	PlaceID string `json:"place_id,omitempty"`
}

// ReviewCreated is emitted after a review row is committed upstream.
type ReviewCreated struct {
	ReviewID  string       `json:"review_id"`
	Actor     UserSnapshot `json:"actor"`
	Cafe      CafeSnapshot `json:"cafe"`
	Rating    float64      `json:"rating"`
	Comment   string       `json:"comment,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// Validate checks the fields fan-out cannot proceed without.
func (e ReviewCreated) Validate() error {
	if strings.TrimSpace(e.ReviewID) == "" {
		return fmt.Errorf("%w: review.created missing review_id", ErrInvalidEvent)
	}
	if strings.TrimSpace(e.Actor.ID) == "" {
		return fmt.Errorf("%w: review.created missing actor id", ErrInvalidEvent)
	}
	if strings.TrimSpace(e.Cafe.ID) == "" {
		return fmt.Errorf("%w: review.created missing cafe id", ErrInvalidEvent)
	}
	return nil
}

// ReviewDeleted is emitted after a review row is removed upstream.
type ReviewDeleted struct {
	ReviewID string `json:"review_id"`
}

// Validate checks the target reference is present.
func (e ReviewDeleted) Validate() error {
	if strings.TrimSpace(e.ReviewID) == "" {
		return fmt.Errorf("%w: review.deleted missing review_id", ErrInvalidEvent)
	}
	return nil
}

// FollowCreated is emitted after a follow edge is committed upstream.
type FollowCreated struct {
	FollowID  string       `json:"follow_id"`
	Follower  UserSnapshot `json:"follower"`
	Followed  UserSnapshot `json:"followed"`
	CreatedAt time.Time    `json:"created_at"`
}

// Validate checks both sides of the edge are present and distinct.
func (e FollowCreated) Validate() error {
	if strings.TrimSpace(e.FollowID) == "" {
		return fmt.Errorf("%w: follow.created missing follow_id", ErrInvalidEvent)
	}
	if strings.TrimSpace(e.Follower.ID) == "" || strings.TrimSpace(e.Followed.ID) == "" {
		return fmt.Errorf("%w: follow.created missing follower or followed id", ErrInvalidEvent)
	}
	if e.Follower.ID == e.Followed.ID {
		return fmt.Errorf("%w: follow.created references a self-edge", ErrInvalidEvent)
	}
	return nil
}

// FollowRemoved is emitted after a follow edge is removed upstream.
type FollowRemoved struct {
	FollowID string `json:"follow_id"`
}

// Validate checks the target reference is present.
func (e FollowRemoved) Validate() error {
	if strings.TrimSpace(e.FollowID) == "" {
		return fmt.Errorf("%w: follow.removed missing follow_id", ErrInvalidEvent)
	}
	return nil
}

// DecodeEvent unmarshals a wire payload into the event variant named by
// eventType. Unknown event types are invalid, not transient.
func DecodeEvent(eventType string, data []byte) (Event, error) {
	switch eventType {
	case EventTypeReviewCreated:
		var e ReviewCreated
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		return e, nil
	case EventTypeReviewDeleted:
		var e ReviewDeleted
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		return e, nil
	case EventTypeFollowCreated:
		var e FollowCreated
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		return e, nil
	case EventTypeFollowRemoved:
		var e FollowRemoved
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		return e, nil
	}
	return nil, fmt.Errorf("%w: unknown event type %q", ErrInvalidEvent, eventType)
}
