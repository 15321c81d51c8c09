package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/feed/internal/domain"
)

// FollowGraph reads the follow edges and privacy settings maintained by the
// social-graph service. The feed service never writes these tables.
type FollowGraph struct {
	pool *pgxpool.Pool
}

// NewFollowGraph constructs a FollowGraph over the shared database.
func NewFollowGraph(pool *pgxpool.Pool) *FollowGraph {
	return &FollowGraph{pool: pool}
}

// Followers returns the IDs of users following userID.
func (g *FollowGraph) Followers(ctx context.Context, userID string) ([]string, error) {
	rows, err := g.pool.Query(ctx,
		`SELECT follower_id FROM follows WHERE followed_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var followers []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		followers = append(followers, id)
	}
	return followers, rows.Err()
}

// IsFollowing reports whether a follower->followed edge exists.
func (g *FollowGraph) IsFollowing(ctx context.Context, followerID, followedID string) (bool, error) {
	var exists bool
	err := g.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM follows WHERE follower_id = $1 AND followed_id = $2)`,
		followerID, followedID,
	).Scan(&exists)
	return exists, err
}

// Settings returns the user's privacy settings, defaulting to public when no
// settings row exists.
func (g *FollowGraph) Settings(ctx context.Context, userID string) (domain.PrivacySettings, error) {
	var settings domain.PrivacySettings
	err := g.pool.QueryRow(ctx,
		`SELECT profile_visibility, activity_visibility FROM user_settings WHERE user_id = $1`,
		userID,
	).Scan(&settings.ProfileVisibility, &settings.ActivityVisibility)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PrivacySettings{
			ProfileVisibility:  "public",
			ActivityVisibility: domain.VisibilityPublic,
		}, nil
	}
	if err != nil {
		return domain.PrivacySettings{}, err
	}
	return settings, nil
}
