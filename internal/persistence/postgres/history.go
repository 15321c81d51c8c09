package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/feed/internal/domain"
)

// HistorySource reads historical reviews and follows for backfill. Payload
// snapshots are rebuilt from the current upstream rows, so a backfilled
// record reflects today's cafe name and profile, not the original snapshot.
type HistorySource struct {
	pool *pgxpool.Pool
}

// NewHistorySource constructs a HistorySource over the shared database.
func NewHistorySource(pool *pgxpool.Pool) *HistorySource {
	return &HistorySource{pool: pool}
}

// ReviewsCreatedSince returns review creation events in ascending creation
// order, one page at a time.
func (h *HistorySource) ReviewsCreatedSince(ctx context.Context, since time.Time, limit, offset int) ([]domain.ReviewCreated, error) {
	rows, err := h.pool.Query(ctx,
		`SELECT r.review_id, r.rating, COALESCE(r.comment, ''), r.created_at,
                u.user_id, u.username, u.display_name, COALESCE(u.avatar_url, ''),
                c.cafe_id, c.name, COALESCE(c.place_id, '')
         FROM reviews r
         JOIN users u ON u.user_id = r.user_id
         JOIN cafes c ON c.cafe_id = r.cafe_id
         WHERE r.created_at >= $1
         ORDER BY r.created_at ASC, r.review_id ASC
         LIMIT $2 OFFSET $3`,
		since, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.ReviewCreated
	for rows.Next() {
		var e domain.ReviewCreated
		if err := rows.Scan(
			&e.ReviewID, &e.Rating, &e.Comment, &e.CreatedAt,
			&e.Actor.ID, &e.Actor.Username, &e.Actor.DisplayName, &e.Actor.AvatarURL,
			&e.Cafe.ID, &e.Cafe.Name, &e.Cafe.PlaceID,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// FollowsCreatedSince returns follow creation events in ascending creation
// order, one page at a time.
func (h *HistorySource) FollowsCreatedSince(ctx context.Context, since time.Time, limit, offset int) ([]domain.FollowCreated, error) {
	rows, err := h.pool.Query(ctx,
		`SELECT f.follow_id, f.created_at,
                fr.user_id, fr.username, fr.display_name, COALESCE(fr.avatar_url, ''),
                fd.user_id, fd.username, fd.display_name, COALESCE(fd.avatar_url, '')
         FROM follows f
         JOIN users fr ON fr.user_id = f.follower_id
         JOIN users fd ON fd.user_id = f.followed_id
         WHERE f.created_at >= $1
         ORDER BY f.created_at ASC, f.follow_id ASC
         LIMIT $2 OFFSET $3`,
		since, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.FollowCreated
	for rows.Next() {
		var e domain.FollowCreated
		if err := rows.Scan(
			&e.FollowID, &e.CreatedAt,
			&e.Follower.ID, &e.Follower.Username, &e.Follower.DisplayName, &e.Follower.AvatarURL,
			&e.Followed.ID, &e.Followed.Username, &e.Followed.DisplayName, &e.Followed.AvatarURL,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
