package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

type SegmentRepo struct{ db *sql.DB }

func NewSegmentRepo(db *sql.DB) *SegmentRepo { return &SegmentRepo{db: db} }

func (r *SegmentRepo) GetSegment(ctx context.Context, ownerID, id string) (*domain.Segment, error) {
	s := &domain.Segment{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, tags, match_all, created_at
		FROM segments
		WHERE id = $1 AND owner_id = $2
	`, id, ownerID).Scan(&s.ID, &s.OwnerID, &s.Name, pq.Array(&s.Tags), &s.MatchAll, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get segment: %w", err)
	}
	return s, nil
}
