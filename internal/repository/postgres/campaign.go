package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

// CampaignRepo reads campaigns and records their lifecycle status.
type CampaignRepo struct{ db *sql.DB }

func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

func (r *CampaignRepo) GetCampaign(ctx context.Context, ownerID, id string) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	var (
		templateID, segmentID sql.NullString
		status                string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, subject, from_name, from_email, reply_to,
		       html_content, template_id, segment_id, tags, locale, status,
		       created_at, updated_at
		FROM campaigns
		WHERE id = $1 AND owner_id = $2
	`, id, ownerID).Scan(
		&c.ID, &c.OwnerID, &c.Name, &c.Subject, &c.FromName, &c.FromEmail, &c.ReplyTo,
		&c.HTML, &templateID, &segmentID, pq.Array(&c.Tags), &c.Locale, &status,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	c.TemplateID = stringPtr(templateID)
	c.SegmentID = stringPtr(segmentID)
	c.Status = domain.CampaignStatus(status)
	return c, nil
}

func (r *CampaignRepo) SetCampaignStatus(ctx context.Context, ownerID, id string, status domain.CampaignStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET status = $3, updated_at = NOW()
		WHERE id = $1 AND owner_id = $2
	`, id, ownerID, string(status))
	if err != nil {
		return fmt.Errorf("update campaign status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
