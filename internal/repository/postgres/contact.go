package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

// ContactRepo lists an owner's active contacts by tag.
type ContactRepo struct{ db *sql.DB }

func NewContactRepo(db *sql.DB) *ContactRepo { return &ContactRepo{db: db} }

// ListContacts returns active contacts. Empty tags selects everyone; matchAll
// requires every tag (@>) instead of any of them (&&). Filter tags are
// normalized to match the stored form kept by the contacts trigger.
func (r *ContactRepo) ListContacts(ctx context.Context, ownerID string, tags []string, matchAll bool) ([]domain.Contact, error) {
	tags = domain.NormalizeTags(tags)
	q := `
		SELECT id, owner_id, email, name, attributes, tags, status, created_at
		FROM contacts
		WHERE owner_id = $1 AND status = 'active'`
	args := []any{ownerID}
	if len(tags) > 0 {
		if matchAll {
			q += ` AND tags @> $2`
		} else {
			q += ` AND tags && $2`
		}
		args = append(args, pq.Array(tags))
	}
	q += ` ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	var out []domain.Contact
	for rows.Next() {
		var (
			c      domain.Contact
			attrs  []byte
			status string
		)
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Email, &c.Name, &attrs,
			pq.Array(&c.Tags), &status, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		c.Status = domain.ContactStatus(status)
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &c.Attributes); err != nil {
				return nil, fmt.Errorf("decode attributes for %s: %w", c.ID, err)
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
