package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

// SuppressionRepo manages the per-owner suppression list.
type SuppressionRepo struct{ db *sql.DB }

func NewSuppressionRepo(db *sql.DB) *SuppressionRepo { return &SuppressionRepo{db: db} }

// SuppressedEmails returns the subset of emails on the owner's list.
func (r *SuppressionRepo) SuppressedEmails(ctx context.Context, ownerID string, emails []string) (map[string]bool, error) {
	out := make(map[string]bool)
	if len(emails) == 0 {
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT email FROM suppressions
		WHERE owner_id = $1 AND email = ANY($2)
	`, ownerID, pq.Array(emails))
	if err != nil {
		return nil, fmt.Errorf("check suppressions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan suppression: %w", err)
		}
		out[strings.ToLower(email)] = true
	}
	return out, rows.Err()
}

// Suppress adds an address; re-suppressing keeps the original reason.
func (r *SuppressionRepo) Suppress(ctx context.Context, s domain.Suppression) error {
	reason := s.Reason
	if reason == "" {
		reason = domain.ReasonManual
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO suppressions (owner_id, email, reason)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner_id, email) DO NOTHING
	`, s.OwnerID, domain.NormalizeEmail(s.Email), string(reason))
	if err != nil {
		return fmt.Errorf("suppress email: %w", err)
	}
	return nil
}
