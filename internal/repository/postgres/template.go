package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

type TemplateRepo struct{ db *sql.DB }

func NewTemplateRepo(db *sql.DB) *TemplateRepo { return &TemplateRepo{db: db} }

// GetTemplate loads a template together with its declared variable types.
func (r *TemplateRepo) GetTemplate(ctx context.Context, ownerID, id string) (*domain.Template, error) {
	t := &domain.Template{}
	var vars []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, subject, html_content, variables, created_at, updated_at
		FROM templates
		WHERE id = $1 AND owner_id = $2
	`, id, ownerID).Scan(
		&t.ID, &t.OwnerID, &t.Name, &t.Subject, &t.HTML, &vars, &t.CreatedAt, &t.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	if len(vars) > 0 {
		if err := json.Unmarshal(vars, &t.Variables); err != nil {
			return nil, fmt.Errorf("decode template variables: %w", err)
		}
	}
	return t, nil
}
