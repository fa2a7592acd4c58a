package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

// DeliveryLogRepo appends per-recipient delivery records with COPY.
type DeliveryLogRepo struct{ db *sql.DB }

func NewDeliveryLogRepo(db *sql.DB) *DeliveryLogRepo { return &DeliveryLogRepo{db: db} }

func (r *DeliveryLogRepo) AppendDeliveries(ctx context.Context, entries []domain.DeliveryLog) error {
	if len(entries) == 0 {
		return nil
	}
	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delivery log tx: %w", err)
	}
	defer txn.Rollback() //nolint:errcheck

	stmt, err := txn.PrepareContext(ctx, pq.CopyIn("delivery_log",
		"id", "schedule_id", "campaign_id", "owner_id", "recipient",
		"outcome", "provider_message_id", "error", "attempts", "created_at"))
	if err != nil {
		return fmt.Errorf("prepare delivery log copy: %w", err)
	}

	now := time.Now().UTC()
	for _, e := range entries {
		id := e.ID
		if id == "" {
			id = uuid.New().String()
		}
		created := e.CreatedAt
		if created.IsZero() {
			created = now
		}
		if _, err := stmt.ExecContext(ctx, id, e.ScheduleID, e.CampaignID, e.OwnerID,
			e.Recipient, string(e.Outcome), e.ProviderMessageID, e.Error, e.Attempts, created); err != nil {
			stmt.Close()
			return fmt.Errorf("copy delivery row: %w", err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("flush delivery log copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("close delivery log copy: %w", err)
	}
	return txn.Commit()
}
