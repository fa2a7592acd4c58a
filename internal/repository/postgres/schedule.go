package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
	"github.com/ignite/campaign-dispatch/internal/recurrence"
)

var scheduleLog = logger.Named("schedule_repo")

const scheduleColumns = `id, owner_id, campaign_id, scheduled_at, timezone, status,
	claimed_at, executed_at, error_message, attempts, repeat_interval,
	repeat_count, tag_filter, last_summary, created_at`

// ScheduleRepo persists schedules and implements the claim protocol.
type ScheduleRepo struct{ db *sql.DB }

func NewScheduleRepo(db *sql.DB) *ScheduleRepo { return &ScheduleRepo{db: db} }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (*domain.Schedule, error) {
	s := &domain.Schedule{}
	var (
		claimed, executed sql.NullTime
		remaining         sql.NullInt64
		interval, status  string
	)
	err := row.Scan(
		&s.ID, &s.OwnerID, &s.CampaignID, &s.ScheduledAt, &s.Timezone, &status,
		&claimed, &executed, &s.ErrorMessage, &s.Attempts, &interval,
		&remaining, pq.Array(&s.TagFilter), &s.LastSummary, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Status = domain.ScheduleStatus(status)
	s.RepeatInterval = domain.RepeatInterval(interval)
	if !s.RepeatInterval.Valid() {
		scheduleLog.Warn("unknown repeat interval, treating as one-off", "schedule_id", s.ID, "repeat_interval", interval)
		s.RepeatInterval = domain.RepeatNone
	}
	s.ClaimedAt = timePtr(claimed)
	s.ExecutedAt = timePtr(executed)
	if remaining.Valid {
		n := int(remaining.Int64)
		s.RepeatCount = &n
	}
	return s, nil
}

// Get loads a single schedule by id.
func (r *ScheduleRepo) Get(ctx context.Context, id string) (*domain.Schedule, error) {
	s, err := scanSchedule(r.db.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	return s, nil
}

// ListDue returns pending schedules whose time has come plus processing
// schedules whose claim went stale, oldest first.
func (r *ScheduleRepo) ListDue(ctx context.Context, now, staleBefore time.Time, limit int) ([]domain.Schedule, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+scheduleColumns+`
		FROM schedules
		WHERE (status = 'pending' AND scheduled_at <= $1)
		   OR (status = 'processing' AND claimed_at < $2)
		ORDER BY scheduled_at, id
		LIMIT $3
	`, now, staleBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list due schedules: %w", err)
	}
	defer rows.Close()

	var out []domain.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// Claim atomically moves a schedule into processing. It returns nil when
// another claimer already holds it.
func (r *ScheduleRepo) Claim(ctx context.Context, id string, now, staleBefore time.Time) (*domain.Schedule, error) {
	s, err := scanSchedule(r.db.QueryRowContext(ctx, `
		UPDATE schedules
		SET status = 'processing', claimed_at = $2, attempts = attempts + 1
		WHERE id = $1
		  AND (status = 'pending' OR (status = 'processing' AND claimed_at < $3))
		RETURNING `+scheduleColumns,
		id, now, staleBefore))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim schedule: %w", err)
	}
	return s, nil
}

func (r *ScheduleRepo) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ScheduleRepo) Complete(ctx context.Context, id string, at time.Time, summary string) error {
	return r.exec(ctx, "complete schedule", `
		UPDATE schedules
		SET status = 'completed', executed_at = $2, error_message = '', last_summary = $3
		WHERE id = $1
	`, id, at, summary)
}

func (r *ScheduleRepo) Fail(ctx context.Context, id string, at time.Time, reason, summary string) error {
	return r.exec(ctx, "fail schedule", `
		UPDATE schedules
		SET status = 'failed', executed_at = $2, error_message = $3, last_summary = $4
		WHERE id = $1
	`, id, at, reason, summary)
}

// Release hands a processing schedule back to pending for the next tick.
// A schedule that is no longer processing is left alone.
func (r *ScheduleRepo) Release(ctx context.Context, id string, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE schedules
		SET status = 'pending', claimed_at = NULL, error_message = $2
		WHERE id = $1 AND status = 'processing'
	`, id, reason)
	if err != nil {
		return fmt.Errorf("release schedule: %w", err)
	}
	return nil
}

// Touch refreshes claimed_at while a dispatch is still running so the
// claim does not turn stale. Rows no longer processing are left alone.
func (r *ScheduleRepo) Touch(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE schedules SET claimed_at = $2
		WHERE id = $1 AND status = 'processing'
	`, id, at)
	if err != nil {
		return fmt.Errorf("touch schedule: %w", err)
	}
	return nil
}

// Reschedule records the finished run and turns the schedule into its
// next occurrence in one statement.
func (r *ScheduleRepo) Reschedule(ctx context.Context, id string, run recurrence.Run, next time.Time, remaining *int) error {
	return r.exec(ctx, "reschedule", `
		UPDATE schedules
		SET status = 'pending', scheduled_at = $2, repeat_count = $3,
		    executed_at = $4, last_summary = $5,
		    claimed_at = NULL, error_message = '', attempts = 0
		WHERE id = $1
	`, id, next, nullInt(remaining), run.At, run.Summary)
}

func (r *ScheduleRepo) SetRemaining(ctx context.Context, id string, remaining int) error {
	return r.exec(ctx, "set remaining", `UPDATE schedules SET repeat_count = $2 WHERE id = $1`, id, remaining)
}
