// Package recurrence computes the next occurrence of a repeating schedule.
package recurrence

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

// Run is the result of the execution that just finished.
type Run struct {
	At      time.Time
	Summary string
}

// Store persists the end of a successful run.
type Store interface {
	// Complete marks the schedule completed with the run's summary.
	Complete(ctx context.Context, id string, at time.Time, summary string) error
	// Reschedule records the run and moves the schedule back to pending at
	// next with the remaining count (nil = unbounded), clearing error and
	// attempts, in one write.
	Reschedule(ctx context.Context, id string, run Run, next time.Time, remaining *int) error
	// SetRemaining records the remaining count and leaves the status alone.
	SetRemaining(ctx context.Context, id string, remaining int) error
}

// Plan is the outcome of one recurrence step.
type Plan struct {
	Next      time.Time
	Remaining *int
}

// Planner advances recurring schedules. The zero value is ready to use.
type Planner struct{}

// NewPlanner returns a Planner.
func NewPlanner() *Planner { return &Planner{} }

// Next computes the occurrence after s.ScheduledAt. It reports false when s
// does not repeat or its remaining count is exhausted; in the latter case
// Plan.Remaining is 0.
func (p *Planner) Next(s domain.Schedule) (Plan, bool) {
	if !s.Recurring() {
		return Plan{}, false
	}
	var remaining *int
	if s.RepeatCount != nil {
		n := *s.RepeatCount - 1
		if n <= 0 {
			zero := 0
			return Plan{Remaining: &zero}, false
		}
		remaining = &n
	}
	return Plan{
		Next:      Advance(s.ScheduledAt, s.RepeatInterval, s.Location()),
		Remaining: remaining,
	}, true
}

// Apply finishes a successful run of s. A recurring schedule with another
// occurrence is completed and rescheduled in a single write; otherwise the
// schedule is completed and an exhausted count is recorded afterwards, so a
// crash in between never leaves a schedule that could run again. It reports
// whether the schedule was put back to pending.
func (p *Planner) Apply(ctx context.Context, store Store, s domain.Schedule, run Run) (bool, error) {
	plan, ok := p.Next(s)
	if ok {
		if err := store.Reschedule(ctx, s.ID, run, plan.Next, plan.Remaining); err != nil {
			return false, fmt.Errorf("reschedule %s: %w", s.ID, err)
		}
		return true, nil
	}
	if err := store.Complete(ctx, s.ID, run.At, run.Summary); err != nil {
		return false, fmt.Errorf("complete schedule %s: %w", s.ID, err)
	}
	if plan.Remaining != nil {
		if err := store.SetRemaining(ctx, s.ID, *plan.Remaining); err != nil {
			return false, fmt.Errorf("set remaining %s: %w", s.ID, err)
		}
	}
	return false, nil
}

// Advance adds one interval to t using wall-clock arithmetic in loc, so a
// 10:00 daily send stays at 10:00 across DST changes. Monthly steps clamp to
// the last day of the target month.
func Advance(t time.Time, interval domain.RepeatInterval, loc *time.Location) time.Time {
	local := t.In(loc)
	y, m, d := local.Date()
	hh, mm, ss := local.Clock()
	ns := local.Nanosecond()

	switch interval {
	case domain.RepeatDaily:
		return time.Date(y, m, d+1, hh, mm, ss, ns, loc)
	case domain.RepeatWeekly:
		return time.Date(y, m, d+7, hh, mm, ss, ns, loc)
	case domain.RepeatMonthly:
		last := time.Date(y, m+2, 0, 0, 0, 0, 0, loc).Day()
		return time.Date(y, m+1, min(d, last), hh, mm, ss, ns, loc)
	default:
		return t
	}
}
