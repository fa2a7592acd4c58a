package recurrence

import (
	"context"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

type fakeStore struct {
	next       time.Time
	remaining  *int
	lastRun    Run
	rescheds   int
	completes  int
	setCalls   int
	setValue   int
	calls      []string
	failWrites bool
}

func (f *fakeStore) Complete(_ context.Context, _ string, at time.Time, summary string) error {
	if f.failWrites {
		return errors.New("connection reset")
	}
	f.completes++
	f.lastRun = Run{At: at, Summary: summary}
	f.calls = append(f.calls, "complete")
	return nil
}

func (f *fakeStore) Reschedule(_ context.Context, _ string, run Run, next time.Time, remaining *int) error {
	if f.failWrites {
		return errors.New("connection reset")
	}
	f.rescheds++
	f.lastRun = run
	f.next = next
	f.remaining = remaining
	f.calls = append(f.calls, "reschedule")
	return nil
}

func (f *fakeStore) SetRemaining(_ context.Context, _ string, remaining int) error {
	if f.failWrites {
		return errors.New("connection reset")
	}
	f.setCalls++
	f.setValue = remaining
	f.calls = append(f.calls, "set_remaining")
	return nil
}

func intPtr(n int) *int { return &n }

func TestPlanner_DailyCountThree(t *testing.T) {
	ctx := context.Background()
	p := NewPlanner()
	store := &fakeStore{}
	s := domain.Schedule{
		ID:             "sch-1",
		ScheduledAt:    time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		Timezone:       "UTC",
		RepeatInterval: domain.RepeatDaily,
		RepeatCount:    intPtr(3),
	}

	run := Run{At: s.ScheduledAt, Summary: "sent=1 failed=0"}

	// First completion.
	again, err := p.Apply(ctx, store, s, run)
	require.NoError(t, err)
	assert.True(t, again)
	assert.Equal(t, time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), store.next)
	require.NotNil(t, store.remaining)
	assert.Equal(t, 2, *store.remaining)
	assert.Equal(t, run, store.lastRun)
	assert.Zero(t, store.completes)

	// Second completion.
	s.ScheduledAt, s.RepeatCount = store.next, store.remaining
	again, err = p.Apply(ctx, store, s, run)
	require.NoError(t, err)
	assert.True(t, again)
	assert.Equal(t, 1, *store.remaining)

	// Third completion exhausts the count.
	s.ScheduledAt, s.RepeatCount = store.next, store.remaining
	again, err = p.Apply(ctx, store, s, run)
	require.NoError(t, err)
	assert.False(t, again)
	assert.Equal(t, 2, store.rescheds)
	assert.Equal(t, 1, store.setCalls)
	assert.Equal(t, 0, store.setValue)
	assert.Equal(t, []string{"reschedule", "reschedule", "complete", "set_remaining"}, store.calls)
}

func TestPlanner_NoInterval(t *testing.T) {
	store := &fakeStore{}
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	again, err := NewPlanner().Apply(context.Background(), store, domain.Schedule{ID: "once"}, Run{At: at, Summary: "sent=2 failed=0"})
	require.NoError(t, err)
	assert.False(t, again)
	assert.Zero(t, store.rescheds)
	assert.Zero(t, store.setCalls)
	assert.Equal(t, 1, store.completes)
	assert.Equal(t, Run{At: at, Summary: "sent=2 failed=0"}, store.lastRun)
}

func TestPlanner_Unbounded(t *testing.T) {
	p := NewPlanner()
	plan, ok := p.Next(domain.Schedule{
		ScheduledAt:    time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC),
		RepeatInterval: domain.RepeatWeekly,
	})
	require.True(t, ok)
	assert.Nil(t, plan.Remaining)
	assert.Equal(t, time.Date(2024, 3, 8, 8, 30, 0, 0, time.UTC), plan.Next)
}

func TestPlanner_ApplyStoreError(t *testing.T) {
	_, err := NewPlanner().Apply(context.Background(), &fakeStore{failWrites: true}, domain.Schedule{
		ID:             "sch-1",
		ScheduledAt:    time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		RepeatInterval: domain.RepeatDaily,
	}, Run{})
	assert.Error(t, err)
}

func TestAdvance(t *testing.T) {
	saoPaulo, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	newYork, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	tests := []struct {
		name     string
		from     time.Time
		interval domain.RepeatInterval
		loc      *time.Location
		want     time.Time
	}{
		{
			name:     "monthly clamps to leap february",
			from:     time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC),
			interval: domain.RepeatMonthly,
			loc:      time.UTC,
			want:     time.Date(2024, 2, 29, 9, 0, 0, 0, time.UTC),
		},
		{
			name:     "monthly rolls the year",
			from:     time.Date(2024, 12, 15, 9, 0, 0, 0, time.UTC),
			interval: domain.RepeatMonthly,
			loc:      time.UTC,
			want:     time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC),
		},
		{
			name:     "daily uses schedule timezone",
			from:     time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC), // 10:00 in Sao Paulo
			interval: domain.RepeatDaily,
			loc:      saoPaulo,
			want:     time.Date(2024, 1, 2, 10, 0, 0, 0, saoPaulo),
		},
		{
			name:     "daily keeps wall clock across DST start",
			from:     time.Date(2024, 3, 9, 10, 0, 0, 0, newYork),
			interval: domain.RepeatDaily,
			loc:      newYork,
			want:     time.Date(2024, 3, 10, 10, 0, 0, 0, newYork),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Advance(tt.from, tt.interval, tt.loc)
			assert.True(t, tt.want.Equal(got), "got %s want %s", got, tt.want)
		})
	}

	// DST start shortens the day by an hour.
	from := time.Date(2024, 3, 9, 10, 0, 0, 0, newYork)
	assert.Equal(t, 23*time.Hour, Advance(from, domain.RepeatDaily, newYork).Sub(from))
}
