// Package scheduler runs the timer-driven loop that finds due campaign
// schedules, claims them and hands them to the dispatch executor.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/campaign-dispatch/internal/dispatch"
	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/pkg/distlock"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

const (
	// DefaultInterval is how often the loop looks for due schedules.
	DefaultInterval = 2 * time.Minute
	// DefaultMaxProcessingAge is how long a claim may stay in processing
	// before another tick may reclaim it.
	DefaultMaxProcessingAge = 15 * time.Minute
	// DefaultBatchLimit caps the schedules handled by one tick.
	DefaultBatchLimit = 50
)

// ErrTickInProgress is returned when a tick is requested while this
// poller's previous tick is still running.
var ErrTickInProgress = errors.New("tick already in progress")

// ScheduleStore is the schedule access the poller needs.
type ScheduleStore interface {
	// ListDue returns pending schedules due at now and processing schedules
	// claimed before staleBefore, oldest first.
	ListDue(ctx context.Context, now, staleBefore time.Time, limit int) ([]domain.Schedule, error)
	// Claim atomically moves a pending or stale schedule to processing and
	// returns it, or returns nil when another claimer won.
	Claim(ctx context.Context, id string, now, staleBefore time.Time) (*domain.Schedule, error)
	Fail(ctx context.Context, id string, at time.Time, reason, summary string) error
}

// Executor dispatches one claimed schedule.
type Executor interface {
	Execute(ctx context.Context, s domain.Schedule) (*dispatch.Outcome, error)
}

// Options tunes the poller. Zero values take the defaults above.
type Options struct {
	Interval         time.Duration
	MaxProcessingAge time.Duration
	BatchLimit       int
	// Lock, when set, keeps concurrent poller processes from ticking at the
	// same time. Claims stay correct without it.
	Lock  distlock.DistLock
	Clock func() time.Time
}

// TickResult reports one tick. Processed counts schedules that delivered at
// least one message; Completed counts every schedule finished as completed,
// including those with an empty audience.
type TickResult struct {
	Total     int  `json:"total"`
	Processed int  `json:"processed"`
	Completed int  `json:"completed"`
	Errors    int  `json:"errors"`
	Sent      int  `json:"sent"`
	Skipped   bool `json:"skipped"`
}

// Poller owns the polling loop and its busy flag.
type Poller struct {
	store ScheduleStore
	exec  Executor
	opts  Options
	log   *logger.Logger

	busy atomic.Bool

	// Stats
	ticks     int64
	processed int64
	failures  int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewPoller creates a poller.
func NewPoller(store ScheduleStore, exec Executor, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxProcessingAge <= 0 {
		opts.MaxProcessingAge = DefaultMaxProcessingAge
	}
	if opts.BatchLimit <= 0 {
		opts.BatchLimit = DefaultBatchLimit
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Poller{store: store, exec: exec, opts: opts, log: logger.Named("poller")}
}

// Start runs one tick immediately and then one per interval until Stop.
func (p *Poller) Start() error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("poller already running")
	}
	p.running = true
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.mu.Unlock()

	p.log.Info("starting", "interval", p.opts.Interval.String(), "max_processing_age", p.opts.MaxProcessingAge.String())

	p.wg.Add(1)
	go p.loop()
	return nil
}

// Stop cancels the loop and waits for the in-flight tick. The schedule being
// dispatched at that moment is finished; remaining due schedules are left
// for the next process.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.log.Info("stopping")
	p.cancel()
	p.wg.Wait()
	p.log.Info("stopped",
		"ticks", atomic.LoadInt64(&p.ticks),
		"processed", atomic.LoadInt64(&p.processed),
		"errors", atomic.LoadInt64(&p.failures))
}

func (p *Poller) loop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	p.runTick()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.runTick()
		}
	}
}

func (p *Poller) runTick() {
	res, err := p.Tick(p.ctx)
	switch {
	case errors.Is(err, ErrTickInProgress):
		p.log.Debug("previous tick still running, skipping")
	case err != nil:
		p.log.Error("tick failed", "error", err.Error())
	case res.Total > 0:
		p.log.Info("tick complete",
			"total", res.Total, "processed", res.Processed,
			"completed", res.Completed, "errors", res.Errors, "sent", res.Sent)
	}
}

// Tick performs one polling pass. Schedules are dispatched sequentially. A
// cancelled ctx stops the pass between schedules but never interrupts the
// schedule being dispatched.
func (p *Poller) Tick(ctx context.Context) (TickResult, error) {
	if !p.busy.CompareAndSwap(false, true) {
		return TickResult{Skipped: true}, ErrTickInProgress
	}
	defer p.busy.Store(false)
	atomic.AddInt64(&p.ticks, 1)

	if p.opts.Lock != nil {
		ok, err := p.opts.Lock.Acquire(ctx)
		switch {
		case err != nil:
			p.log.Warn("tick lock unavailable, continuing without it", "error", err.Error())
		case !ok:
			p.log.Debug("another process holds the tick lock")
			return TickResult{Skipped: true}, nil
		default:
			defer func() {
				if err := p.opts.Lock.Release(context.WithoutCancel(ctx)); err != nil {
					p.log.Warn("tick lock release failed", "error", err.Error())
				}
			}()
		}
	}

	now := p.opts.Clock()
	staleBefore := now.Add(-p.opts.MaxProcessingAge)
	due, err := p.store.ListDue(ctx, now, staleBefore, p.opts.BatchLimit)
	if err != nil {
		return TickResult{}, fmt.Errorf("list due schedules: %w", err)
	}

	res := TickResult{Total: len(due)}
	for _, s := range due {
		if ctx.Err() != nil {
			break
		}
		claimed, err := p.store.Claim(ctx, s.ID, now, staleBefore)
		if err != nil {
			res.Errors++
			p.log.Error("claim failed", "schedule_id", s.ID, "error", err.Error())
			continue
		}
		if claimed == nil {
			p.log.Debug("schedule claimed elsewhere", "schedule_id", s.ID)
			continue
		}
		if s.Status == domain.ScheduleProcessing {
			p.log.Warn("reclaimed stale schedule", "schedule_id", s.ID, "attempts", claimed.Attempts)
		}

		out, err := p.execute(context.WithoutCancel(ctx), *claimed)
		switch {
		case err != nil || out.Status == domain.ScheduleFailed:
			res.Errors++
			atomic.AddInt64(&p.failures, 1)
		case out.Status == domain.ScheduleCompleted:
			res.Completed++
			if out.Sent > 0 {
				res.Processed++
				atomic.AddInt64(&p.processed, 1)
			}
		}
		if out != nil {
			res.Sent += out.Sent
		}
	}
	return res, nil
}

// execute runs the executor, turning a panic into a failed schedule.
func (p *Poller) execute(ctx context.Context, s domain.Schedule) (out *dispatch.Outcome, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		err = fmt.Errorf("dispatch panic: %v", r)
		out = &dispatch.Outcome{ScheduleID: s.ID, Status: domain.ScheduleFailed, LastError: err.Error()}
		p.log.Error("dispatch panicked", "schedule_id", s.ID, "panic", fmt.Sprint(r))
		if ferr := p.store.Fail(ctx, s.ID, p.opts.Clock(), err.Error(), out.Summary()); ferr != nil {
			p.log.Error("fail schedule after panic", "schedule_id", s.ID, "error", ferr.Error())
		}
	}()

	out, err = p.exec.Execute(ctx, s)
	if err != nil {
		p.log.Warn("dispatch aborted", "schedule_id", s.ID, "error", err.Error())
	}
	if out == nil {
		out = &dispatch.Outcome{ScheduleID: s.ID, Status: domain.ScheduleFailed}
	}
	return out, err
}
