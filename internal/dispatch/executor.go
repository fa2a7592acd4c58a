// Package dispatch executes one claimed schedule: it loads the campaign,
// resolves the audience, renders and sends in batches, records one delivery
// log row per recipient and finalizes the schedule.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-dispatch/internal/audience"
	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/mailer"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
	"github.com/ignite/campaign-dispatch/internal/pkg/retry"
	"github.com/ignite/campaign-dispatch/internal/recurrence"
)

// CampaignStore loads campaigns and tracks their status.
type CampaignStore interface {
	GetCampaign(ctx context.Context, ownerID, id string) (*domain.Campaign, error)
	SetCampaignStatus(ctx context.Context, ownerID, id string, status domain.CampaignStatus) error
}

// TemplateStore loads templates.
type TemplateStore interface {
	GetTemplate(ctx context.Context, ownerID, id string) (*domain.Template, error)
}

// ScheduleStore finalizes claimed schedules.
type ScheduleStore interface {
	recurrence.Store
	Fail(ctx context.Context, id string, at time.Time, reason, summary string) error
	// Release hands a claimed schedule back to pending for the next tick.
	Release(ctx context.Context, id string, reason string) error
	// Touch refreshes the claim of a schedule still processing.
	Touch(ctx context.Context, id string, at time.Time) error
}

// DeliveryLogStore appends delivery rows.
type DeliveryLogStore interface {
	AppendDeliveries(ctx context.Context, entries []domain.DeliveryLog) error
}

// AudienceResolver resolves recipients.
type AudienceResolver interface {
	Resolve(ctx context.Context, ownerID string, f audience.Filter) ([]domain.Contact, error)
}

// Renderer renders a body for one recipient.
type Renderer interface {
	RenderIn(locale, body string, values map[string]string, types map[string]domain.VariableType) string
}

// Planner advances recurring schedules.
type Planner interface {
	Apply(ctx context.Context, store recurrence.Store, s domain.Schedule, run recurrence.Run) (bool, error)
}

// Stores groups the persistence collaborators of the executor.
type Stores struct {
	Campaigns  CampaignStore
	Templates  TemplateStore
	Schedules  ScheduleStore
	Deliveries DeliveryLogStore
}

// Options tunes the executor. Zero values take defaults.
type Options struct {
	BatchSize   int // default: sender's MaxBatchSize, else 100
	MaxRetries  int // throttle retries per batch, default 3
	Backoff     retry.Policy
	Locale      string // fallback when the campaign has none, default pt-BR
	MaxAttempts int    // claims before an audience failure becomes terminal, default 5
	Clock       func() time.Time
	Sleep       func(ctx context.Context, d time.Duration) error
}

// Outcome summarises one execution.
type Outcome struct {
	ScheduleID  string
	Status      domain.ScheduleStatus
	Recipients  int
	Sent        int
	Failed      int
	LastError   string
	Rescheduled bool
}

// Summary is the text persisted on the schedule.
func (o *Outcome) Summary() string {
	return fmt.Sprintf("sent=%d failed=%d", o.Sent, o.Failed)
}

// Executor runs claimed schedules.
type Executor struct {
	stores   Stores
	audience AudienceResolver
	renderer Renderer
	sender   mailer.Sender
	planner  Planner
	opts     Options
	log      *logger.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(stores Stores, resolver AudienceResolver, renderer Renderer, sender mailer.Sender, planner Planner, opts Options) *Executor {
	maxBatch := 100
	if bs, ok := sender.(mailer.BatchSender); ok && bs.MaxBatchSize() > 0 {
		maxBatch = bs.MaxBatchSize()
	}
	if opts.BatchSize <= 0 || opts.BatchSize > maxBatch {
		opts.BatchSize = maxBatch
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.Backoff == (retry.Policy{}) {
		opts.Backoff = retry.Default()
	}
	if opts.Locale == "" {
		opts.Locale = "pt-BR"
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = retry.Sleep
	}
	return &Executor{
		stores:   stores,
		audience: resolver,
		renderer: renderer,
		sender:   sender,
		planner:  planner,
		opts:     opts,
		log:      logger.Named("dispatch"),
	}
}

type content struct {
	subject string
	body    string
	types   map[string]domain.VariableType
}

// Execute dispatches one claimed schedule. A returned error means the
// schedule was aborted (failed, or released for another attempt) before any
// delivery; per-recipient failures are reported in the Outcome only. If ctx
// is cancelled between batches the schedule is left in processing.
func (e *Executor) Execute(ctx context.Context, s domain.Schedule) (*Outcome, error) {
	out := &Outcome{ScheduleID: s.ID, Status: domain.ScheduleProcessing}

	campaign, ct, err := e.loadCampaign(ctx, s)
	if err != nil {
		return e.abort(ctx, s, out, err)
	}

	contacts, err := e.audience.Resolve(ctx, s.OwnerID, filterFor(s, campaign))
	if err != nil {
		if errors.Is(err, audience.ErrSegmentNotFound) {
			err = &ConfigurationError{CampaignID: campaign.ID, Err: err}
		}
		return e.abort(ctx, s, out, err)
	}
	out.Recipients = len(contacts)

	if len(contacts) == 0 {
		e.log.Info("empty audience", "schedule_id", s.ID, "campaign_id", campaign.ID)
		return e.finish(ctx, s, campaign, out)
	}

	if err := e.stores.Campaigns.SetCampaignStatus(ctx, s.OwnerID, campaign.ID, domain.CampaignSending); err != nil {
		e.log.Warn("campaign status update failed", "schedule_id", s.ID, "error", err.Error())
	}

	locale := campaign.Locale
	if locale == "" {
		locale = e.opts.Locale
	}
	for n, batch := range Batches(contacts, e.opts.BatchSize) {
		if err := ctx.Err(); err != nil {
			e.log.Warn("dispatch interrupted", "schedule_id", s.ID, "batch", n, "sent", out.Sent)
			return out, err
		}
		msgs := make([]mailer.Message, len(batch))
		for i := range batch {
			msgs[i] = e.compose(s, campaign, ct, locale, &batch[i])
		}
		entries := e.deliverBatch(ctx, s, msgs)
		for _, en := range entries {
			if en.Outcome == domain.DeliverySent {
				out.Sent++
			} else {
				out.Failed++
				out.LastError = en.Error
			}
		}
		if err := e.stores.Deliveries.AppendDeliveries(ctx, entries); err != nil {
			e.log.Error("delivery log append failed", "schedule_id", s.ID, "batch", n, "error", err.Error())
		}
		// Keep the claim fresh so a long dispatch is not taken for stale.
		if err := e.stores.Schedules.Touch(ctx, s.ID, e.opts.Clock()); err != nil {
			e.log.Warn("claim refresh failed", "schedule_id", s.ID, "batch", n, "error", err.Error())
		}
	}
	return e.finish(ctx, s, campaign, out)
}

func (e *Executor) loadCampaign(ctx context.Context, s domain.Schedule) (*domain.Campaign, content, error) {
	campaign, err := e.stores.Campaigns.GetCampaign(ctx, s.OwnerID, s.CampaignID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, content{}, &ConfigurationError{CampaignID: s.CampaignID, Err: ErrCampaignNotFound}
	}
	if err != nil {
		return nil, content{}, fmt.Errorf("load campaign %s: %w", s.CampaignID, err)
	}

	c := content{subject: campaign.Subject, body: campaign.HTML}
	if campaign.TemplateID != nil && *campaign.TemplateID != "" {
		tpl, err := e.stores.Templates.GetTemplate(ctx, s.OwnerID, *campaign.TemplateID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, content{}, &ConfigurationError{CampaignID: campaign.ID, Err: fmt.Errorf("template %s not found", *campaign.TemplateID)}
		}
		if err != nil {
			return nil, content{}, fmt.Errorf("load template %s: %w", *campaign.TemplateID, err)
		}
		if c.body == "" {
			c.body = tpl.HTML
		}
		if c.subject == "" {
			c.subject = tpl.Subject
		}
		c.types = tpl.Variables
	}

	check := *campaign
	check.Subject = c.subject
	if missing := check.MissingFields(c.body); len(missing) > 0 {
		return nil, content{}, &ConfigurationError{CampaignID: campaign.ID, Missing: missing}
	}
	return campaign, c, nil
}

// filterFor picks the audience filter: the schedule's own tag override,
// then the campaign segment, then the campaign tags.
func filterFor(s domain.Schedule, c *domain.Campaign) audience.Filter {
	switch {
	case len(s.TagFilter) > 0:
		return audience.Filter{Tags: s.TagFilter}
	case c.SegmentID != nil && *c.SegmentID != "":
		return audience.Filter{SegmentID: *c.SegmentID}
	default:
		return audience.Filter{Tags: c.Tags}
	}
}

func (e *Executor) compose(s domain.Schedule, c *domain.Campaign, ct content, locale string, to *domain.Contact) mailer.Message {
	values := to.Values()
	return mailer.Message{
		To:         to.Email,
		FromName:   c.FromName,
		FromEmail:  c.FromEmail,
		ReplyTo:    c.ReplyTo,
		Subject:    e.renderer.RenderIn(locale, ct.subject, values, ct.types),
		HTML:       e.renderer.RenderIn(locale, ct.body, values, ct.types),
		ScheduleID: s.ID,
		CampaignID: c.ID,
		ContactID:  to.ID,
	}
}

type sendResult struct {
	messageID string
	err       error
	tried     bool
}

// deliverBatch sends msgs, retrying throttled messages with backoff up to
// MaxRetries, and returns one delivery log entry per message.
func (e *Executor) deliverBatch(ctx context.Context, s domain.Schedule, msgs []mailer.Message) []domain.DeliveryLog {
	entries := make([]domain.DeliveryLog, len(msgs))
	attempts := make([]int, len(msgs))
	pending := make([]int, len(msgs))
	for i := range pending {
		pending[i] = i
	}

	record := func(i int, messageID string, err error) {
		entries[i] = domain.DeliveryLog{
			ID:                uuid.New().String(),
			ScheduleID:        s.ID,
			CampaignID:        msgs[i].CampaignID,
			OwnerID:           s.OwnerID,
			Recipient:         msgs[i].To,
			Outcome:           domain.DeliverySent,
			ProviderMessageID: messageID,
			Attempts:          attempts[i],
			CreatedAt:         e.opts.Clock(),
		}
		if err != nil {
			derr := &DeliveryError{Recipient: msgs[i].To, Attempts: attempts[i], Err: err}
			entries[i].Outcome = domain.DeliveryFailed
			entries[i].Error = derr.Error()
			e.log.Warn("delivery failed", "schedule_id", s.ID, "recipient", msgs[i].To, "error", derr.Error())
		}
	}

	for attempt := 0; len(pending) > 0; attempt++ {
		results := e.send(ctx, msgs, pending)
		var throttled []int
		var throttleErr error
		for k, i := range pending {
			r := results[k]
			if r.tried {
				attempts[i]++
			}
			switch {
			case r.err == nil:
				record(i, r.messageID, nil)
			case errors.Is(r.err, mailer.ErrThrottled):
				throttled = append(throttled, i)
				throttleErr = r.err
			default:
				record(i, "", r.err)
			}
		}
		if len(throttled) == 0 {
			break
		}
		if attempt >= e.opts.MaxRetries {
			for _, i := range throttled {
				record(i, "", throttleErr)
			}
			break
		}
		delay := e.opts.Backoff.Delay(attempt + 1)
		e.log.Warn("provider throttled, backing off",
			"schedule_id", s.ID, "recipients", len(throttled), "attempt", attempt+1, "delay", delay.String())
		if err := e.opts.Sleep(ctx, delay); err != nil {
			for _, i := range throttled {
				record(i, "", fmt.Errorf("%w (gave up: %v)", throttleErr, err))
			}
			break
		}
		pending = throttled
	}
	return entries
}

// send submits the pending messages, as one batch when the provider
// supports it. Per-message providers stop at the first throttle and report
// the untried remainder as throttled.
func (e *Executor) send(ctx context.Context, msgs []mailer.Message, pending []int) []sendResult {
	results := make([]sendResult, len(pending))

	if bs, ok := e.sender.(mailer.BatchSender); ok {
		sub := make([]mailer.Message, len(pending))
		for k, i := range pending {
			sub[k] = msgs[i]
		}
		res, err := bs.SendBatch(ctx, sub)
		if err == nil && res == nil {
			err = errors.New("sender returned no batch result")
		}
		for k := range results {
			results[k].tried = true
			switch {
			case err != nil:
				results[k].err = err
			case k >= len(res.Items):
				results[k].err = fmt.Errorf("%s: missing result for message %d", res.Provider, k)
			default:
				results[k].messageID, results[k].err = res.Items[k].MessageID, res.Items[k].Err
			}
		}
		return results
	}

	var throttled error
	for k, i := range pending {
		if throttled != nil {
			results[k].err = throttled
			continue
		}
		results[k].tried = true
		res, err := e.safeSend(ctx, &msgs[i])
		if err != nil {
			results[k].err = err
			if errors.Is(err, mailer.ErrThrottled) {
				throttled = err
			}
			continue
		}
		results[k].messageID = res.MessageID
	}
	return results
}

func (e *Executor) safeSend(ctx context.Context, msg *mailer.Message) (res *mailer.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("sender panic: %v", r)
		}
	}()
	res, err = e.sender.Send(ctx, msg)
	if err == nil && res == nil {
		err = errors.New("sender returned no result")
	}
	return res, err
}

// finish fails the schedule when every delivery failed. Otherwise the
// planner completes it, rescheduling a recurring one in the same write.
func (e *Executor) finish(ctx context.Context, s domain.Schedule, c *domain.Campaign, out *Outcome) (*Outcome, error) {
	now := e.opts.Clock()
	if out.Recipients > 0 && out.Sent == 0 {
		out.Status = domain.ScheduleFailed
		reason := fmt.Sprintf("%v: %s", ErrAllFailed, out.LastError)
		if err := e.stores.Schedules.Fail(ctx, s.ID, now, reason, out.Summary()); err != nil {
			return out, fmt.Errorf("fail schedule %s: %w", s.ID, err)
		}
		e.setCampaignStatus(ctx, s, c.ID, domain.CampaignFailed)
		e.log.Error("schedule failed", "schedule_id", s.ID, "summary", out.Summary(), "error", out.LastError)
		return out, nil
	}

	out.Status = domain.ScheduleCompleted
	again, err := e.planner.Apply(ctx, e.stores.Schedules, s, recurrence.Run{At: now, Summary: out.Summary()})
	if err != nil {
		return out, err
	}
	out.Rescheduled = again
	if out.Recipients > 0 {
		e.setCampaignStatus(ctx, s, c.ID, domain.CampaignSent)
	}
	e.log.Info("schedule completed", "schedule_id", s.ID, "summary", out.Summary(), "rescheduled", again)
	return out, nil
}

func (e *Executor) setCampaignStatus(ctx context.Context, s domain.Schedule, campaignID string, status domain.CampaignStatus) {
	if err := e.stores.Campaigns.SetCampaignStatus(ctx, s.OwnerID, campaignID, status); err != nil {
		e.log.Warn("campaign status update failed", "schedule_id", s.ID, "status", string(status), "error", err.Error())
	}
}

// abort ends an execution that could not start delivering. Configuration
// errors and exhausted attempts fail the schedule; anything else releases
// the claim so the next tick tries again.
func (e *Executor) abort(ctx context.Context, s domain.Schedule, out *Outcome, cause error) (*Outcome, error) {
	reason := cause.Error()
	out.LastError = reason

	var cfgErr *ConfigurationError
	if !errors.As(cause, &cfgErr) && s.Attempts < e.opts.MaxAttempts {
		if err := e.stores.Schedules.Release(ctx, s.ID, reason); err != nil {
			return out, errors.Join(cause, fmt.Errorf("release schedule %s: %w", s.ID, err))
		}
		out.Status = domain.SchedulePending
		e.log.Warn("schedule released for retry", "schedule_id", s.ID, "attempts", s.Attempts, "error", reason)
		return out, cause
	}

	if err := e.stores.Schedules.Fail(ctx, s.ID, e.opts.Clock(), reason, out.Summary()); err != nil {
		return out, errors.Join(cause, fmt.Errorf("fail schedule %s: %w", s.ID, err))
	}
	out.Status = domain.ScheduleFailed
	e.log.Error("schedule failed", "schedule_id", s.ID, "error", reason)
	return out, cause
}
