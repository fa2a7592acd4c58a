// Package memory is an in-memory implementation of every store interface
// the dispatch path uses. It backs tests and local dry runs. Every method
// is safe for concurrent use; returned values are copies.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ignite/campaign-dispatch/internal/audience"
	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/recurrence"
)

// Store holds all entities behind one mutex.
type Store struct {
	mu           sync.Mutex
	contacts     []domain.Contact
	campaigns    map[string]domain.Campaign
	templates    map[string]domain.Template
	segments     map[string]domain.Segment
	schedules    map[string]domain.Schedule
	suppressions map[string]domain.Suppression // owner_id + "\x00" + email
	deliveries   []domain.DeliveryLog
}

// New creates an empty store.
func New() *Store {
	return &Store{
		campaigns:    make(map[string]domain.Campaign),
		templates:    make(map[string]domain.Template),
		segments:     make(map[string]domain.Segment),
		schedules:    make(map[string]domain.Schedule),
		suppressions: make(map[string]domain.Suppression),
	}
}

func suppressionKey(ownerID, email string) string {
	return ownerID + "\x00" + domain.NormalizeEmail(email)
}

// PutContact appends a contact; store order is insertion order.
func (s *Store) PutContact(c domain.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Tags = domain.NormalizeTags(c.Tags)
	if c.Status == "" {
		c.Status = domain.ContactActive
	}
	s.contacts = append(s.contacts, c)
}

// PutCampaign inserts or replaces a campaign.
func (s *Store) PutCampaign(c domain.Campaign) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns[c.ID] = c
}

// PutTemplate inserts or replaces a template.
func (s *Store) PutTemplate(t domain.Template) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.ID] = t
}

// PutSegment inserts or replaces a segment.
func (s *Store) PutSegment(seg domain.Segment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments[seg.ID] = seg
}

// PutSchedule inserts or replaces a schedule.
func (s *Store) PutSchedule(sch domain.Schedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sch.Status == "" {
		sch.Status = domain.SchedulePending
	}
	s.schedules[sch.ID] = sch
}

// Suppress adds an address to the owner's suppression list.
func (s *Store) Suppress(_ context.Context, sup domain.Suppression) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sup.Email = domain.NormalizeEmail(sup.Email)
	s.suppressions[suppressionKey(sup.OwnerID, sup.Email)] = sup
	return nil
}

// Schedule returns a snapshot of one schedule.
func (s *Store) Schedule(id string) (domain.Schedule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sch, ok := s.schedules[id]
	return copySchedule(sch), ok
}

// Campaign returns a snapshot of one campaign.
func (s *Store) Campaign(id string) (domain.Campaign, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	return c, ok
}

// Deliveries returns the delivery log rows of one schedule in append order.
func (s *Store) Deliveries(scheduleID string) []domain.DeliveryLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.DeliveryLog
	for _, d := range s.deliveries {
		if d.ScheduleID == scheduleID {
			out = append(out, d)
		}
	}
	return out
}

// GetCampaign implements dispatch.CampaignStore.
func (s *Store) GetCampaign(_ context.Context, ownerID, id string) (*domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok || c.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	c.Tags = append([]string(nil), c.Tags...)
	return &c, nil
}

// SetCampaignStatus implements dispatch.CampaignStore.
func (s *Store) SetCampaignStatus(_ context.Context, ownerID, id string, status domain.CampaignStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok || c.OwnerID != ownerID {
		return domain.ErrNotFound
	}
	c.Status = status
	c.UpdatedAt = time.Now()
	s.campaigns[id] = c
	return nil
}

// GetTemplate implements dispatch.TemplateStore.
func (s *Store) GetTemplate(_ context.Context, ownerID, id string) (*domain.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[id]
	if !ok || t.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	return &t, nil
}

// GetSegment implements audience.SegmentStore.
func (s *Store) GetSegment(_ context.Context, ownerID, id string) (*domain.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seg, ok := s.segments[id]
	if !ok || seg.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	seg.Tags = append([]string(nil), seg.Tags...)
	return &seg, nil
}

// ListContacts implements audience.ContactStore.
func (s *Store) ListContacts(_ context.Context, ownerID string, tags []string, matchAll bool) ([]domain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Contact
	for _, c := range s.contacts {
		if c.OwnerID != ownerID || c.Status != domain.ContactActive {
			continue
		}
		if !audience.Matches(c.Tags, tags, matchAll) {
			continue
		}
		c.Tags = append([]string(nil), c.Tags...)
		out = append(out, c)
	}
	return out, nil
}

// SuppressedEmails implements audience.SuppressionStore.
func (s *Store) SuppressedEmails(_ context.Context, ownerID string, emails []string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool)
	for _, e := range emails {
		if _, ok := s.suppressions[suppressionKey(ownerID, e)]; ok {
			out[e] = true
		}
	}
	return out, nil
}

// AppendDeliveries implements dispatch.DeliveryLogStore.
func (s *Store) AppendDeliveries(_ context.Context, entries []domain.DeliveryLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, entries...)
	return nil
}

// ListDue implements scheduler.ScheduleStore: pending schedules due at now
// and processing schedules claimed before staleBefore, oldest first.
func (s *Store) ListDue(_ context.Context, now, staleBefore time.Time, limit int) ([]domain.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Schedule
	for _, sch := range s.schedules {
		if isDue(sch, now) || isStale(sch, staleBefore) {
			out = append(out, copySchedule(sch))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func isDue(sch domain.Schedule, now time.Time) bool {
	return sch.Status == domain.SchedulePending && !sch.ScheduledAt.After(now)
}

func isStale(sch domain.Schedule, staleBefore time.Time) bool {
	return sch.Status == domain.ScheduleProcessing && sch.ClaimedAt != nil && sch.ClaimedAt.Before(staleBefore)
}

// Claim implements scheduler.ScheduleStore. Like the SQL conditional
// update it succeeds only for a pending or stale processing schedule; the
// check and the write happen under one lock. It returns nil when lost.
func (s *Store) Claim(_ context.Context, id string, now, staleBefore time.Time) (*domain.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sch, ok := s.schedules[id]
	if !ok {
		return nil, nil
	}
	if sch.Status != domain.SchedulePending && !isStale(sch, staleBefore) {
		return nil, nil
	}
	claimed := now
	sch.Status = domain.ScheduleProcessing
	sch.ClaimedAt = &claimed
	sch.Attempts++
	s.schedules[id] = sch
	out := copySchedule(sch)
	return &out, nil
}

func (s *Store) update(id string, fn func(*domain.Schedule)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sch, ok := s.schedules[id]
	if !ok {
		return domain.ErrNotFound
	}
	fn(&sch)
	s.schedules[id] = sch
	return nil
}

// Complete implements recurrence.Store.
func (s *Store) Complete(_ context.Context, id string, at time.Time, summary string) error {
	return s.update(id, func(sch *domain.Schedule) {
		sch.Status = domain.ScheduleCompleted
		sch.ExecutedAt = &at
		sch.ErrorMessage = ""
		sch.LastSummary = summary
	})
}

// Fail implements dispatch.ScheduleStore.
func (s *Store) Fail(_ context.Context, id string, at time.Time, reason, summary string) error {
	return s.update(id, func(sch *domain.Schedule) {
		sch.Status = domain.ScheduleFailed
		sch.ExecutedAt = &at
		sch.ErrorMessage = reason
		sch.LastSummary = summary
	})
}

// Release implements dispatch.ScheduleStore.
func (s *Store) Release(_ context.Context, id string, reason string) error {
	return s.update(id, func(sch *domain.Schedule) {
		if sch.Status != domain.ScheduleProcessing {
			return
		}
		sch.Status = domain.SchedulePending
		sch.ClaimedAt = nil
		sch.ErrorMessage = reason
	})
}

// Touch implements dispatch.ScheduleStore.
func (s *Store) Touch(_ context.Context, id string, at time.Time) error {
	return s.update(id, func(sch *domain.Schedule) {
		if sch.Status == domain.ScheduleProcessing {
			sch.ClaimedAt = &at
		}
	})
}

// Reschedule implements recurrence.Store.
func (s *Store) Reschedule(_ context.Context, id string, run recurrence.Run, next time.Time, remaining *int) error {
	return s.update(id, func(sch *domain.Schedule) {
		executed := run.At
		sch.ExecutedAt = &executed
		sch.LastSummary = run.Summary
		sch.Status = domain.SchedulePending
		sch.ScheduledAt = next
		sch.RepeatCount = copyInt(remaining)
		sch.ClaimedAt = nil
		sch.ErrorMessage = ""
		sch.Attempts = 0
	})
}

// SetRemaining implements recurrence.Store.
func (s *Store) SetRemaining(_ context.Context, id string, remaining int) error {
	return s.update(id, func(sch *domain.Schedule) {
		sch.RepeatCount = &remaining
	})
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copySchedule(sch domain.Schedule) domain.Schedule {
	sch.TagFilter = append([]string(nil), sch.TagFilter...)
	sch.RepeatCount = copyInt(sch.RepeatCount)
	if sch.ClaimedAt != nil {
		t := *sch.ClaimedAt
		sch.ClaimedAt = &t
	}
	if sch.ExecutedAt != nil {
		t := *sch.ExecutedAt
		sch.ExecutedAt = &t
	}
	return sch
}
