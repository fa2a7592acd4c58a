// Package audience resolves the recipients of a campaign: the owner's active
// contacts selected by a segment or tag filter, minus suppressed addresses.
package audience

import (
	"context"
	"errors"
	"fmt"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

var (
	// ErrResolution wraps every failure to produce an audience.
	ErrResolution = errors.New("audience resolution failed")
	// ErrSegmentNotFound means the filter names a segment the owner does not have.
	ErrSegmentNotFound = errors.New("segment not found")
)

// ContactStore lists contacts for an owner. With no tags every contact is
// returned; otherwise contacts sharing any tag, or all tags when matchAll.
type ContactStore interface {
	ListContacts(ctx context.Context, ownerID string, tags []string, matchAll bool) ([]domain.Contact, error)
}

// SegmentStore loads stored tag filters. A missing segment is domain.ErrNotFound.
type SegmentStore interface {
	GetSegment(ctx context.Context, ownerID, id string) (*domain.Segment, error)
}

// SuppressionStore reports which of the given lower-cased emails are suppressed.
type SuppressionStore interface {
	SuppressedEmails(ctx context.Context, ownerID string, emails []string) (map[string]bool, error)
}

// Filter selects contacts. SegmentID wins over Tags; neither means everyone.
type Filter struct {
	SegmentID string
	Tags      []string
	MatchAll  bool
}

// Resolver implements audience resolution over the three stores.
type Resolver struct {
	contacts     ContactStore
	segments     SegmentStore
	suppressions SuppressionStore
	log          *logger.Logger
}

// NewResolver creates a Resolver.
func NewResolver(contacts ContactStore, segments SegmentStore, suppressions SuppressionStore) *Resolver {
	return &Resolver{
		contacts:     contacts,
		segments:     segments,
		suppressions: suppressions,
		log:          logger.Named("audience"),
	}
}

// Resolve returns the owner's deliverable contacts for f, in store order,
// deduplicated by email with the first occurrence kept. Contacts whose
// address does not parse are skipped.
func (r *Resolver) Resolve(ctx context.Context, ownerID string, f Filter) ([]domain.Contact, error) {
	tags, matchAll := domain.NormalizeTags(f.Tags), f.MatchAll
	if f.SegmentID != "" {
		seg, err := r.segments.GetSegment(ctx, ownerID, f.SegmentID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w: %s", ErrResolution, ErrSegmentNotFound, f.SegmentID)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: load segment %s: %w", ErrResolution, f.SegmentID, err)
		}
		tags, matchAll = domain.NormalizeTags(seg.Tags), seg.MatchAll
	}

	candidates, err := r.contacts.ListContacts(ctx, ownerID, tags, matchAll)
	if err != nil {
		return nil, fmt.Errorf("%w: list contacts: %w", ErrResolution, err)
	}

	seen := make(map[string]bool, len(candidates))
	unique := make([]domain.Contact, 0, len(candidates))
	emails := make([]string, 0, len(candidates))
	malformed := 0
	for _, c := range candidates {
		email := domain.NormalizeEmail(c.Email)
		if c.OwnerID != ownerID || c.Status != domain.ContactActive || email == "" || seen[email] {
			continue
		}
		if !Matches(c.Tags, tags, matchAll) {
			continue
		}
		if !domain.ValidEmail(email) {
			malformed++
			continue
		}
		seen[email] = true
		c.Email = email
		unique = append(unique, c)
		emails = append(emails, email)
	}
	if malformed > 0 {
		r.log.Warn("skipping malformed emails", "owner_id", ownerID, "count", malformed)
	}
	if len(unique) == 0 {
		return nil, nil
	}

	suppressed, err := r.suppressions.SuppressedEmails(ctx, ownerID, emails)
	if err != nil {
		return nil, fmt.Errorf("%w: load suppressions: %w", ErrResolution, err)
	}
	out := unique[:0]
	for _, c := range unique {
		if !suppressed[c.Email] {
			out = append(out, c)
		}
	}
	r.log.Debug("audience resolved",
		"owner_id", ownerID,
		"candidates", len(candidates),
		"suppressed", len(unique)-len(out),
		"recipients", len(out))
	return out, nil
}

// Matches applies tag filter semantics: an empty filter matches everything,
// otherwise any shared tag matches, or every filter tag when matchAll.
func Matches(contactTags, filter []string, matchAll bool) bool {
	if len(filter) == 0 {
		return true
	}
	have := make(map[string]bool, len(contactTags))
	for _, t := range domain.NormalizeTags(contactTags) {
		have[t] = true
	}
	for _, t := range filter {
		if have[t] && !matchAll {
			return true
		}
		if !have[t] && matchAll {
			return false
		}
	}
	return matchAll
}
