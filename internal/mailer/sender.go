// Package mailer contains the mail provider adapters used by the dispatch
// executor:
//   - sendgrid.go: SendGrid v3 Mail Send (batch-capable)
//   - ses.go:      AWS SES v2
//   - resend.go:   Resend API (batch-capable)
//   - log.go:      dry-run sender that only logs
package mailer

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrThrottled marks a provider rate-limit response. Callers may retry
	// the affected messages after a backoff.
	ErrThrottled = errors.New("provider throttled")
	// ErrNotConfigured is returned by adapters missing credentials.
	ErrNotConfigured = errors.New("mail provider not configured")
)

// Message is one rendered email for one recipient.
type Message struct {
	To        string
	FromName  string
	FromEmail string
	ReplyTo   string
	Subject   string
	HTML      string

	ScheduleID string
	CampaignID string
	ContactID  string
}

// From formats the From header.
func (m *Message) From() string {
	if m.FromName == "" {
		return m.FromEmail
	}
	return m.FromName + " <" + m.FromEmail + ">"
}

// Result is the provider's acceptance of one message.
type Result struct {
	MessageID string
	Provider  string
	SentAt    time.Time
}

// Sender delivers one message at a time. A non-nil error means the message
// was not accepted; throttling wraps ErrThrottled.
type Sender interface {
	Send(ctx context.Context, msg *Message) (*Result, error)
}

// BatchSender is implemented by adapters that accept several recipients in
// one API call.
type BatchSender interface {
	Sender
	SendBatch(ctx context.Context, msgs []Message) (*BatchResult, error)
	MaxBatchSize() int
}

// ItemResult is the outcome for one message of a batch, in input order.
type ItemResult struct {
	MessageID string
	Err       error
}

// BatchResult holds per-message outcomes. A non-nil error from SendBatch
// applies to every message instead.
type BatchResult struct {
	Provider string
	Items    []ItemResult
}

// Accepted counts the messages without an error.
func (b *BatchResult) Accepted() int {
	n := 0
	for _, it := range b.Items {
		if it.Err == nil {
			n++
		}
	}
	return n
}
