package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-dispatch/internal/pkg/httpretry"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
	"github.com/ignite/campaign-dispatch/internal/pkg/retry"
)

// SendGridMaxBatch is the personalizations limit of one v3 mail/send call.
const SendGridMaxBatch = 1000

// SendGridSender sends through the SendGrid v3 Mail Send API. Messages of a
// batch that share sender and body go out in one request with one
// personalization each.
type SendGridSender struct {
	apiKey   string
	baseURL  string
	maxBatch int
	client   httpretry.HTTPDoer
	log      *logger.Logger
}

// NewSendGridSender creates a SendGrid sender. Transient 5xx responses are
// retried by the transport; 429 is surfaced as ErrThrottled.
func NewSendGridSender(apiKey, baseURL string, timeout time.Duration) *SendGridSender {
	if baseURL == "" {
		baseURL = "https://api.sendgrid.com"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	policy := retry.Policy{MaxRetries: 2, BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second, Jitter: true}
	return &SendGridSender{
		apiKey:   apiKey,
		baseURL:  baseURL,
		maxBatch: SendGridMaxBatch,
		client:   httpretry.NewRetryClient(&http.Client{Timeout: timeout}, policy),
		log:      logger.Named("sendgrid"),
	}
}

// MaxBatchSize returns the maximum personalizations per batch.
func (s *SendGridSender) MaxBatchSize() int { return s.maxBatch }

// Send delivers a single message.
func (s *SendGridSender) Send(ctx context.Context, msg *Message) (*Result, error) {
	res, err := s.SendBatch(ctx, []Message{*msg})
	if err != nil {
		return nil, err
	}
	it := res.Items[0]
	if it.Err != nil {
		return nil, it.Err
	}
	return &Result{MessageID: it.MessageID, Provider: "sendgrid", SentAt: time.Now()}, nil
}

type sgAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sgPersonalization struct {
	To         []sgAddress       `json:"to"`
	Subject    string            `json:"subject"`
	CustomArgs map[string]string `json:"custom_args,omitempty"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sgPayload struct {
	Personalizations []sgPersonalization `json:"personalizations"`
	From             sgAddress           `json:"from"`
	ReplyTo          *sgAddress          `json:"reply_to,omitempty"`
	Content          []sgContent         `json:"content"`
}

type sgGroup struct {
	indexes []int
}

// SendBatch sends msgs and reports one ItemResult per message. Once a
// request is throttled the remaining groups are not attempted and are
// reported as throttled too.
func (s *SendGridSender) SendBatch(ctx context.Context, msgs []Message) (*BatchResult, error) {
	if s.apiKey == "" {
		return nil, fmt.Errorf("sendgrid: %w", ErrNotConfigured)
	}
	if len(msgs) > s.maxBatch {
		return nil, fmt.Errorf("sendgrid: batch size %d exceeds max of %d", len(msgs), s.maxBatch)
	}
	result := &BatchResult{Provider: "sendgrid", Items: make([]ItemResult, len(msgs))}
	if len(msgs) == 0 {
		return result, nil
	}

	groups := groupByContent(msgs)
	var throttled error
	for _, g := range groups {
		if throttled != nil {
			for _, i := range g.indexes {
				result.Items[i].Err = throttled
			}
			continue
		}
		msgID, err := s.post(ctx, msgs, g.indexes)
		for n, i := range g.indexes {
			if err != nil {
				result.Items[i].Err = err
				continue
			}
			result.Items[i].MessageID = fmt.Sprintf("%s-%d", msgID, n)
		}
		if errors.Is(err, ErrThrottled) {
			throttled = err
		}
	}

	s.log.Debug("batch sent", "messages", len(msgs), "requests", len(groups), "accepted", result.Accepted())
	return result, nil
}

func groupByContent(msgs []Message) []sgGroup {
	var groups []sgGroup
	pos := make(map[string]int)
	for i, m := range msgs {
		key := m.FromEmail + "\x00" + m.FromName + "\x00" + m.ReplyTo + "\x00" + m.HTML
		if g, ok := pos[key]; ok {
			groups[g].indexes = append(groups[g].indexes, i)
			continue
		}
		pos[key] = len(groups)
		groups = append(groups, sgGroup{indexes: []int{i}})
	}
	return groups
}

func (s *SendGridSender) post(ctx context.Context, msgs []Message, indexes []int) (string, error) {
	first := msgs[indexes[0]]
	payload := sgPayload{
		From:    sgAddress{Email: first.FromEmail, Name: first.FromName},
		Content: []sgContent{{Type: "text/html", Value: first.HTML}},
	}
	if first.ReplyTo != "" {
		payload.ReplyTo = &sgAddress{Email: first.ReplyTo}
	}
	for _, i := range indexes {
		m := msgs[i]
		payload.Personalizations = append(payload.Personalizations, sgPersonalization{
			To:      []sgAddress{{Email: m.To}},
			Subject: m.Subject,
			CustomArgs: map[string]string{
				"schedule_id": m.ScheduleID,
				"campaign_id": m.CampaignID,
				"contact_id":  m.ContactID,
			},
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("sendgrid: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("sendgrid: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sendgrid: send: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("sendgrid: %w: %s", ErrThrottled, respBody)
	case resp.StatusCode >= 400:
		return "", fmt.Errorf("sendgrid: status %d: %s", resp.StatusCode, respBody)
	}

	msgID := resp.Header.Get("X-Message-Id")
	if msgID == "" {
		msgID = uuid.New().String()
	}
	return msgID, nil
}
