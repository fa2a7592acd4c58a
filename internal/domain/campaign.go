package domain

import (
	"strings"
	"time"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSending   CampaignStatus = "sending"
	CampaignSent      CampaignStatus = "sent"
	CampaignFailed    CampaignStatus = "failed"
)

// Campaign represents an email campaign with its content and target filter.
type Campaign struct {
	ID         string         `json:"id" db:"id"`
	OwnerID    string         `json:"owner_id" db:"owner_id"`
	Name       string         `json:"name" db:"name"`
	Subject    string         `json:"subject" db:"subject"`
	FromName   string         `json:"from_name" db:"from_name"`
	FromEmail  string         `json:"from_email" db:"from_email"`
	ReplyTo    string         `json:"reply_to" db:"reply_to"`
	HTML       string         `json:"html_content" db:"html_content"`
	TemplateID *string        `json:"template_id" db:"template_id"`
	SegmentID  *string        `json:"segment_id" db:"segment_id"`
	Tags       []string       `json:"tags" db:"tags"`
	Locale     string         `json:"locale" db:"locale"`
	Status     CampaignStatus `json:"status" db:"status"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at" db:"updated_at"`
}

// MissingFields lists the mandatory delivery fields that are empty once the
// body has been resolved. An empty result means the campaign can be sent.
func (c *Campaign) MissingFields(body string) []string {
	var missing []string
	if strings.TrimSpace(c.Subject) == "" {
		missing = append(missing, "subject")
	}
	if strings.TrimSpace(c.FromEmail) == "" {
		missing = append(missing, "from_email")
	}
	if strings.TrimSpace(body) == "" {
		missing = append(missing, "body")
	}
	return missing
}

// Segment is a named, stored tag filter owned by a user.
type Segment struct {
	ID        string    `json:"id" db:"id"`
	OwnerID   string    `json:"owner_id" db:"owner_id"`
	Name      string    `json:"name" db:"name"`
	Tags      []string  `json:"tags" db:"tags"`
	MatchAll  bool      `json:"match_all" db:"match_all"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
