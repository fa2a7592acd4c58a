package domain

import "time"

// DeliveryOutcome is the result of one send attempt for one recipient.
type DeliveryOutcome string

const (
	DeliverySent   DeliveryOutcome = "sent"
	DeliveryFailed DeliveryOutcome = "failed"
)

// DeliveryLog is an append-only record of a single recipient send.
type DeliveryLog struct {
	ID                string          `json:"id" db:"id"`
	ScheduleID        string          `json:"schedule_id" db:"schedule_id"`
	CampaignID        string          `json:"campaign_id" db:"campaign_id"`
	OwnerID           string          `json:"owner_id" db:"owner_id"`
	Recipient         string          `json:"recipient" db:"recipient"`
	Outcome           DeliveryOutcome `json:"outcome" db:"outcome"`
	ProviderMessageID string          `json:"provider_message_id,omitempty" db:"provider_message_id"`
	Error             string          `json:"error,omitempty" db:"error"`
	Attempts          int             `json:"attempts" db:"attempts"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
}
