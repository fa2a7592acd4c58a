package domain

import "time"

// SuppressionReason enumerates why an email was suppressed.
type SuppressionReason string

const (
	ReasonBounce      SuppressionReason = "bounce"
	ReasonUnsubscribe SuppressionReason = "unsubscribe"
	ReasonComplaint   SuppressionReason = "complaint"
	ReasonManual      SuppressionReason = "manual"
)

// Suppression represents a single address excluded from all sends.
type Suppression struct {
	OwnerID   string            `json:"owner_id" db:"owner_id"`
	Email     string            `json:"email" db:"email"`
	Reason    SuppressionReason `json:"reason" db:"reason"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
}
