package domain

import (
	"net/mail"
	"strings"
	"time"
)

// ContactStatus enumerates the states a contact can be in.
type ContactStatus string

const (
	ContactActive       ContactStatus = "active"
	ContactUnsubscribed ContactStatus = "unsubscribed"
	ContactBounced      ContactStatus = "bounced"
)

// Contact is a single recipient in an owner's contact list.
type Contact struct {
	ID         string            `json:"id" db:"id"`
	OwnerID    string            `json:"owner_id" db:"owner_id"`
	Email      string            `json:"email" db:"email"`
	Name       string            `json:"name" db:"name"`
	Attributes map[string]string `json:"attributes" db:"attributes"`
	Tags       []string          `json:"tags" db:"tags"`
	Status     ContactStatus     `json:"status" db:"status"`
	CreatedAt  time.Time         `json:"created_at" db:"created_at"`
}

// Values returns the substitution values for this contact. Attributes win
// over the built-in keys so a list import can override them.
func (c *Contact) Values() map[string]string {
	values := make(map[string]string, len(c.Attributes)+3)
	values["email"] = c.Email
	values["name"] = c.Name
	if first, _, ok := strings.Cut(strings.TrimSpace(c.Name), " "); ok {
		values["first_name"] = first
	} else {
		values["first_name"] = strings.TrimSpace(c.Name)
	}
	for k, v := range c.Attributes {
		values[k] = v
	}
	return values
}

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether email is a bare, well-formed address.
func ValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != strings.TrimSpace(email) {
		return false
	}
	at := strings.LastIndex(addr.Address, "@")
	return at > 0 && strings.Contains(addr.Address[at+1:], ".")
}

// NormalizeTags trims, lower-cases and deduplicates tags, keeping first-seen order.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
