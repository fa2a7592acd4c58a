package domain

import "time"

// VariableType declares how a template variable is formatted.
type VariableType string

const (
	VarText     VariableType = "text"
	VarCurrency VariableType = "currency"
	VarNumber   VariableType = "number"
	VarDate     VariableType = "date"
)

// Template is a reusable message body with {{name}} placeholders.
type Template struct {
	ID        string                  `json:"id" db:"id"`
	OwnerID   string                  `json:"owner_id" db:"owner_id"`
	Name      string                  `json:"name" db:"name"`
	Subject   string                  `json:"subject" db:"subject"`
	HTML      string                  `json:"html_content" db:"html_content"`
	Variables map[string]VariableType `json:"variables" db:"variables"`
	CreatedAt time.Time               `json:"created_at" db:"created_at"`
	UpdatedAt time.Time               `json:"updated_at" db:"updated_at"`
}
