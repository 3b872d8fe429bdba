package models

import "time"

// AuditRecord is the stored, redacted copy of one model round-trip.
// ConversationID is advisory only; nil for calls outside a conversation.
type AuditRecord struct {
	ID             string    `json:"id"`
	ConversationID *string   `json:"conversation_id"`
	PromptMasked   string    `json:"prompt_masked"`
	ResponseMasked string    `json:"response_masked"`
	CreatedAt      time.Time `json:"created_at"`
}

// AuditQueryOpts specifies filters for querying audit records.
type AuditQueryOpts struct {
	ID             string
	ConversationID string
	Since          time.Time
	Limit          int
}

// AuditStat holds the number of audit records created on one day.
type AuditStat struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}
