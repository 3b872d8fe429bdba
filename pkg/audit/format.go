package audit

import (
	"fmt"
	"strings"
	"time"

	"github.com/pario-ai/parley/pkg/models"
)

const previewChars = 40

// FormatRecords renders records as a text table with one-line previews.
func FormatRecords(records []models.AuditRecord) string {
	if len(records) == 0 {
		return "No audit records found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-36s %-36s %-20s %-42s\n",
		"AUDIT ID", "CONVERSATION", "TIME", "PROMPT")
	b.WriteString(strings.Repeat("-", 137) + "\n")
	for _, r := range records {
		conv := deref(r.ConversationID)
		if conv == "" {
			conv = "-"
		}
		fmt.Fprintf(&b, "%-36s %-36s %-20s %-42s\n",
			r.ID, conv,
			r.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			preview(r.PromptMasked))
	}
	return b.String()
}

// FormatRecord renders a single record with its full masked text.
func FormatRecord(r models.AuditRecord) string {
	var b strings.Builder
	conv := deref(r.ConversationID)
	if conv == "" {
		conv = "-"
	}
	fmt.Fprintf(&b, "Audit ID:      %s\n", r.ID)
	fmt.Fprintf(&b, "Conversation:  %s\n", conv)
	fmt.Fprintf(&b, "Time:          %s\n", r.CreatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "\n--- Prompt (masked) ---\n%s\n", r.PromptMasked)
	fmt.Fprintf(&b, "\n--- Response (masked) ---\n%s\n", r.ResponseMasked)
	return b.String()
}

// FormatStats renders per-day record counts.
func FormatStats(stats []models.AuditStat) string {
	if len(stats) == 0 {
		return "No audit stats found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-12s %8s\n", "DAY", "COUNT")
	b.WriteString(strings.Repeat("-", 21) + "\n")
	for _, s := range stats {
		fmt.Fprintf(&b, "%-12s %8d\n", s.Day, s.Count)
	}
	return b.String()
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return TruncateHead(s, previewChars)
}
