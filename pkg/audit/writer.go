package audit

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pario-ai/parley/pkg/metrics"
	"github.com/pario-ai/parley/pkg/models"
	"github.com/pario-ai/parley/pkg/redact"
)

// Stored field limits, in characters.
const (
	MaxPromptChars   = 2000
	MaxResponseChars = 2000
)

const defaultWriteTimeout = 5 * time.Second

// Writer redacts one exchange and appends it to the audit store.
// Persistence is best-effort: failures are logged and counted, never returned.
type Writer struct {
	store   Appender
	logger  *slog.Logger
	metrics *metrics.Metrics
	timeout time.Duration
	clock   *monotonicClock
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithMetrics records write results and redaction counts on m.
func WithMetrics(m *metrics.Metrics) WriterOption {
	return func(w *Writer) { w.metrics = m }
}

// WithWriteTimeout bounds a single Append call.
func WithWriteTimeout(d time.Duration) WriterOption {
	return func(w *Writer) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) WriterOption {
	return func(w *Writer) { w.clock = &monotonicClock{now: now} }
}

func NewWriter(store Appender, logger *slog.Logger, opts ...WriterOption) *Writer {
	w := &Writer{
		store:   store,
		logger:  logger,
		timeout: defaultWriteTimeout,
		clock:   &monotonicClock{now: time.Now},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// RecordExchange builds the audit record for one successful completion and
// appends it. The append runs detached from ctx cancellation so a client
// disconnect does not drop the record. The returned record is the one that
// was attempted, whether or not it was stored.
func (w *Writer) RecordExchange(ctx context.Context, conversationID *string, promptContext []models.ChatMessage, reply string) models.AuditRecord {
	prompt, promptCounts := redact.RedactCount(PromptText(promptContext))
	response, replyCounts := redact.RedactCount(reply)
	w.metrics.ObservePIIMasked("prompt", promptCounts)
	w.metrics.ObservePIIMasked("response", replyCounts)

	rec := models.AuditRecord{
		ID:             uuid.NewString(),
		PromptMasked:   TruncateTail(prompt, MaxPromptChars),
		ResponseMasked: TruncateHead(response, MaxResponseChars),
		CreatedAt:      w.clock.Now(),
	}
	if conversationID != nil {
		id := *conversationID
		rec.ConversationID = &id
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.timeout)
	defer cancel()

	if err := w.store.Append(ctx, rec); err != nil {
		w.logger.LogAttrs(ctx, slog.LevelError, "audit write failed",
			slog.String("audit_id", rec.ID),
			slog.String("conversation_id", deref(rec.ConversationID)),
			slog.String("error", err.Error()),
		)
		w.metrics.ObserveAuditWrite("error")
		return rec
	}
	w.metrics.ObserveAuditWrite("ok")
	w.logger.LogAttrs(ctx, slog.LevelDebug, "audit record written",
		slog.String("audit_id", rec.ID),
		slog.String("conversation_id", deref(rec.ConversationID)),
	)
	return rec
}

// PromptText joins the content of user-role messages with newlines.
// Assistant turns are not part of the audited prompt.
func PromptText(promptContext []models.ChatMessage) string {
	var parts []string
	for _, m := range promptContext {
		if m.Role == string(models.RoleUser) {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n")
}

// TruncateTail keeps the last n characters of s.
func TruncateTail(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

// TruncateHead keeps the first n characters of s.
func TruncateHead(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// monotonicClock hands out UTC timestamps that never go backwards, so
// created_at is non-decreasing in insertion order even across wall-clock steps.
type monotonicClock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func (c *monotonicClock) Now() time.Time {
	t := c.now().UTC()
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.Before(c.last) {
		t = c.last
	}
	c.last = t
	return t
}
