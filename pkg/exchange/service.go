// Package exchange runs one prompt/reply turn against a stored conversation.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/pario-ai/parley/pkg/audit"
	"github.com/pario-ai/parley/pkg/conversation"
	"github.com/pario-ai/parley/pkg/llm"
	"github.com/pario-ai/parley/pkg/metrics"
	"github.com/pario-ai/parley/pkg/models"
)

// ErrUpstreamUnavailable wraps any completion failure. When it is returned
// nothing was persisted for the turn.
var ErrUpstreamUnavailable = errors.New("upstream completion unavailable")

// Service ties the conversation store, completion client and audit writer.
type Service struct {
	store     conversation.Store
	completer llm.Completer
	writer    *audit.Writer
	metrics   *metrics.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewService wires the exchange dependencies. A nil tracer disables spans.
func NewService(store conversation.Store, completer llm.Completer, writer *audit.Writer, m *metrics.Metrics, logger *slog.Logger, tracer trace.Tracer) *Service {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	return &Service{
		store:     store,
		completer: completer,
		writer:    writer,
		metrics:   m,
		logger:    logger,
		tracer:    tracer,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SendPrompt appends a user turn to the conversation, asks the upstream
// model for a reply and records the masked exchange. The returned
// conversation carries the raw, unmasked reply.
func (s *Service) SendPrompt(ctx context.Context, conversationID, content string) (*models.Conversation, error) {
	ctx, span := s.tracer.Start(ctx, "Service.SendPrompt",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)),
	)
	defer span.End()

	conv, err := s.store.Get(ctx, conversationID)
	if err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			s.metrics.ObserveExchange("not_found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "load conversation")
		return nil, err
	}

	userMsg := models.Message{Role: models.RoleUser, Content: content, Timestamp: s.now()}
	promptContext := append(conv.ChatContext(), models.ChatMessage{Role: string(userMsg.Role), Content: userMsg.Content})

	start := time.Now()
	reply, err := s.completer.Complete(ctx, promptContext)
	s.metrics.ObserveCompletionLatency(time.Since(start))
	if err != nil {
		s.metrics.ObserveExchange("upstream_error")
		s.logger.ErrorContext(ctx, "completion failed", "conversation_id", conversationID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "upstream completion")
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}

	rec := s.writer.RecordExchange(ctx, &conv.ID, promptContext, reply)
	span.SetAttributes(attribute.String("audit.id", rec.ID))

	assistantMsg := models.Message{Role: models.RoleAssistant, Content: reply, Timestamp: s.now()}
	updated, err := s.store.AppendMessages(ctx, conv.ID, userMsg, assistantMsg)
	if err != nil {
		s.metrics.ObserveExchange("store_error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "append messages")
		return nil, fmt.Errorf("append messages: %w", err)
	}

	s.metrics.ObserveExchange("ok")
	return updated, nil
}
