package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type callState struct {
	start time.Time
	span  trace.Span
}

// ToolCallHooks creates MCP hooks that log tool calls and, with a non-nil
// tracer, record one span per call. Tool arguments are never logged or
// attached to spans: they may carry unmasked text.
func ToolCallHooks(logger *slog.Logger, tracer trace.Tracer) *server.Hooks {
	hooks := &server.Hooks{}
	var calls sync.Map // id -> *callState

	hooks.AddBeforeCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest) {
		state := &callState{start: time.Now()}
		if tracer != nil {
			_, span := tracer.Start(ctx, "mcp.tool.call",
				trace.WithAttributes(attribute.String("mcp.tool", req.Params.Name)),
			)
			state.span = span
		}
		calls.Store(id, state)
	})

	hooks.AddAfterCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest, result any) {
		state := finish(&calls, id)

		level := slog.LevelInfo
		isErr := false
		if r, ok := result.(*mcp.CallToolResult); ok && r.IsError {
			level = slog.LevelError
			isErr = true
		}

		logger.LogAttrs(ctx, level, "tool call",
			slog.String("rpc.method", "tools/call"),
			slog.String("mcp.tool", req.Params.Name),
			slog.Duration("duration", state.duration()),
			slog.Bool("error", isErr),
		)

		if state.span != nil {
			if isErr {
				state.span.SetStatus(codes.Error, "tool returned error")
				state.span.RecordError(fmt.Errorf("tool %s returned error", req.Params.Name))
			}
			state.span.End()
		}
	})

	hooks.AddOnError(func(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
		state := finish(&calls, id)

		if req, ok := message.(*mcp.CallToolRequest); ok {
			logger.LogAttrs(ctx, slog.LevelError, "tool call",
				slog.String("rpc.method", "tools/call"),
				slog.String("mcp.tool", req.Params.Name),
				slog.Duration("duration", state.duration()),
				slog.Bool("error", true),
				slog.String("error.message", err.Error()),
			)
		}

		if state.span != nil {
			state.span.RecordError(err)
			state.span.SetStatus(codes.Error, err.Error())
			state.span.End()
		}
	})

	return hooks
}

func finish(calls *sync.Map, id any) *callState {
	if v, ok := calls.LoadAndDelete(id); ok {
		return v.(*callState)
	}
	return &callState{}
}

func (c *callState) duration() time.Duration {
	if c.start.IsZero() {
		return 0
	}
	return time.Since(c.start)
}
