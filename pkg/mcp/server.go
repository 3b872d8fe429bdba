// Package mcp exposes redaction and audit search as MCP tools over stdio.
package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/trace"

	"github.com/pario-ai/parley/pkg/audit"
)

const serverName = "parley"

// NewServer creates an MCPServer with tools and logging hooks.
// A nil store registers only the redaction tool; a nil tracer disables spans.
func NewServer(version string, store audit.Store, logger *slog.Logger, tracer trace.Tracer) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(false),
		server.WithHooks(ToolCallHooks(logger, tracer)),
	)

	RegisterTools(s, store)

	return s
}
