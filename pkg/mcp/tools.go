package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/pario-ai/parley/pkg/audit"
	"github.com/pario-ai/parley/pkg/models"
	"github.com/pario-ai/parley/pkg/redact"
)

const (
	defaultSearchLimit = 50
	maxSearchLimit     = 500
)

const (
	descRedactText = "Mask Singapore PII (NRIC/FIN, phone numbers, email addresses, postal codes " +
		"and street or block addresses) in the given text. Returns the masked text."

	descSearchAudits = "Search the audit log of prompt/response exchanges, newest first. " +
		"Stored text is already masked."

	descAuditStats = "Count audit records per UTC day, newest day first."
)

func RegisterTools(s *server.MCPServer, store audit.Store) {
	s.AddTool(
		mcp.NewTool("redact_text",
			mcp.WithDescription(descRedactText),
			mcp.WithString("text",
				mcp.Required(),
				mcp.Description("Text to mask"),
			),
		),
		redactTextHandler(),
	)

	if store == nil {
		return
	}

	s.AddTool(
		mcp.NewTool("search_audits",
			mcp.WithDescription(descSearchAudits),
			mcp.WithString("conversation_id",
				mcp.Description("Only records for this conversation"),
			),
			mcp.WithString("since",
				mcp.Description("Start date (YYYY-MM-DD, UTC)"),
			),
			mcp.WithNumber("limit",
				mcp.Description(fmt.Sprintf("Max records to return (default %d, max %d)", defaultSearchLimit, maxSearchLimit)),
			),
		),
		searchAuditsHandler(store),
	)

	s.AddTool(
		mcp.NewTool("audit_stats",
			mcp.WithDescription(descAuditStats),
		),
		auditStatsHandler(store),
	)
}

func redactTextHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, ok := request.GetArguments()["text"].(string)
		if !ok {
			return mcp.NewToolResultError("text parameter is required"), nil
		}
		return mcp.NewToolResultText(redact.Redact(text)), nil
	}
}

func searchAuditsHandler(store audit.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		opts := models.AuditQueryOpts{Limit: defaultSearchLimit}

		opts.ConversationID, _ = args["conversation_id"].(string)
		if since, _ := args["since"].(string); since != "" {
			t, err := time.Parse(time.DateOnly, since)
			if err != nil {
				return mcp.NewToolResultError("invalid since date (use YYYY-MM-DD): " + err.Error()), nil
			}
			opts.Since = t
		}
		if v, ok := args["limit"].(float64); ok {
			if v < 1 || v > maxSearchLimit {
				return mcp.NewToolResultError(fmt.Sprintf("limit must be between 1 and %d", maxSearchLimit)), nil
			}
			opts.Limit = int(v)
		}

		records, err := store.Query(ctx, opts)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to search audit log: %v", err)), nil
		}
		return mcp.NewToolResultText(audit.FormatRecords(records)), nil
	}
}

func auditStatsHandler(store audit.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		stats, err := store.Stats(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to load audit stats: %v", err)), nil
		}
		return mcp.NewToolResultText(audit.FormatStats(stats)), nil
	}
}
