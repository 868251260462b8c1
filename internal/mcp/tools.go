package mcp

import (
	"context"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/keygate/keygate/internal/service"
)

// registerTools registers the key administration tools on the given server.
func (s *MCPServer) registerTools(srv *server.MCPServer) {

	// ----- Issuance -----

	srv.AddTool(
		mcp.NewTool("keygate_generate",
			mcp.WithDescription("Generate a new access key. Returns the key string and its expiry."),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithString("duration",
				mcp.Description("Validity period of the key"),
				mcp.Enum("day", "week", "lifetime"),
			),
		),
		s.handleGenerate,
	)

	// ----- Inspection -----

	srv.AddTool(
		mcp.NewTool("keygate_info",
			mcp.WithDescription(
				"Get detailed information about a key: status (Active, Redeemed / Banned, Expired), "+
					"expiry, who redeemed or deactivated it, and when.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("key",
				mcp.Required(),
				mcp.Description("The key string, e.g. KEY-1B2C..."),
			),
		),
		s.handleInfo,
	)

	srv.AddTool(
		mcp.NewTool("keygate_list",
			mcp.WithDescription("List keys, newest first, with their display status and expiry."),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of keys to return (default 25, max 1000)"),
			),
			mcp.WithNumber("offset",
				mcp.Description("Number of keys to skip for pagination"),
			),
		),
		s.handleList,
	)

	// ----- Deactivation -----

	srv.AddTool(
		mcp.NewTool("keygate_ban",
			mcp.WithDescription("Permanently deactivate a key. Banning an inactive key changes nothing."),
			mcp.WithToolAnnotation(destructiveAnnotation()),
			mcp.WithString("key",
				mcp.Required(),
				mcp.Description("The key string to ban"),
			),
		),
		s.handleBan,
	)

	srv.AddTool(
		mcp.NewTool("keygate_nuke",
			mcp.WithDescription(
				"Request deletion of every key. Nothing is deleted until keygate_confirm_nuke "+
					"is called with the returned ticket before it expires.",
			),
			mcp.WithToolAnnotation(destructiveAnnotation()),
		),
		s.handleNuke,
	)

	srv.AddTool(
		mcp.NewTool("keygate_confirm_nuke",
			mcp.WithDescription("Confirm a pending nuke and delete every key."),
			mcp.WithToolAnnotation(destructiveAnnotation()),
			mcp.WithString("ticket",
				mcp.Required(),
				mcp.Description("Ticket returned by keygate_nuke"),
			),
		),
		s.handleConfirmNuke,
	)

	srv.AddTool(
		mcp.NewTool("keygate_cancel_nuke",
			mcp.WithDescription("Cancel a pending nuke. No keys are deleted."),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithString("ticket",
				mcp.Required(),
				mcp.Description("Ticket returned by keygate_nuke"),
			),
		),
		s.handleCancelNuke,
	)

	// ----- Free-form -----

	srv.AddTool(
		mcp.NewTool("keygate_console",
			mcp.WithDescription("Run a console command line, e.g. \"info KEY-...\" or \"help\"."),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithString("command",
				mcp.Required(),
				mcp.Description("The command line to run"),
			),
		),
		s.handleConsole,
	)
}

// =========================================================================
// Tool handlers
// =========================================================================

func (s *MCPServer) run(ctx context.Context, name string, args ...string) (*mcp.CallToolResult, error) {
	return replyResult(s.console.Run(ctx, s.actor, name, args))
}

func (s *MCPServer) handleGenerate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if d := optionalString(request, "duration"); d != "" {
		return s.run(ctx, "generate", d)
	}
	return s.run(ctx, "generate")
}

func (s *MCPServer) handleInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := requireString(request, "key")
	if err != nil {
		return toolError("%v", err)
	}
	return s.run(ctx, "info", key)
}

func (s *MCPServer) handleList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := clamp(optionalInt(request, "limit", service.DefaultListLimit), 1, service.MaxListLimit)
	offset := optionalInt(request, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	return s.run(ctx, "list", strconv.Itoa(limit), strconv.Itoa(offset))
}

func (s *MCPServer) handleBan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := requireString(request, "key")
	if err != nil {
		return toolError("%v", err)
	}
	return s.run(ctx, "ban", key)
}

func (s *MCPServer) handleNuke(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.run(ctx, "nuke")
}

func (s *MCPServer) handleConfirmNuke(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ticket, err := requireString(request, "ticket")
	if err != nil {
		return toolError("%v", err)
	}
	return s.run(ctx, "confirm", ticket)
}

func (s *MCPServer) handleCancelNuke(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ticket, err := requireString(request, "ticket")
	if err != nil {
		return toolError("%v", err)
	}
	return s.run(ctx, "cancel", ticket)
}

func (s *MCPServer) handleConsole(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	line, err := requireString(request, "command")
	if err != nil {
		return toolError("%v", err)
	}
	return replyResult(s.console.Execute(ctx, s.actor, line))
}
