package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/keygate/keygate/internal/console"
	"github.com/keygate/keygate/internal/keystore"
	"github.com/keygate/keygate/internal/service"
)

func newTestServer(t *testing.T) *MCPServer {
	t.Helper()
	store, err := keystore.Open(context.Background(), keystore.Config{Driver: "sqlite"})
	if err != nil {
		t.Fatalf("keystore.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	admin := service.NewAdminService(store, service.Options{Logger: logger})
	c, err := console.New(admin, console.WithLogger(logger))
	if err != nil {
		t.Fatalf("console.New: %v", err)
	}
	return NewMCPServer(c, "assistant", "test", logger)
}

func callTool(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	}
}

// decodeReply extracts the console reply from a tool result.
func decodeReply(t *testing.T, res *mcp.CallToolResult) console.Reply {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want TextContent", res.Content[0])
	}
	var r console.Reply
	if err := json.Unmarshal([]byte(text.Text), &r); err != nil {
		t.Fatalf("decode reply %q: %v", text.Text, err)
	}
	return r
}

func TestGenerateInfoBan(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	res, err := s.handleGenerate(ctx, callTool("keygate_generate", map[string]any{"duration": "day"}))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	gen := decodeReply(t, res)
	key := gen.Field("Key")
	if !strings.HasPrefix(key, "KEY-") {
		t.Fatalf("generated key = %q", key)
	}

	res, _ = s.handleInfo(ctx, callTool("keygate_info", map[string]any{"key": key}))
	info := decodeReply(t, res)
	if info.Field("Status") != "Active" {
		t.Errorf("status = %q, want Active", info.Field("Status"))
	}

	res, _ = s.handleBan(ctx, callTool("keygate_ban", map[string]any{"key": key}))
	if res.IsError {
		t.Fatalf("ban failed: %+v", decodeReply(t, res))
	}

	res, _ = s.handleInfo(ctx, callTool("keygate_info", map[string]any{"key": key}))
	info = decodeReply(t, res)
	if info.Field("Status") != "Redeemed / Banned" {
		t.Errorf("status after ban = %q", info.Field("Status"))
	}
	if info.Field("Deactivated By") != "assistant" {
		t.Errorf("deactivated by = %q, want assistant", info.Field("Deactivated By"))
	}
}

func TestInfoMissingArgument(t *testing.T) {
	s := newTestServer(t)
	res, err := s.handleInfo(context.Background(), callTool("keygate_info", map[string]any{}))
	if err != nil {
		t.Fatalf("handleInfo: %v", err)
	}
	if !res.IsError {
		t.Error("missing key should be a tool error")
	}
}

func TestInfoUnknownKeyIsToolError(t *testing.T) {
	s := newTestServer(t)
	res, _ := s.handleInfo(context.Background(), callTool("keygate_info", map[string]any{"key": "KEY-NOPE"}))
	if !res.IsError {
		t.Fatal("unknown key should be a tool error")
	}
}

func TestNukeRoundTrip(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		s.handleGenerate(ctx, callTool("keygate_generate", nil))
	}

	res, _ := s.handleNuke(ctx, callTool("keygate_nuke", nil))
	nuke := decodeReply(t, res)
	if nuke.Ticket == "" {
		t.Fatalf("nuke reply has no ticket: %+v", nuke)
	}

	res, _ = s.handleConfirmNuke(ctx, callTool("keygate_confirm_nuke", map[string]any{"ticket": nuke.Ticket}))
	done := decodeReply(t, res)
	if res.IsError {
		t.Fatalf("confirm failed: %+v", done)
	}
	if done.Field("Deleted") != "3" {
		t.Errorf("deleted = %q, want 3", done.Field("Deleted"))
	}

	// A resolved ticket cannot be cancelled.
	res, _ = s.handleCancelNuke(ctx, callTool("keygate_cancel_nuke", map[string]any{"ticket": nuke.Ticket}))
	if !res.IsError {
		t.Error("cancel of a confirmed ticket should fail")
	}
}

func TestListAndConsole(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	s.handleGenerate(ctx, callTool("keygate_generate", map[string]any{"duration": "week"}))

	res, _ := s.handleList(ctx, callTool("keygate_list", map[string]any{"limit": 5000}))
	list := decodeReply(t, res)
	if list.Title != "Keys (1 of 1)" {
		t.Errorf("list title = %q", list.Title)
	}

	res, _ = s.handleConsole(ctx, callTool("keygate_console", map[string]any{"command": "help"}))
	if res.IsError {
		t.Errorf("help failed: %+v", decodeReply(t, res))
	}
}

func TestCommandsResource(t *testing.T) {
	s := newTestServer(t)
	req := mcp.ReadResourceRequest{}
	req.Params.URI = "keygate://commands"

	contents, err := s.handleCommandsResource(context.Background(), req)
	if err != nil {
		t.Fatalf("handleCommandsResource: %v", err)
	}
	text := contents[0].(mcp.TextResourceContents).Text
	if !strings.Contains(text, `"confirm"`) {
		t.Errorf("commands resource missing confirm: %s", text)
	}
}

func TestKeyResourceRejectsBadURI(t *testing.T) {
	s := newTestServer(t)
	req := mcp.ReadResourceRequest{}
	req.Params.URI = "keygate://other/x"
	if _, err := s.handleKeyResource(context.Background(), req); err == nil {
		t.Error("expected error for a non-key URI")
	}
}
