package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const keyURIPrefix = "keygate://keys/"

// registerResources adds MCP resource definitions to the server. Resources
// provide read-only data that LLM clients can load into their context.
func (s *MCPServer) registerResources(srv *server.MCPServer) {

	// -------------------------------------------------------------------
	// keygate://commands: the console command table
	// -------------------------------------------------------------------
	srv.AddResource(
		mcp.NewResource(
			"keygate://commands",
			"Console Commands",
			mcp.WithResourceDescription("Every console command with its usage and description."),
			mcp.WithMIMEType("application/json"),
		),
		s.handleCommandsResource,
	)

	// -------------------------------------------------------------------
	// keygate://keys/{key}: one key's details (template)
	// -------------------------------------------------------------------
	srv.AddResourceTemplate(
		mcp.NewResourceTemplate(
			keyURIPrefix+"{key}",
			"Key Information",
			mcp.WithTemplateDescription("Status, expiry and redemption details of one key."),
			mcp.WithTemplateMIMEType("application/json"),
		),
		s.handleKeyResource,
	)
}

func (s *MCPServer) handleCommandsResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	type commandInfo struct {
		Name        string `json:"name"`
		Usage       string `json:"usage"`
		Description string `json:"description"`
	}
	cmds := s.console.Commands()
	items := make([]commandInfo, len(cmds))
	for i, c := range cmds {
		items[i] = commandInfo{Name: c.Name, Usage: c.Usage, Description: c.Description}
	}

	b, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal commands: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "keygate://commands",
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}

// handleKeyResource runs the info command for the key named in the URI.
func (s *MCPServer) handleKeyResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	uri := request.Params.URI
	key := strings.TrimPrefix(uri, keyURIPrefix)
	if key == "" || key == uri {
		return nil, fmt.Errorf("invalid key URI %q: expected %s{key}", uri, keyURIPrefix)
	}

	reply := s.console.Run(ctx, s.actor, "info", []string{key})
	b, err := json.MarshalIndent(reply, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal key info: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}
