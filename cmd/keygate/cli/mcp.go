package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	kmcp "github.com/keygate/keygate/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	var (
		transport string
		port      int
		actor     string
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server for chat assistants",
		Long: `Start a Model Context Protocol (MCP) server that exposes the admin console
as tools: generate, info, list, ban, nuke, confirm and cancel. Supports stdio
(default) and HTTP transports.

In stdio mode, the MCP server communicates over stdin/stdout using JSON-RPC,
suitable for assistants that launch keygate as a subprocess.

In HTTP mode, the server listens on the specified port using Streamable HTTP.`,
		Example: `  keygate mcp                                # stdio mode
  keygate mcp --transport http --port 3001   # HTTP mode`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := a.console(a.adminService())
			if err != nil {
				return err
			}
			who := actor
			if who == "" {
				who = kmcp.DefaultActor
			}
			mcpSrv := kmcp.NewMCPServer(c, who, versionString(), a.logger)

			switch transport {
			case "stdio":
				return mcpSrv.ServeStdio()
			case "http":
				return mcpSrv.ServeHTTP(fmt.Sprintf(":%d", port))
			default:
				return fmt.Errorf("unsupported transport %q; use 'stdio' or 'http'", transport)
			}
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport mode: stdio or http")
	cmd.Flags().IntVar(&port, "port", 3001, "HTTP port (only used with --transport http)")
	cmd.Flags().StringVar(&actor, "actor", "", "Operator name recorded for bans and nukes (default: mcp)")

	return cmd
}
