package cli

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check if the keygate server is running",
		Long:  "Probe a running server's liveness (/healthz) and readiness (/readyz) endpoints.",
		Example: `  keygate status
  keygate status --url https://keys.example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if baseURL == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				host := cfg.Server.Host
				if host == "" || host == "0.0.0.0" || host == "::" {
					host = "127.0.0.1"
				}
				baseURL = "http://" + net.JoinHostPort(host, strconv.Itoa(cfg.Server.Port))
			}
			return runStatus(baseURL)
		},
	}

	cmd.Flags().StringVar(&baseURL, "url", "", "Server base URL (default: from server.host and server.port)")

	return cmd
}

func runStatus(baseURL string) error {
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(baseURL + "/healthz")
	if err != nil {
		fmt.Printf("Server is not responding at %s.\n", baseURL)
		return fmt.Errorf("health check: %w", err)
	}
	resp.Body.Close()
	fmt.Printf("Server is running at %s\n", baseURL)
	fmt.Printf("  Health:  %d\n", resp.StatusCode)

	resp, err = client.Get(baseURL + "/readyz")
	if err != nil {
		return fmt.Errorf("readiness check: %w", err)
	}
	defer resp.Body.Close()

	var ready struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ready); err != nil {
		return fmt.Errorf("decode readiness: %w", err)
	}
	fmt.Printf("  Ready:   %s (%d)\n", ready.Status, resp.StatusCode)
	for name, check := range ready.Checks {
		fmt.Printf("    %-10s %s\n", name, check)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server is not ready")
	}
	return nil
}
