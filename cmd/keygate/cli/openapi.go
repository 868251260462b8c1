package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/keygate/keygate/internal/openapi"
)

func newOpenAPICmd() *cobra.Command {
	var (
		outputFile string
		serverURL  string
	)

	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "Generate the OpenAPI specification",
		Long:  `Generate the OpenAPI 3.0 document describing the redeem, status and admin endpoints.`,
		Example: `  keygate openapi
  keygate openapi --server-url https://keys.example.com -o openapi.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := openapi.Generate(versionString(), serverURL)
			if err != nil {
				return err
			}
			if err := doc.Validate(cmd.Context()); err != nil {
				return fmt.Errorf("invalid OpenAPI document: %w", err)
			}
			jsonBytes, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return err
			}
			if outputFile != "" {
				if err := os.WriteFile(outputFile, jsonBytes, 0o644); err != nil {
					return fmt.Errorf("write spec: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", outputFile)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(jsonBytes))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write spec to file instead of stdout")
	cmd.Flags().StringVar(&serverURL, "server-url", "http://localhost:8080", "Server URL listed in the document")

	return cmd
}
