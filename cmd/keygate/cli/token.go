package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/keygate/keygate/internal/config"
	"github.com/keygate/keygate/internal/service"
)

func newTokenCmd() *cobra.Command {
	var (
		actor string
		ttl   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the admin API",
		Long: `Sign a JWT with admin.jwt_secret naming the operator. The actor is what bans
made through the admin API record as the deactivating party.`,
		Example: `  keygate token --actor alice
  KEYGATE_ADMIN_JWT_SECRET=s3cret keygate token --actor ci --ttl 15m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			auth := service.NewAuthService(cfg.Admin.JWTSecret)
			if ttl <= 0 {
				ttl = config.Duration(cfg.Admin.TokenTTL, time.Hour)
			}
			if actor == "" {
				actor = cfg.Admin.Actor
			}
			tok, err := auth.IssueJWT(cmd.Context(), actor, ttl)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "Operator name carried by the token (default: admin.actor)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default: admin.token_ttl)")

	return cmd
}
