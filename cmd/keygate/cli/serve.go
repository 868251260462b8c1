package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/keygate/keygate/internal/config"
	"github.com/keygate/keygate/internal/lifecycle"
	"github.com/keygate/keygate/internal/server"
	"github.com/keygate/keygate/internal/service"
)

const banner = `
 _                       _
| | _____ _   _  __ _  __ _| |_ ___
| |/ / _ \ | | |/ _' |/ _' | __/ _ \
|   <  __/ |_| | (_| | (_| | ||  __/
|_|\_\___|\__, |\__, |\__,_|\__\___|
          |___/ |___/
`

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the keygate HTTP server",
		Long: `Start the HTTP server that client applications redeem keys against.

Also serves the admin API (when admin.jwt_secret is set), health probes,
Prometheus metrics and the OpenAPI document.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe() error {
	fmt.Print(banner)
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger
	cfg := a.cfg

	authSvc := service.NewAuthService(cfg.Admin.JWTSecret)
	if !authSvc.Enabled() {
		logger.Warn("admin.jwt_secret is not set; the admin API is disabled")
	}
	if cfg.Server.TrustProxy {
		logger.Warn("server.trust_proxy is on; origin addresses are taken from X-Forwarded-For and X-Real-IP")
	}
	if cfg.Redemption.Policy() == lifecycle.HardwareStrict {
		logger.Info("hardware policy is strict; mismatched devices are rejected")
	}

	srvCfg := server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ShutdownTimeout: config.Duration(cfg.Server.ShutdownTimeout, server.DefaultConfig().ShutdownTimeout),
		CORSOrigins:     cfg.Server.CORS.Origins,
		TrustProxy:      cfg.Server.TrustProxy,
	}
	srv := server.New(srvCfg, server.Deps{
		Store:   a.store,
		Redeem:  a.redemptionService(),
		Admin:   a.adminService(),
		Auth:    authSvc,
		Metrics: a.metrics,
		Version: versionString(),
	}, logger)

	fmt.Printf("→ keygate %s\n", versionString())
	fmt.Printf("→ Listening on http://%s\n", srvCfg.Addr())
	fmt.Printf("→ Store:      %s\n", a.store.Driver())
	fmt.Printf("→ OpenAPI:    http://%s/openapi.json\n", srvCfg.Addr())
	fmt.Printf("→ Health:     http://%s/healthz\n", srvCfg.Addr())
	fmt.Printf("→ Metrics:    http://%s/metrics\n", srvCfg.Addr())
	fmt.Println()

	return srv.Run(ctx)
}
