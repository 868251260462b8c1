package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/keygate/keygate/internal/config"
	"github.com/keygate/keygate/internal/console"
	"github.com/keygate/keygate/internal/keystore"
	"github.com/keygate/keygate/internal/metrics"
	"github.com/keygate/keygate/internal/notify"
	"github.com/keygate/keygate/internal/service"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// resolveDataDir returns the data directory from --data-dir flag,
// database.data_dir (file or KEYGATE_DATABASE_DATA_DIR), or ~/.keygate as
// fallback.
func resolveDataDir(cfg *config.Config) string {
	if dataDir != "" {
		return dataDir
	}
	if cfg != nil && cfg.Database.DataDir != "" {
		return cfg.Database.DataDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".keygate")
}

// loadConfig decodes the effective configuration from the config file,
// KEYGATE_* environment variables and bound flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Database.DSN == "" && (cfg.Database.Driver == "" || cfg.Database.Driver == "sqlite") {
		cfg.Database.DataDir = resolveDataDir(cfg)
	}
	return cfg, nil
}

// app is the wired runtime shared by the commands that touch keys.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *keystore.Store
	metrics  *metrics.Metrics
	notifier *notify.Async
	closers  []func() error
}

// openApp loads the config, opens the key store and builds the notifier.
// Callers must Close the result.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := cfg.Logging.Logger(os.Stderr, devMode)

	if cfg.Database.DataDir != "" {
		if err := os.MkdirAll(cfg.Database.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	store, err := keystore.Open(ctx, keystore.Config{
		Driver:  cfg.Database.Driver,
		DSN:     cfg.Database.DSN,
		DataDir: cfg.Database.DataDir,
		Table:   cfg.Database.Table,
		Pool:    cfg.Database.Pool.PoolConfig(),
	})
	if err != nil {
		return nil, fmt.Errorf("open key store: %w", err)
	}
	logger.Debug("key store opened", "driver", store.Driver(), "dsn", keystore.RedactDSN(cfg.Database.DSN), "data_dir", cfg.Database.DataDir)

	a := &app{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		metrics: metrics.New(),
		closers: []func() error{store.Close},
	}
	a.buildNotifier(ctx)
	return a, nil
}

// buildNotifier wires the configured sinks. Sinks are best effort: an
// unreachable Redis is logged and kept, since the client reconnects on use.
func (a *app) buildNotifier(ctx context.Context) {
	var sinks notify.Multi
	n := a.cfg.Notify
	if n.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhook(n.WebhookURL, config.Duration(n.WebhookTimeout, 0)))
		a.logger.Info("webhook notifications enabled")
	}
	if n.RedisAddr != "" {
		r := notify.NewRedis(n.RedisAddr, n.RedisChannel)
		if err := r.Ping(ctx); err != nil {
			a.logger.Warn("redis notifier unreachable; deliveries fail until it answers", "error", err)
		}
		sinks = append(sinks, r)
		a.closers = append(a.closers, r.Close)
		a.logger.Info("redis notifications enabled", "addr", n.RedisAddr, "channel", n.RedisChannel)
	}
	if len(sinks) == 0 {
		return
	}
	a.notifier = notify.NewAsync(sinks, config.Duration(n.DeliveryTimeout, 0), a.logger, a.metrics.Notification)
}

// options returns the service options shared by both services.
func (a *app) options() service.Options {
	opts := service.Options{
		HardwarePolicy: a.cfg.Redemption.Policy(),
		NukeWindow:     config.Duration(a.cfg.Admin.NukeWindow, service.DefaultNukeWindow),
		Metrics:        a.metrics,
		Logger:         a.logger,
	}
	if a.notifier != nil {
		opts.Notifier = a.notifier
	}
	return opts
}

func (a *app) adminService() *service.AdminService {
	return service.NewAdminService(a.store, a.options())
}

func (a *app) redemptionService() *service.RedemptionService {
	return service.NewRedemptionService(a.store, a.options())
}

func (a *app) console(admin *service.AdminService) (*console.Console, error) {
	return console.New(admin, console.WithLogger(a.logger))
}

// actor returns the operator name recorded for CLI actions.
func (a *app) actor(flag string) string {
	if strings.TrimSpace(flag) != "" {
		return flag
	}
	return a.cfg.Admin.Actor
}

// Close drains pending notifications, then releases the store and sinks in
// reverse order.
func (a *app) Close() {
	if a.notifier != nil {
		a.notifier.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
