package cli

import (
	"fmt"
	"strings"

	"bitespeed-identity/internal/config"
	"bitespeed-identity/internal/database"
	"bitespeed-identity/internal/handlers"
	"bitespeed-identity/internal/lock"
	"bitespeed-identity/internal/logger"
	"bitespeed-identity/internal/service"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// NewRootCommand builds the command tree. Running it without a subcommand serves HTTP.
func NewRootCommand() *cobra.Command {
	v := config.New()

	root := &cobra.Command{
		Use:           "bitespeed",
		Short:         "Identity reconciliation service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromViper(v)
			if err != nil {
				return err
			}
			return logger.Init(cfg.IsProduction(), cfg.LogLevel)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Sync()
		},
	}

	flags := root.PersistentFlags()
	flags.String("port", "", "HTTP listen port (env PORT)")
	flags.String("env", "", "runtime environment: development or production (env ENV)")
	flags.String("log-level", "", "log level override (env LOG_LEVEL)")
	flags.String("database-url", "", "SQLite path or postgres:// URL (env DATABASE_URL)")
	flags.String("redis-url", "", "Redis URL for distributed identity locks (env REDIS_URL)")
	for _, name := range []string{"port", "env", "log-level", "database-url", "redis-url"} {
		key := flagKey(name)
		_ = v.BindPFlag(key, flags.Lookup(name))
	}

	serve := newServeCommand(v)
	root.RunE = serve.RunE
	root.AddCommand(serve, newMigrateCommand(v), newIdentifyCommand(v))

	return root
}

// Execute runs the root command
func Execute() error {
	return NewRootCommand().Execute()
}

func flagKey(flag string) string {
	return strings.ReplaceAll(flag, "-", "_")
}

// app is the wired dependency graph shared by the subcommands
type app struct {
	cfg     *config.Config
	db      *database.DB
	redis   *lock.RedisLocker
	service *service.ReconciliationService
}

func newApp(v *viper.Viper) (*app, error) {
	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, err
	}
	log := logger.Get()

	db, err := database.New(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, db: db}

	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.RedisURL != "" {
		a.redis, err = lock.NewRedisLocker(lock.RedisOptions{URL: cfg.RedisURL, TTL: cfg.LockTTL})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize identity locks: %w", err)
		}
		locker = a.redis
		log.Info("Using Redis identity locks")
	} else {
		log.Info("Using in-process identity locks")
	}

	a.service = service.NewReconciliationService(
		database.NewContactStore(db),
		service.WithLocker(locker),
		service.WithTimeout(cfg.RequestTimeout),
		service.WithLogger(log),
	)
	return a, nil
}

func (a *app) healthDeps() map[string]handlers.Pinger {
	deps := map[string]handlers.Pinger{"database": a.db}
	if a.redis != nil {
		deps["redis"] = a.redis
	}
	return deps
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logger.Get().Warn("Failed to close Redis", zap.Error(err))
		}
	}
	if err := a.db.Close(); err != nil {
		logger.Get().Warn("Failed to close database", zap.Error(err))
	}
}
