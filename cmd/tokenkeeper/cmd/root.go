package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jmcleod/tokenkeeper/internal/config"
	"github.com/jmcleod/tokenkeeper/internal/logging"
)

// Version is set at build time with -ldflags.
var Version = "dev"

var (
	configFile string
	cfg        *config.Config
	zapLogger  *zap.Logger
	logger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "tokenkeeper",
	Short: "tokenkeeper keeps a signed-in session against a token auth server",
	Long: `A client for bearer-token auth servers. It signs in, keeps the access and
refresh tokens sealed at rest, and refreshes them transparently when a request
comes back 401.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l := config.NewLoader()
		if configFile != "" {
			if err := l.ReadFile(configFile); err != nil {
				return err
			}
		}
		if err := l.BindFlags(cmd.Flags()); err != nil {
			return err
		}
		c, err := l.Load()
		if err != nil {
			return err
		}
		cfg = c

		zapLogger, logger, err = logging.New(cfg.LogLevel)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if zapLogger != nil {
			_ = zapLogger.Sync()
		}
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	d := config.Defaults()
	f := rootCmd.PersistentFlags()
	f.StringVar(&configFile, "config", "", "Path to a config file (yaml, toml or json)")
	f.String("base-url", d.BaseURL, "Auth server base URL")
	f.String("store", d.Store, "Credential store: memory, bbolt, postgres or redis")
	f.String("data-dir", d.DataDir, "Directory for the bbolt store")
	f.String("postgres-dsn", "", "Postgres connection string for the postgres store")
	f.String("redis-addr", "", "Redis address for the redis store")
	f.String("passphrase", "", "Passphrase sealing stored credentials")
	f.Duration("refresh-timeout", d.RefreshTimeout, "Upper bound on one refresh exchange")
	f.Duration("request-timeout", d.RequestTimeout, "Upper bound on a protected request")
	f.Duration("proactive-refresh", 0, "Refresh access tokens expiring within this window before sending")
	f.String("log-level", d.LogLevel, "Log level: debug, info, warn or error")
}
