package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/jmcleod/tokenkeeper/devserver"
	"github.com/jmcleod/tokenkeeper/internal/config"
	"github.com/jmcleod/tokenkeeper/internal/logging"
)

var (
	seedUsers []string
	rotate    bool
)

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run a local auth server for development and demos",
	Long: `Runs an in-memory auth server with login, register, refresh and me
endpoints plus sample protected routes. Accounts are lost on exit.`,
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
		c, err := l.LoadServer()
		if err != nil {
			return err
		}
		cfg = c
		zapLogger, logger, err = logging.New(cfg.LogLevel)
		return err
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := []devserver.Option{
			devserver.WithLogger(logger),
			devserver.WithAccessTTL(cfg.AccessTTL),
			devserver.WithRefreshTTL(cfg.RefreshTTL),
			devserver.WithRefreshRotation(rotate),
		}
		if cfg.JWTSecret != "" {
			opts = append(opts, devserver.WithSecret([]byte(cfg.JWTSecret)))
		} else {
			logger.Warn("no jwt_secret set, using a random key; tokens end with this process")
		}
		srv, err := devserver.New(opts...)
		if err != nil {
			return err
		}
		for _, arg := range seedUsers {
			if err := seedUser(srv, arg); err != nil {
				return err
			}
		}

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})
		r.Mount("/", srv.Router())

		server := &http.Server{
			Addr:              cfg.Listen,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner()
		fmt.Printf("Listening on %s (docs at /docs)...\n", cfg.Listen)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			fmt.Printf("\nReceived %s, shutting down...\n", sig)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

// seedUser adds an account from a "name:password[:role]" flag value.
func seedUser(srv *devserver.Server, arg string) error {
	parts := strings.SplitN(arg, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("invalid --user %q, want name:password[:role]", arg)
	}
	role := "user"
	if len(parts) == 3 && parts[2] != "" {
		role = parts[2]
	}
	id, err := srv.AddUser(parts[0], parts[0]+"@example.com", parts[1], role)
	if err != nil {
		return fmt.Errorf("seeding %s: %w", parts[0], err)
	}
	logger.Info("seeded user", "username", parts[0], "id", id, "role", role)
	return nil
}

func init() {
	rootCmd.AddCommand(devserverCmd)
	d := config.Defaults()
	f := devserverCmd.Flags()
	f.String("listen", d.Listen, "Address to listen on")
	f.String("jwt-secret", "", "HS256 signing secret (random when empty)")
	f.Duration("access-ttl", d.AccessTTL, "Access token lifetime")
	f.Duration("refresh-ttl", d.RefreshTTL, "Refresh token lifetime")
	f.BoolVar(&rotate, "rotate", false, "Issue a new refresh token on every refresh")
	f.StringArrayVar(&seedUsers, "user", nil, "Seed an account as name:password[:role]; repeatable")
}
