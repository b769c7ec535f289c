package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"cookidoo-planner/internal/httpapi"
	"cookidoo-planner/internal/storage"
	"cookidoo-planner/internal/telegram"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "cookidoo-planner",
		Short:        "Weekly meal planner backed by a recipe service",
		SilenceUsage: true,
	}
	root.AddCommand(
		newServeCmd(),
		newTelegramCmd(),
		newConfigCmd(),
		newUsersCmd(),
		newMetricsCleanupCmd(),
	)
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, and the Telegram webhook when a bot token is set",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadServices(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer s.Close()

			if s.cfg.LogLevel > slog.LevelDebug {
				gin.SetMode(gin.ReleaseMode)
			}
			api := httpapi.New(s.app, s.logger)

			if s.cfg.TelegramBotToken != "" {
				bot, err := telegram.NewBot(s.cfg, s.app, s.logger)
				if err != nil {
					return fmt.Errorf("failed to initialize Telegram bot: %w", err)
				}
				api.Webhook("/webhook", bot.WebhookHandler())
			}

			stop := s.scheduleCleanup()
			defer stop()

			return listen(s.cfg.Port, api.Handler(), s)
		},
	}
}

func newTelegramCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "telegram",
		Short: "Run only the Telegram webhook server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadServices(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer s.Close()

			if s.cfg.TelegramBotToken == "" {
				return errors.New("TELEGRAM_BOT_TOKEN environment variable not set")
			}
			bot, err := telegram.NewBot(s.cfg, s.app, s.logger)
			if err != nil {
				return fmt.Errorf("failed to initialize Telegram bot: %w", err)
			}

			mux := http.NewServeMux()
			mux.HandleFunc("/webhook", bot.WebhookHandler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
				fmt.Fprint(w, "OK")
			})

			stop := s.scheduleCleanup()
			defer stop()

			return listen(s.cfg.Port, mux, s)
		},
	}
}

// listen serves until SIGINT or SIGTERM, then shuts down gracefully.
func listen(port string, handler http.Handler, s *services) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}
	s.logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	s.logger.Info("server exiting")
	return nil
}

// scheduleCleanup prunes the backend call log every night.
func (s *services) scheduleCleanup() (stop func()) {
	c := cron.New()
	days := s.cfg.MetricsRetentionDays
	_, err := c.AddFunc("@daily", func() {
		removed, err := s.app.CleanupMetrics(context.Background(), days)
		if err != nil {
			s.logger.Error("metrics cleanup failed", "error", err)
			return
		}
		s.logger.Info("metrics cleanup done", "removed", removed, "retention_days", days)
	})
	if err != nil {
		s.logger.Error("failed to schedule metrics cleanup", "error", err)
		return func() {}
	}
	c.Start()
	return func() { <-c.Stop().Done() }
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Export, import or delete a user's planner configuration",
	}

	var exportUser string
	export := &cobra.Command{
		Use:   "export",
		Short: "Print a user's configuration as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadServices(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.Close()

			data, err := s.app.ExportConfig(cmd.Context(), exportUser)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	export.Flags().StringVar(&exportUser, "user", "", "user id")
	_ = export.MarkFlagRequired("user")

	var importUser, file string
	imp := &cobra.Command{
		Use:   "import",
		Short: "Replace a user's configuration with a JSON file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", file, err)
			}
			s, err := loadServices(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.app.ImportConfig(cmd.Context(), importUser, data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported configuration for %s.\n", importUser)
			return nil
		},
	}
	imp.Flags().StringVar(&importUser, "user", "", "user id")
	imp.Flags().StringVar(&file, "file", "", "JSON file to import")
	_ = imp.MarkFlagRequired("user")
	_ = imp.MarkFlagRequired("file")

	var deleteUser string
	del := &cobra.Command{
		Use:   "delete",
		Short: "Remove a user's stored configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadServices(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.app.DeleteConfig(cmd.Context(), deleteUser); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted configuration for %s.\n", deleteUser)
			return nil
		},
	}
	del.Flags().StringVar(&deleteUser, "user", "", "user id")
	_ = del.MarkFlagRequired("user")

	cmd.AddCommand(export, imp, del)
	return cmd
}

func newUsersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List users with a stored configuration (sqlite store only)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadServices(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.Close()

			repo, ok := s.store.(*storage.Repository)
			if !ok {
				return fmt.Errorf("store driver %q cannot list users", s.cfg.StoreDriver)
			}
			users, err := repo.Users(cmd.Context())
			if err != nil {
				return err
			}
			for _, u := range users {
				fmt.Fprintln(cmd.OutOrStdout(), u)
			}
			return nil
		},
	}
}

func newMetricsCleanupCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "metrics-cleanup",
		Short: "Remove old backend call records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadServices(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.Close()

			if days <= 0 {
				days = s.cfg.MetricsRetentionDays
			}
			affected, err := s.app.CleanupMetrics(cmd.Context(), days)
			if err != nil {
				return fmt.Errorf("cleanup failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Successfully removed %d old metric records.\n", affected)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "keep records for the last N days (default METRICS_RETENTION_DAYS)")
	return cmd
}
