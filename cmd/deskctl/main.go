package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"answerdesk/api/internal/config"
	"answerdesk/api/internal/notify"
	"answerdesk/api/internal/search"
	"answerdesk/api/internal/store"
	"answerdesk/api/internal/sweep"
)

var (
	cfg    config.Config
	logger *slog.Logger

	migrateStatusOnly bool
	sweepJSON         bool
)

var rootCmd = &cobra.Command{
	Use:           "deskctl",
	Short:         "Operator commands for the answerdesk API",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd.Context(), func(db *sql.DB) error {
			if migrateStatusOnly {
				pending, err := store.PendingMigrations(cmd.Context(), db, cfg.MigrationsDir)
				if err != nil {
					return err
				}
				if len(pending) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "database is up to date")
					return nil
				}
				for _, version := range pending {
					fmt.Fprintf(cmd.OutOrStdout(), "pending  %s\n", version)
				}
				return nil
			}

			applied, err := store.ApplyMigrations(cmd.Context(), db, cfg.MigrationsDir)
			if err != nil {
				return err
			}
			for _, version := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied  %s\n", version)
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to apply")
			}
			return nil
		})
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one deadline pass: close expired questions and send reminders",
	Long: `Runs the same pass the API schedules. Live events are not published from
here; notifications are still written and appear on the next fetch.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd.Context(), func(db *sql.DB) error {
			meili := openMeili()
			if meili != nil {
				defer meili.Close()
			}
			dataStore := store.NewPostgresStore(db)
			searchService := search.NewService(meili, search.NewPgFTS(db), logger)
			sweeper := sweep.New(dataStore, notify.NewService(dataStore, nil, logger), searchService, cfg.ReminderWindow, logger)

			report, err := sweeper.Run(cmd.Context())
			if err != nil {
				return err
			}
			if sweepJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(report)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "closed %d question(s); %d reminder(s) across %d question(s)\n",
				report.Closed, report.Reminders, report.Reminded)
			return nil
		})
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the search index from the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		meili := openMeili()
		if meili == nil {
			return errors.New("reindex needs MEILI_URL; postgres full-text search has no separate index")
		}
		defer meili.Close()
		return withDB(cmd.Context(), func(db *sql.DB) error {
			count, err := search.NewService(meili, search.NewPgFTS(db), logger).ReindexAllFromPG(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d question(s)\n", count)
			return nil
		})
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateStatusOnly, "status", false, "list pending migrations without applying them")
	sweepCmd.Flags().BoolVar(&sweepJSON, "json", false, "print the pass report as JSON")
	rootCmd.AddCommand(migrateCmd, sweepCmd, reindexCmd)
}

func withDB(ctx context.Context, fn func(*sql.DB) error) error {
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

func openMeili() *search.Meili {
	if strings.TrimSpace(cfg.MeiliURL) == "" {
		return nil
	}
	return search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "deskctl:", err)
		os.Exit(1)
	}
}
