// Command ocr-worker drives one browser profile through a batch of scanned
// documents: it claims files in the shared store, runs each through the chat
// UI, and persists the recognized text.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/phuslu/log"
	"github.com/spf13/cobra"

	"github.com/tomaasz/ocr-dashboard-v2/pkg/browser"
	"github.com/tomaasz/ocr-dashboard-v2/pkg/config"
	"github.com/tomaasz/ocr-dashboard-v2/pkg/store"
	"github.com/tomaasz/ocr-dashboard-v2/pkg/worker"
)

func main() {
	root := &cobra.Command{
		Use:           "ocr-worker",
		Short:         "Browser-automation OCR worker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(runCmd(), eventsCmd())

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func setup() (*config.Config, log.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, log.Logger{}, err
	}
	logger := log.Logger{
		Level:      log.ParseLevel(cfg.LogLevel),
		TimeFormat: "15:04:05",
		Writer: &log.ConsoleWriter{
			ColorOutput:    true,
			EndWithMessage: true,
		},
	}
	log.DefaultLogger = logger
	return cfg, logger, nil
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Process the source directory for this profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			if cfg.SourcePath == "" {
				return fmt.Errorf("OCR_SOURCE_PATH is required")
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			st, err := store.Open(cfg.DBDSN, cfg.ProfileName, cfg.DBEnabled, logger)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			// An interrupted batch must free its claims right away instead
			// of waiting out the lease TTL.
			defer st.ReleaseAllMine()

			manager := browser.NewManager(cfg, st, logger)
			if _, err := manager.Start(ctx); err != nil {
				return err
			}
			defer manager.Close(context.Background())

			runner := worker.NewRunner(cfg, st, manager, logger)
			logger.Info().
				Str("profile", cfg.ProfileName).
				Str("source", cfg.SourcePath).
				Str("batch_id", runner.BatchID()).
				Msg("worker starting")

			if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			logger.Info().Msg("worker finished")
			return nil
		},
	}
}

func eventsCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "events [resolve <id>]",
		Short: "List or resolve critical events for this profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			st, err := store.Open(cfg.DBDSN, cfg.ProfileName, cfg.DBEnabled, logger)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			if len(args) == 2 && args[0] == "resolve" {
				id, err := strconv.ParseUint(args[1], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid event id %q", args[1])
				}
				st.ResolveCriticalEvent(uint(id))
				return nil
			}

			profile := cfg.ProfileName
			if all {
				profile = ""
			}
			events := st.CriticalEvents(profile, true)
			if len(events) == 0 {
				fmt.Println("no unresolved events")
				return nil
			}
			for _, ev := range events {
				fmt.Printf("#%d  %-22s %-18s %s\n", ev.ID, ev.EventType, ev.ProfileName, ev.Message)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "show events for every profile")
	return cmd
}
