package main

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/grabarr/grabarr/internal/actions"
	"github.com/grabarr/grabarr/internal/config"
	"github.com/grabarr/grabarr/internal/dockerctl"
	"github.com/grabarr/grabarr/internal/events"
	"github.com/grabarr/grabarr/internal/rcd"
	"github.com/grabarr/grabarr/internal/runner"
	"github.com/grabarr/grabarr/internal/store"
)

func newRunJobCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run-job <id>",
		Short: "Run one job to completion and exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q", args[0])
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runJob(ctx, jobID)
		},
	}
}

func runJob(ctx context.Context, jobID int64) error {
	cfg := config.Load()

	storeInstance, err := store.Initialize(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("run-job: %w", err)
	}
	defer storeInstance.Close()

	if err := storeInstance.Database.Migrate(); err != nil {
		return fmt.Errorf("run-job: %w", err)
	}

	rc, err := rcd.NewClient(cfg.DataDir,
		rcd.WithAddress(cfg.RcdAddress),
		rcd.WithBinary(cfg.RcloneBinary))
	if err != nil {
		return fmt.Errorf("run-job: %w", err)
	}
	if cfg.ManageRcd {
		if err := rc.StartDaemon(ctx); err != nil {
			return fmt.Errorf("run-job: %w", err)
		}
		defer rc.StopDaemon()
	}

	broker := events.NewBroker()
	pipeline := actions.NewPipeline(storeInstance, rc, dockerctl.NewClient(""))
	engine := runner.NewRunner(ctx, storeInstance, rc, pipeline, broker)
	defer engine.Close()

	if err := engine.RunJob(ctx, jobID, runner.ExecManual); err != nil {
		return fmt.Errorf("run-job: %w", err)
	}

	// The monitor finishes asynchronously. Wait for it to drain.
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for engine.ActiveCount(jobID) > 0 {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
