package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/grabarr/grabarr/internal/actions"
	"github.com/grabarr/grabarr/internal/browse"
	"github.com/grabarr/grabarr/internal/config"
	"github.com/grabarr/grabarr/internal/dockerctl"
	"github.com/grabarr/grabarr/internal/events"
	"github.com/grabarr/grabarr/internal/logging"
	"github.com/grabarr/grabarr/internal/proxy/server"
	"github.com/grabarr/grabarr/internal/rcd"
	"github.com/grabarr/grabarr/internal/runner"
	"github.com/grabarr/grabarr/internal/scheduler"
	"github.com/grabarr/grabarr/internal/store"
)

func newServeCommand() *cobra.Command {
	var dockerSocket string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server, scheduler and transfer engine",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, dockerSocket)
		},
	}
	cmd.Flags().StringVar(&dockerSocket, "docker-socket", "", "Docker engine socket for container actions")
	return cmd
}

func serve(ctx context.Context, dockerSocket string) error {
	cfg := config.Load()
	server.Version = Version

	storeInstance, err := store.Initialize(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	defer storeInstance.Close()

	if err := storeInstance.Database.Migrate(); err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	rc, err := rcd.NewClient(cfg.DataDir,
		rcd.WithAddress(cfg.RcdAddress),
		rcd.WithBinary(cfg.RcloneBinary))
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	if cfg.ManageRcd {
		if err := rc.StartDaemon(ctx); err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		defer rc.StopDaemon()
	}

	broker := events.NewBroker()
	docker := dockerctl.NewClient(dockerSocket)
	pipeline := actions.NewPipeline(storeInstance, rc, docker)

	engine := runner.NewRunner(ctx, storeInstance, rc, pipeline, broker)
	defer engine.Close()

	sched := scheduler.NewScheduler(ctx, storeInstance, engine)
	defer sched.Close()
	if err := sched.Sync(); err != nil {
		logging.L.Error(err).WithMessage("initial schedule sync failed").Write()
	}

	sessions := browse.NewManager(rc)
	defer sessions.Close()

	return server.StartServer(ctx, cfg, server.Deps{
		Store:    storeInstance,
		Runner:   engine,
		Sched:    sched,
		Sessions: sessions,
		Broker:   broker,
	})
}
