package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/halcyon-systems/halcyon/internal/server"
	"github.com/halcyon-systems/halcyon/internal/watcher"
)

// NewRunCmd creates the run command: the long-running engine with the
// validation watcher and the HTTP API.
func NewRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the healing engine (watcher + HTTP API)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine()
		},
	}
}

func runEngine() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng, cfg, cleanup, err := buildEngine(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	sweeper := watcher.New(eng.Store(), eng.Validator(), cfg.InstanceID, cfg.Watcher, cfg.Healing, nil)
	sweeper.Start(ctx)

	addr := cfg.Server.Addr
	if addr == "" {
		addr = ":8090"
	}
	serverCfg := cfg.Server
	serverCfg.Addr = addr
	srv := server.New(serverCfg, eng)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		color.Yellow("received %s, shutting down", sig)
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		color.Red("server shutdown: %v", err)
	}
	sweeper.Stop(shutdownCtx)
	if err := eng.Drain(shutdownCtx); err != nil {
		color.Red("cascade drain: %v", err)
	}
	color.Green("shutdown complete")
	return nil
}
