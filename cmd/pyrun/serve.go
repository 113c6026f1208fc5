package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"goa.design/clue/log"

	"github.com/michaelbrown/pyrun/internal/runner"
	"github.com/michaelbrown/pyrun/internal/server"
)

var portFlag int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the pyrun HTTP server",
	Long: `Start the pyrun HTTP server with REST API and WebSocket support.

The editor endpoints /run_code, /lint_code and /autocomplete are served at the
root. Run history, status and the WebSocket are under /api.

Examples:
  pyrun serve
  pyrun serve --port 9090`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, err := logContext()
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.Print(ctx,
		log.KV{K: "launcher", V: cfg.Sandbox.Launcher},
		log.KV{K: "workers", V: cfg.Sandbox.Workers},
		log.KV{K: "history", V: cfg.Storage.History},
	)

	stack, err := runner.Start(ctx, cfg, runner.StartOptions{Sandbox: true, History: true})
	if err != nil {
		return err
	}
	defer stack.Close()

	// Determine port
	port := cfg.Server.Port
	if portFlag > 0 {
		port = portFlag
	}

	srv := server.New(stack.Service, server.Options{
		RateLimit: cfg.Server.RateLimit,
		Burst:     cfg.Server.Burst,
	})

	// Graceful shutdown on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		select {
		case sig := <-sigCh:
			log.Printf(ctx, "received %s", sig)
			if err := srv.Shutdown(context.WithoutCancel(ctx)); err != nil {
				log.Errorf(ctx, err, "shutdown")
			}
		case <-ctx.Done():
		}
	}()

	err = srv.Start(ctx, port)
	if !errors.Is(err, http.ErrServerClosed) {
		cancel()
		<-stopped
		return err
	}
	// Let in-flight requests drain before the pool goes away.
	<-stopped
	return nil
}
