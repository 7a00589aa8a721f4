package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vango-go/mock-interview/pkg/gateway/config"
	gatewayserver "github.com/vango-go/mock-interview/pkg/gateway/server"
	"github.com/vango-go/mock-interview/pkg/interview/persona"
)

func newServeCmd(deps cliDeps) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the interview gateway for browser clients",
		Long: `serve exposes GET /v1/personas and the /v1/interview WebSocket. Each
WebSocket connection drives one interview and receives state, transcript,
score and summary frames.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, catalog, err := setup(deps)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			return runGateway(cmd.Context(), cfg, logger, catalog, deps)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides MOCK_INTERVIEW_ADDR)")
	return cmd
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func runGateway(ctx context.Context, cfg config.Config, logger *slog.Logger, catalog *persona.Catalog, deps cliDeps) error {
	if deps.newGateway == nil || deps.newTransport == nil {
		return errors.New("missing gateway dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	gw := deps.newGateway(cfg, logger, gatewayserver.Deps{
		Transport: deps.newTransport(cfg, logger),
		Catalog:   catalog,
	})
	httpSrv := buildHTTPServer(cfg, gw.Handler())

	if cfg.AgentID == "" {
		logger.Warn("ELEVENLABS_AGENT_ID is not set; interviews will fail to start")
	}
	logger.Info("starting gateway", "addr", cfg.Addr, "auth_enabled", len(cfg.APIKeys) > 0, "personas", len(catalog.IDs()))

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("context cancelled; shutting down")
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	gw.SetDraining(true)
	warned := gw.WarnInterviewsDraining()
	logger.Info("draining", "interviews", warned)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	// Hijacked interview sockets are not tracked by Shutdown; end them
	// explicitly so each client gets its summary.
	gw.EndInterviews(shutdownCtx)
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	if !gw.WaitInterviews(shutdownCtx) {
		logger.Warn("interviews still running after grace period", "active", gw.ActiveInterviews())
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("gateway stopped")
	return nil
}
