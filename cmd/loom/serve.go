package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	ai "github.com/spetersoncode/loom"
	"github.com/spetersoncode/loom/agent"
	"github.com/spetersoncode/loom/agui"
	"github.com/spetersoncode/loom/tool"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the agent to AG-UI frontends over SSE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(true)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			broker := tool.NewBroker(tool.WithOnSubmit(func(call ai.ToolCall) {
				logger.Info("tool call awaiting approval", "tool", call.Name, "tool_call_id", call.ID)
			}))
			var opts []agent.Option
			if len(cfg.Approve) > 0 {
				opts = append(opts, agent.WithApprover(broker.Approver(), cfg.Approve...))
			}
			a, cleanup, err := buildAgent(ctx, cfg, logger, opts...)
			if err != nil {
				return err
			}
			defer cleanup()

			return serve(ctx, cfg.Addr, newMux(a, broker, logger), logger)
		},
	}
}

// newMux routes the agent endpoint, the approval endpoint and a health
// check.
func newMux(a *agent.Agent, broker *tool.Broker, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/api/agent", agui.CORS(agui.NewHandler(a, agui.WithLogger(logger))))
	mux.Handle("/api/approve", agui.CORS(agui.ApprovalHandler(broker)))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// serve runs the server until ctx ends, then shuts it down gracefully.
func serve(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Addr:        addr,
		Handler:     h,
		ReadTimeout: 10 * time.Second,
		// SSE responses stay open for the whole run.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", addr, "endpoint", "/api/agent")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("server stopped")
	return nil
}
