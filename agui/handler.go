package agui

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"

	"github.com/spetersoncode/loom/agent"
)

// Handler runs an agent for AG-UI requests and streams the events over SSE.
type Handler struct {
	agent   *agent.Agent
	runOpts []agent.Option
	logger  *slog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithRunOptions applies opts to every run.
func WithRunOptions(opts ...agent.Option) HandlerOption {
	return func(h *Handler) {
		h.runOpts = append(h.runOpts, opts...)
	}
}

// WithLogger sets the handler logger.
func WithLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHandler creates a Handler for a.
func NewHandler(a *agent.Agent, opts ...HandlerOption) *Handler {
	h := &Handler{agent: a, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP handles POST requests carrying a RunAgentInput.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if r.Method != http.MethodPost {
		h.logger.Warn("method not allowed", "method", r.Method, "path", r.URL.Path)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var input RunAgentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.logger.Warn("invalid request body", "error", err)
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	log := h.logger.With("run_id", input.RunID, "thread_id", input.ThreadID)

	prepared, err := input.Prepare()
	if err != nil {
		log.Warn("invalid input", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		log.Error("streaming not supported")
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	log.Info("request started", "message_count", len(prepared.Messages))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	mapper := NewMapper(prepared.ThreadID, prepared.RunID)
	out := mapper.MapStream(h.agent.RunStream(ctx, prepared.Messages, h.runOpts...))

	var sent int
	for ev := range out {
		if err := writeSSE(w, flusher, ev); err != nil {
			log.Error("failed to write SSE event", "error", err, "event_type", ev.Type())
			cancel()
			for range out {
			}
			return
		}
		sent++
	}

	log.Info("request completed",
		"duration_ms", time.Since(start).Milliseconds(),
		"events_sent", sent,
	)
}

// writeSSE writes an AG-UI event in SSE format.
func writeSSE(w io.Writer, flusher http.Flusher, ev events.Event) error {
	data, err := ev.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type(), data); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	flusher.Flush()
	return nil
}

// CORS adds permissive CORS headers for browser frontends.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
