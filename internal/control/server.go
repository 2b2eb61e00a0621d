// Package control exposes the pipeline's manual controls and live event
// stream over HTTP: mute, force-respond, and skip map onto the
// orchestrator's controls, /state reports the current machine state, and
// /ws streams state, transcript, and response events to connected clients.
package control

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/standin-ai/standin/internal/brain"
	"github.com/standin-ai/standin/internal/health"
	"github.com/standin-ai/standin/internal/observe"
	"github.com/standin-ai/standin/internal/orchestrator"
)

// Pipeline is the slice of the orchestrator the control surface drives.
// *orchestrator.Orchestrator satisfies it.
type Pipeline interface {
	State() orchestrator.State
	Muted() bool
	Latency() orchestrator.Latency
	ToggleMute() bool
	ForceRespond(ctx context.Context)
	SkipResponse()

	OnStateChange(fn func(orchestrator.State))
	OnTranscript(fn func(string))
	OnDetection(fn func(brain.Decision))
	OnResponse(fn func(string))
	OnStatus(fn func(string))
	OnLatency(fn func(orchestrator.Latency))
}

// Config holds control server settings.
type Config struct {
	// ListenAddr is the TCP address to listen on.
	ListenAddr string

	// ShutdownTimeout bounds graceful shutdown. Default 5 s.
	ShutdownTimeout time.Duration
}

// Server is the HTTP control surface. Create with [New], then [Server.Run].
type Server struct {
	cfg      Config
	pipeline Pipeline
	hub      *hub
	http     *http.Server
}

// New creates the control server, subscribes the event hub to the pipeline's
// observer streams, and builds the route table. The health handler and
// metrics are optional.
func New(cfg Config, p Pipeline, healthHandler *health.Handler, metrics *observe.Metrics) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}

	s := &Server{
		cfg:      cfg,
		pipeline: p,
		hub:      newHub(),
	}

	p.OnStateChange(func(st orchestrator.State) {
		s.hub.broadcast(event{Type: "state", State: string(st)})
	})
	p.OnTranscript(func(text string) {
		s.hub.broadcast(event{Type: "transcript", Text: text})
	})
	p.OnDetection(func(d brain.Decision) {
		s.hub.broadcast(event{
			Type:       "detection",
			Action:     string(d.Action),
			Reason:     d.Reason,
			Confidence: d.Intent.Confidence,
			Summary:    d.Intent.Summary,
		})
	})
	p.OnResponse(func(text string) {
		s.hub.broadcast(event{Type: "response", Text: text})
	})
	p.OnStatus(func(msg string) {
		s.hub.broadcast(event{Type: "status", Text: msg})
	})
	p.OnLatency(func(l orchestrator.Latency) {
		s.hub.broadcast(event{Type: "latency", Latency: latencyBody(l)})
	})

	mux := http.NewServeMux()
	mux.HandleFunc("POST /control/mute", s.handleMute)
	mux.HandleFunc("POST /control/force", s.handleForce)
	mux.HandleFunc("POST /control/skip", s.handleSkip)
	mux.HandleFunc("GET /state", s.handleState)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.Handle("GET /metrics", promhttp.Handler())
	if healthHandler != nil {
		healthHandler.Register(mux)
	}

	var handler http.Handler = mux
	if metrics != nil {
		handler = observe.Middleware(metrics)(mux)
	}
	s.http = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully and closes
// all websocket clients.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("control server listening", "addr", s.cfg.ListenAddr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	s.hub.closeAll()
	return s.http.Shutdown(shutdownCtx)
}

// Handler returns the server's root handler. For tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

type stateBody struct {
	State   string      `json:"state"`
	Muted   bool        `json:"muted"`
	Latency latencyJSON `json:"latency"`
}

type latencyJSON struct {
	IntentMS    int64 `json:"intent_ms"`
	GenerateMS  int64 `json:"generate_ms"`
	SynthesisMS int64 `json:"synthesis_ms"`
	PlaybackMS  int64 `json:"playback_ms"`
}

func latencyBody(l orchestrator.Latency) *latencyJSON {
	return &latencyJSON{
		IntentMS:    l.Intent.Milliseconds(),
		GenerateMS:  l.Generate.Milliseconds(),
		SynthesisMS: l.Synthesis.Milliseconds(),
		PlaybackMS:  l.Playback.Milliseconds(),
	}
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, stateBody{
		State:   string(s.pipeline.State()),
		Muted:   s.pipeline.Muted(),
		Latency: *latencyBody(s.pipeline.Latency()),
	})
}

func (s *Server) handleMute(w http.ResponseWriter, _ *http.Request) {
	muted := s.pipeline.ToggleMute()
	writeJSON(w, http.StatusOK, map[string]any{"muted": muted})
}

func (s *Server) handleForce(w http.ResponseWriter, r *http.Request) {
	// The check runs asynchronously; 202 tells the caller it was accepted,
	// not that a response will necessarily be spoken.
	s.pipeline.ForceRespond(context.WithoutCancel(r.Context()))
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted"})
}

func (s *Server) handleSkip(w http.ResponseWriter, _ *http.Request) {
	s.pipeline.SkipResponse()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("control: encode response", "error", err)
	}
}
