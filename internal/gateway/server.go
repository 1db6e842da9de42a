// Package gateway serves the Twilio webhook endpoints and owns the
// runtime lifecycle around the dialog machine: HTTP serving, session
// janitor, metrics exposure and graceful shutdown.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/callbridge/internal/config"
	"github.com/haasonsaas/callbridge/internal/dialog"
	"github.com/haasonsaas/callbridge/internal/observability"
	"github.com/haasonsaas/callbridge/internal/sessions"
	"github.com/haasonsaas/callbridge/internal/twiml"
)

// Webhook paths. Twilio posts speech results to PathTurn; PathWait is
// the redirect target a listen window falls through to when it closes
// without speech.
const (
	PathAnswer = "/voice/answer"
	PathTurn   = "/voice/turn"
	PathWait   = "/voice/wait"
)

// Server is the webhook HTTP server.
type Server struct {
	cfg     *config.Config
	machine *dialog.Machine
	janitor *sessions.Janitor
	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer

	httpServer *http.Server
}

// Options bundles the server's collaborators.
type Options struct {
	Config  *config.Config
	Machine *dialog.Machine
	Janitor *sessions.Janitor
	Logger  *observability.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// NewServer wires the webhook endpoints.
func NewServer(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("gateway: config is required")
	}
	if opts.Machine == nil {
		return nil, errors.New("gateway: dialog machine is required")
	}

	s := &Server{
		cfg:     opts.Config,
		machine: opts.Machine,
		janitor: opts.Janitor,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		tracer:  opts.Tracer,
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)

	voice := http.NewServeMux()
	voice.HandleFunc(PathAnswer, s.handleAnswer)
	voice.HandleFunc(PathTurn, s.handleTurn)
	voice.HandleFunc(PathWait, s.handleWait)

	var voiceHandler http.Handler = voice
	if opts.Config.Twilio.AuthToken != "" {
		voiceHandler = VerifySignature(opts.Config, opts.Logger)(voiceHandler)
	}
	mux.Handle("/voice/", s.instrument(voiceHandler))

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Config.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Start begins serving and blocks until the listener fails or Shutdown
// is called. The janitor runs for as long as the server serves.
func (s *Server) Start() error {
	if s.janitor != nil {
		s.janitor.Start()
	}
	if s.logger != nil {
		s.logger.Info(context.Background(), "webhook server listening",
			"addr", s.httpServer.Addr,
			"public_base_url", s.cfg.Server.PublicBaseURL,
		)
	}

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight webhooks and stops the janitor.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.janitor != nil {
		s.janitor.Stop()
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the full route tree for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	callID, ctx, ok := s.callID(w, r)
	if !ok {
		return
	}
	s.writeTwiML(w, r, s.machine.Answer(ctx, callID))
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	callID, ctx, ok := s.callID(w, r)
	if !ok {
		return
	}
	transcript := r.PostFormValue("SpeechResult")
	s.writeTwiML(w, r, s.machine.Turn(ctx, callID, transcript))
}

func (s *Server) handleWait(w http.ResponseWriter, r *http.Request) {
	callID, ctx, ok := s.callID(w, r)
	if !ok {
		return
	}
	s.writeTwiML(w, r, s.machine.Wait(ctx, callID))
}

// callID extracts the call SID from the form-encoded webhook body and
// attaches it to the context so every log line downstream carries it.
func (s *Server) callID(w http.ResponseWriter, r *http.Request) (string, context.Context, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return "", nil, false
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return "", nil, false
	}
	callID := r.PostFormValue("CallSid")
	if callID == "" {
		http.Error(w, "missing CallSid", http.StatusBadRequest)
		return "", nil, false
	}
	ctx := context.WithValue(r.Context(), observability.CallIDKey, callID)
	return callID, ctx, true
}

func (s *Server) writeTwiML(w http.ResponseWriter, r *http.Request, resp *twiml.Response) {
	body, err := resp.Render()
	if err != nil {
		if s.logger != nil {
			s.logger.Error(r.Context(), "twiml render failed", "error", err)
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", twiml.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
