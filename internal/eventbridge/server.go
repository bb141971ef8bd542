package eventbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"
)

// ServerStatus is the lifecycle state reported by GET /health.
type ServerStatus string

const (
	StatusIdle      ServerStatus = "idle"
	StatusListening ServerStatus = "listening"
	StatusDraining  ServerStatus = "draining"
)

// drainTimeout bounds Serve's shutdown once its context ends.
const drainTimeout = 2 * time.Second

var errServerDisabled = errors.New("eventbridge: server disabled")

// Server is the completion bridge: renderers running outside the process
// POST a completion for each finished effect, and the server validates it
// and hands it to an EventProcessor (normally a Router, which delivers it to
// the block waiting on it).
type Server struct {
	settings  Settings
	processor EventProcessor
	logger    Logger
	clock     func() time.Time

	mu        sync.RWMutex
	server    *http.Server
	listener  net.Listener
	status    ServerStatus
	listening time.Time
	stats     bridgeStats
}

type bridgeStats struct {
	accepted  int64
	rejected  int64
	lastEvent time.Time
}

// Option customizes server construction.
type Option func(*Server)

// WithProcessor sets where accepted completions go.
func WithProcessor(p EventProcessor) Option {
	return func(s *Server) {
		if p != nil {
			s.processor = p
		}
	}
}

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock stamps server times from clock.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewServer prepares a bridge. Nothing listens until Start or Serve.
func NewServer(settings Settings, opts ...Option) *Server {
	s := &Server{
		settings:  settings,
		processor: EventProcessorFunc(func(Event) error { return nil }),
		logger:    nopLogger{},
		clock:     time.Now,
		status:    StatusIdle,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Start binds the listener and accepts completions in the background.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("eventbridge: server is nil")
	}
	if !s.settings.Enabled {
		return errServerDisabled
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("eventbridge: server already started")
	}
	addr := s.settings.Address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("eventbridge: listen %s: %w", addr, err)
	}
	httpServer := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.settings.ReadTimeout,
		WriteTimeout: s.settings.WriteTimeout,
		IdleTimeout:  s.settings.IdleTimeout,
	}
	if ctx != nil {
		httpServer.BaseContext = func(net.Listener) context.Context { return ctx }
	}
	s.listener = listener
	s.server = httpServer
	s.status = StatusListening
	s.listening = s.now()
	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("eventbridge: serve error: %v", err)
		}
	}()
	s.logger.Printf("eventbridge: accepting completions on %s", listener.Addr().String())
	return nil
}

// Serve blocks until ctx ends and then drains in-flight requests. It starts
// the listener first when Start has not been called.
func (s *Server) Serve(ctx context.Context) error {
	if s.Addr() == "" {
		if err := s.Start(ctx); err != nil {
			return err
		}
	}
	<-ctx.Done()
	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	return s.Shutdown(drainCtx)
}

// Handler returns the bridge routes without binding a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/completions", s.handleCompletions)
	return mux
}

// Accepted returns the number of completions handed to the processor.
func (s *Server) Accepted() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats.accepted
}

// Rejected returns the number of malformed or unprocessable reports.
func (s *Server) Rejected() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats.rejected
}

// Shutdown stops listening and waits for in-flight reports.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil || s.server == nil {
		return nil
	}
	s.status = StatusDraining
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Printf("eventbridge: stopped after %d accepted, %d rejected", s.stats.accepted, s.stats.rejected)
	s.listener = nil
	s.server = nil
	s.status = StatusIdle
	return nil
}

// Addr returns the bound address, or "" when not listening.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// BaseURL is where renderers should post completions.
func (s *Server) BaseURL() string {
	if addr := s.Addr(); addr != "" {
		return "http://" + addr
	}
	return s.settings.URL()
}

// Status reports the lifecycle state.
func (s *Server) Status() ServerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Server) now() time.Time {
	return s.clock().UTC()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", http.MethodGet+", "+http.MethodHead)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	now := s.now()
	s.mu.RLock()
	resp := healthResponse{
		Status:   string(s.status),
		Version:  ProtocolVersion,
		Accepted: s.stats.accepted,
		Rejected: s.stats.rejected,
	}
	if !s.listening.IsZero() && s.status == StatusListening {
		resp.UptimeSeconds = int64(now.Sub(s.listening).Seconds())
	}
	if !s.stats.lastEvent.IsZero() {
		last := s.stats.lastEvent
		resp.LastEvent = &last
	}
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	evt, status, err := s.decodeEvent(w, r)
	if err != nil {
		s.reject(w, status, err.Error())
		return
	}
	evt.StampServerTime(s.now())
	if err := s.processor.HandleEvent(evt); err != nil {
		s.logger.Printf("eventbridge: %s for block %s not processed: %v", evt.Type, evt.BlockID, err)
		s.reject(w, http.StatusInternalServerError, "event processing failed")
		return
	}
	s.mu.Lock()
	s.stats.accepted++
	s.stats.lastEvent = evt.ServerTime
	s.mu.Unlock()
	writeJSON(w, http.StatusAccepted, eventResponse{Status: "accepted", ServerTime: evt.ServerTime})
}

// decodeEvent reads one completion report, returning the HTTP status to
// answer with when it is unusable.
func (s *Server) decodeEvent(w http.ResponseWriter, r *http.Request) (Event, int, error) {
	if r.Body == nil {
		return Event{}, http.StatusBadRequest, errors.New("empty body")
	}
	reader := http.MaxBytesReader(w, r.Body, s.settings.MaxBodyBytes)
	defer reader.Close()
	body, err := io.ReadAll(reader)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return Event{}, http.StatusRequestEntityTooLarge, errors.New("payload exceeds limit")
		}
		return Event{}, http.StatusBadRequest, errors.New("unable to read body")
	}
	var evt Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return Event{}, http.StatusBadRequest, errors.New("invalid JSON")
	}
	evt.Normalize()
	if err := evt.Validate(); err != nil {
		return Event{}, http.StatusBadRequest, err
	}
	return evt, 0, nil
}

func (s *Server) reject(w http.ResponseWriter, status int, msg string) {
	s.mu.Lock()
	s.stats.rejected++
	s.mu.Unlock()
	writeError(w, status, msg)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}
