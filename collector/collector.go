// Package collector implements the local report receiver that cavy runs
// probe and post their reports to.
package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"github.com/ethereum-optimism/infra/op-cavy/metrics"
	"github.com/ethereum-optimism/infra/op-cavy/reporter"
	"github.com/ethereum-optimism/infra/op-cavy/types"
)

const (
	DefaultHistory = 64
	maxReportBytes = 10 << 20
)

// Config holds configuration for creating a new Server
type Config struct {
	Addr      string  // listen address, defaults to reporter.DefaultCollectorAddr
	History   int     // number of reports kept for GET /reports
	RateLimit float64 // accepted reports per second, zero disables the limit
	OnReport  func(id string, report *types.Report)
	Log       log.Logger
}

// Server receives reports over HTTP.
type Server struct {
	addr     string
	log      log.Logger
	onReport func(id string, report *types.Report)
	reports  *lru.Cache[string, *types.Report]
	limiter  *rate.Limiter
	handler  http.Handler

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
	running  atomic.Bool
}

func New(cfg Config) (*Server, error) {
	if cfg.Addr == "" {
		cfg.Addr = reporter.DefaultCollectorAddr
	}
	if cfg.History <= 0 {
		cfg.History = DefaultHistory
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	cache, err := lru.New[string, *types.Report](cfg.History)
	if err != nil {
		return nil, fmt.Errorf("failed to create report cache: %w", err)
	}
	s := &Server{
		addr:     cfg.Addr,
		log:      cfg.Log,
		onReport: cfg.OnReport,
		reports:  cache,
	}
	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(1, int(cfg.RateLimit)))
	}
	s.handler = s.routes()
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleProbe).Methods(http.MethodGet)
	r.HandleFunc(reporter.ReportPath, s.handleReport).Methods(http.MethodPost)
	r.HandleFunc("/reports", s.handleList).Methods(http.MethodGet)
	r.HandleFunc("/reports/{id}", s.handleGet).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(r)
}

// Handler returns the HTTP handler of the collector.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) handleProbe(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write([]byte(reporter.CollectorAck)); err != nil {
		s.log.Error("failed to answer probe", "err", err)
	}
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil && !s.limiter.Allow() {
		s.log.Warn("rejected report: rate limit exceeded")
		metrics.RecordCollectedReport(metrics.ResultRateLimited)
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many reports"})
		return
	}
	var report types.Report
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxReportBytes))
	if err := dec.Decode(&report); err != nil {
		s.log.Warn("rejected malformed report", "err", err)
		metrics.RecordErrorDetails("collector.decode", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed report"})
		return
	}
	if report.Results == nil {
		report.Results = []types.TestResult{}
	}
	if err := report.Validate(); err != nil {
		// keep it anyway; the runner's view is authoritative
		s.log.Warn("received inconsistent report", "err", err)
	}

	id := uuid.New().String()
	report.RunID = id
	s.reports.Add(id, &report)
	metrics.RecordCollectedReport(metrics.ResultLabel(!report.Failed()))
	s.log.Info("Received cavy report", "id", id, "tests", len(report.Results),
		"errors", report.ErrorCount, "duration", report.Duration)

	if s.onReport != nil {
		s.onReport(id, &report)
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"reports": s.reports.Keys()})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	report, ok := s.reports.Peek(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown report"})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Report returns a stored report by id.
func (s *Server) Report(id string) (*types.Report, bool) {
	return s.reports.Peek(id)
}

// ReportIDs returns stored report ids, oldest first.
func (s *Server) ReportIDs() []string {
	return s.reports.Keys()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to write response", "err", err)
	}
}

// Start begins listening and serves in the background.
// Start implements the cliapp.Lifecycle interface.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = l
	s.srv = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.running.Store(true)
	s.log.Info("cavy collector listening", "addr", l.Addr().String())

	go func() {
		if err := s.srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("collector server stopped", "err", err)
			metrics.RecordErrorDetails("collector.serve", err)
		}
		s.running.Store(false)
	}()
	return nil
}

// Addr returns the bound address once started, the configured one before.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop shuts the server down.
// Stop implements the cliapp.Lifecycle interface.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.running.Store(false)
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop collector: %w", err)
	}
	s.log.Info("cavy collector stopped")
	return nil
}

// Stopped reports whether the server is not serving.
// Stopped implements the cliapp.Lifecycle interface.
func (s *Server) Stopped() bool {
	return !s.running.Load()
}
