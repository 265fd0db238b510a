package service

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/ethereum-optimism/infra/op-cavy/metrics"
)

const (
	HealthzHost = "0.0.0.0"
	HealthzPort = 8080

	MetricsHost = "0.0.0.0"
	MetricsPort = 7300

	shutdownTimeout = 5 * time.Second
)

type Config struct {
	HealthzAddr    string // empty disables the healthz server
	MetricsEnabled bool
	MetricsAddr    string
	Log            log.Logger
}

// DefaultConfig serves healthz and metrics on their default ports.
func DefaultConfig() Config {
	return Config{
		HealthzAddr:    net.JoinHostPort(HealthzHost, strconv.Itoa(HealthzPort)),
		MetricsEnabled: true,
		MetricsAddr:    net.JoinHostPort(MetricsHost, strconv.Itoa(MetricsPort)),
	}
}

type Service struct {
	Healthz *HealthzServer
	Metrics *MetricsServer

	log   log.Logger
	group errgroup.Group
}

func New(cfg Config) *Service {
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	s := &Service{log: cfg.Log}
	if cfg.HealthzAddr != "" {
		s.Healthz = NewHealthzServer(cfg.HealthzAddr, cfg.Log)
	}
	if cfg.MetricsEnabled && cfg.MetricsAddr != "" {
		s.Metrics = NewMetricsServer(cfg.MetricsAddr)
	}
	return s
}

func (s *Service) Start() {
	s.log.Info("service starting")

	if s.Healthz != nil {
		s.group.Go(func() error {
			return s.serve("healthz", s.Healthz.server.Addr, s.Healthz.Start)
		})
	}
	if s.Metrics != nil {
		s.group.Go(func() error {
			return s.serve("metrics", s.Metrics.server.Addr, s.Metrics.Start)
		})
	}

	s.log.Info("service started")
}

func (s *Service) serve(name, addr string, start func() error) error {
	s.log.Info("starting "+name+" server", "addr", addr)
	if err := start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Error("error starting "+name+" server", "err", err)
		metrics.RecordErrorDetails("service."+name, err)
		return err
	}
	return nil
}

// Shutdown stops both servers and waits for their serve loops to return.
// Serve failures were already logged and counted when they happened; they
// never surface here, so a broken healthz or metrics listener cannot change
// the outcome of a run.
func (s *Service) Shutdown() {
	s.log.Info("service shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if s.Healthz != nil {
		_ = s.Healthz.Shutdown(ctx)
		s.log.Info("healthz stopped")
	}
	if s.Metrics != nil {
		_ = s.Metrics.Shutdown(ctx)
		s.log.Info("metrics stopped")
	}

	if err := s.group.Wait(); err != nil {
		s.log.Warn("service ran with errors", "err", err)
	}
	s.log.Info("service stopped")
}
