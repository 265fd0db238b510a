// Package reporter delivers run reports to a local cavy collector.
//
// Delivery is best effort: the collector is probed first and, if it answers
// with the expected acknowledgement, the report is posted. Nothing in this
// package returns an error to the runner; every failure is logged and
// counted instead.
package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"

	"github.com/ethereum-optimism/infra/op-cavy/metrics"
	"github.com/ethereum-optimism/infra/op-cavy/types"
)

const (
	DefaultCollectorAddr = "127.0.0.1:8082"
	DefaultTimeout       = 10 * time.Second

	// CollectorAck is the exact body a running collector answers the probe with.
	CollectorAck = "cavy-cli running"
	ReportPath   = "/report"

	collectorHint = "If you are using cavy-cli, make sure it is running and listening on this address. " +
		"Otherwise disable reporting with --report=off."
)

// ErrCollectorAbsent is returned by Probe when no collector answered.
var ErrCollectorAbsent = errors.New("collector not available")

// Reporter delivers a finished report.
type Reporter interface {
	ProbeAndSend(ctx context.Context, report *types.Report)
}

var _ Reporter = (*HTTPReporter)(nil)

// Config holds configuration for creating a new HTTPReporter
type Config struct {
	CollectorAddr string        // host:port of the collector
	Timeout       time.Duration // per request timeout
	Client        *http.Client  // optional, overrides Timeout
	Log           log.Logger
}

// HTTPReporter talks to a collector over HTTP.
type HTTPReporter struct {
	probeURL  string
	reportURL string
	client    *http.Client
	log       log.Logger
}

func New(cfg Config) *HTTPReporter {
	if cfg.CollectorAddr == "" {
		cfg.CollectorAddr = DefaultCollectorAddr
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	base := "http://" + cfg.CollectorAddr
	return &HTTPReporter{
		probeURL:  base + "/",
		reportURL: base + ReportPath,
		client:    cfg.Client,
		log:       cfg.Log,
	}
}

// ReportURL returns the delivery endpoint.
func (r *HTTPReporter) ReportURL() string {
	return r.reportURL
}

// Probe checks whether a collector is listening. Any transport error or an
// unexpected body yields an error wrapping ErrCollectorAbsent.
func (r *HTTPReporter) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.probeURL, nil)
	if err != nil {
		return errors.Wrapf(ErrCollectorAbsent, "building probe request: %v", err)
	}
	res, err := r.client.Do(req)
	if err != nil {
		return errors.Wrapf(ErrCollectorAbsent, "%v", err)
	}
	defer res.Body.Close()
	// one byte past the ack is enough to tell a longer body apart
	body, err := io.ReadAll(io.LimitReader(res.Body, int64(len(CollectorAck))+1))
	if err != nil {
		return errors.Wrapf(ErrCollectorAbsent, "reading probe response: %v", err)
	}
	if string(body) != CollectorAck {
		return errors.Wrapf(ErrCollectorAbsent, "unexpected probe response %q", truncate(string(body), 64))
	}
	return nil
}

// ProbeAndSend posts report if a collector answers the probe.
func (r *HTTPReporter) ProbeAndSend(ctx context.Context, report *types.Report) {
	if err := r.Probe(ctx); err != nil {
		r.log.Info("Skipping results report: no cavy collector detected", "url", r.probeURL, "reason", err)
		metrics.RecordReport(metrics.ReportSkipped)
		return
	}
	r.Send(ctx, report)
}

// Send posts report to the collector and logs the outcome.
func (r *HTTPReporter) Send(ctx context.Context, report *types.Report) {
	err := r.deliver(ctx, report)
	switch {
	case err == nil:
		r.log.Info("Cavy test report successfully sent to cavy-cli", "url", r.reportURL,
			"tests", len(report.Results), "errors", report.ErrorCount)
		metrics.RecordReport(metrics.ReportSent)
	case IsConnectionRefused(err):
		r.log.Warn("Cavy test report server is not running",
			"url", r.reportURL,
			"hint", collectorHint,
			"err", err)
		metrics.RecordReport(metrics.ReportRefused)
	default:
		r.log.Warn("Error sending test results",
			"url", r.reportURL,
			"err", err)
		metrics.RecordReport(metrics.ReportFailed)
		metrics.RecordErrorDetails("report", err)
	}
}

func (r *HTTPReporter) deliver(ctx context.Context, report *types.Report) error {
	if report == nil {
		return errors.New("nil report")
	}
	body, err := json.Marshal(report)
	if err != nil {
		return errors.Wrap(err, "encoding report")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.reportURL, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "building report request")
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := r.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "posting report")
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("collector responded with status %d", res.StatusCode)
	}
	return nil
}

// IsConnectionRefused reports whether err was caused by the peer actively refusing the connection.
func IsConnectionRefused(err error) bool {
	return err != nil && errors.Is(err, syscall.ECONNREFUSED)
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
