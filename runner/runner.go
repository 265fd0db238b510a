package runner

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-cavy/host"
	"github.com/ethereum-optimism/infra/op-cavy/metrics"
	"github.com/ethereum-optimism/infra/op-cavy/reporter"
	"github.com/ethereum-optimism/infra/op-cavy/types"
)

// Config holds configuration for creating a new Runner
type Config struct {
	Host       host.Host
	Suites     []*types.TestScope
	Reporter   reporter.Reporter // nil disables reporting
	ReportMode types.ReportMode
	Log        log.Logger
}

// Runner runs suites sequentially and owns the results of the current run.
type Runner struct {
	host       host.Host
	suites     []*types.TestScope
	reporter   reporter.Reporter
	reportMode types.ReportMode
	log        log.Logger
	tracer     trace.Tracer

	// held for the whole of a run so two runs never interleave on the host
	mu      sync.Mutex
	runID   string
	results []types.TestResult
}

// New creates a new Runner instance
func New(cfg Config) (*Runner, error) {
	if cfg.Host == nil {
		return nil, errors.New("host is required")
	}
	for i, s := range cfg.Suites {
		if s == nil {
			return nil, fmt.Errorf("suite %d is nil", i)
		}
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	cfg.Log.Debug("runner.New()", "suites", len(cfg.Suites),
		"cases", types.CountCases(cfg.Suites), "reportMode", cfg.ReportMode)

	return &Runner{
		host:       cfg.Host,
		suites:     cfg.Suites,
		reporter:   cfg.Reporter,
		reportMode: cfg.ReportMode,
		log:        cfg.Log,
		tracer:     otel.Tracer("cavy runner"),
	}, nil
}

// Run waits startDelay, if non-zero, and then executes every suite.
// The delay cannot be interrupted.
func (r *Runner) Run(ctx context.Context, startDelay time.Duration) *types.Report {
	if startDelay > 0 {
		r.log.Info("Delaying cavy test run", "delay", startDelay)
		time.Sleep(startDelay)
	}
	return r.ExecuteAll(ctx)
}

// ExecuteAll runs every case of every suite in order, builds the report and
// hands it to the reporter according to the report mode.
func (r *Runner) ExecuteAll(ctx context.Context) *types.Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.runID = uuid.New().String()
	r.results = make([]types.TestResult, 0, types.CountCases(r.suites))

	ctx, span := r.tracer.Start(ctx, "cavy run", trace.WithAttributes(attribute.String("cavy.run_id", r.runID)))
	defer span.End()

	start := time.Now()
	r.log.Info("Cavy test suite started", "at", start.Format(time.RFC3339Nano), "run_id", r.runID)

	for _, suite := range r.suites {
		r.executeSuite(ctx, suite)
	}

	stop := time.Now()
	elapsed := stop.Sub(start)
	r.log.Info("Cavy test suite stopped", "at", stop.Format(time.RFC3339Nano), "run_id", r.runID,
		"duration", elapsed)

	report := types.NewReport(r.runID, slices.Clone(r.results), elapsed.Seconds())
	metrics.RecordRun(metrics.ResultLabel(!report.Failed()), len(report.Results), report.ErrorCount, elapsed)
	span.SetAttributes(
		attribute.Int("cavy.tests", len(report.Results)),
		attribute.Int("cavy.errors", report.ErrorCount),
	)
	if report.Failed() {
		span.SetStatus(codes.Error, fmt.Sprintf("%d failed", report.ErrorCount))
	}

	r.deliver(ctx, report)
	return report
}

func (r *Runner) executeSuite(ctx context.Context, suite *types.TestScope) {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("suite %s", suite.Name))
	defer span.End()

	r.log.Debug("Running suite", "suite", suite.Name, "cases", suite.Len())
	for i := range suite.Cases {
		tc := &suite.Cases[i]
		outcome := r.ExecuteCase(ctx, suite, tc)
		r.results = append(r.results, outcome.Result(tc.Description))
	}
}

// ExecuteCase runs one case through the isolation protocol and returns its outcome.
// It never panics and never returns early: every failure becomes a Failed outcome.
func (r *Runner) ExecuteCase(ctx context.Context, suite *types.TestScope, tc *types.TestCase) types.Outcome {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("case %s", tc.Description),
		trace.WithAttributes(attribute.String("cavy.suite", suite.Name)))
	defer span.End()

	start := time.Now()
	caseLog := r.log.New("suite", suite.Name)
	sc := types.NewScope(suite, tc, r.host, caseLog)

	state := types.CasePending
	err := r.attempt(ctx, suite, tc, sc, &state)

	var outcome types.Outcome
	if err == nil {
		outcome = types.PassedOutcome()
		r.log.Info(outcome.Result(tc.Description).Message, "suite", suite.Name)
	} else {
		outcome = types.FailedOutcome(err.Error())
		r.log.Error(fmt.Sprintf("%s  %s", tc.Description, types.FailMark), "suite", suite.Name,
			"err", err.Error())
		r.log.Debug("Case failed", "suite", suite.Name, "case", tc.Description, "state", state)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	metrics.RecordCase(suite.Name, metrics.ResultLabel(outcome.Passed()), time.Since(start))
	return outcome
}

// attempt walks the case state machine. The setup hook and the body are one
// unit: a hook failure fails the case exactly like a body failure.
func (r *Runner) attempt(ctx context.Context, suite *types.TestScope, tc *types.TestCase, sc *types.Scope, state *types.CaseState) error {
	var (
		pc  panics.Catcher
		err error
	)
	pc.Try(func() {
		err = r.walk(ctx, suite, tc, sc, state)
	})
	if rec := pc.Recovered(); rec != nil {
		r.log.Debug("Case panicked", "suite", suite.Name, "case", tc.Description, "stack", string(rec.Stack))
		return fmt.Errorf("panic: %v", rec.Value)
	}
	return err
}

func (r *Runner) walk(ctx context.Context, suite *types.TestScope, tc *types.TestCase, sc *types.Scope, state *types.CaseState) error {
	*state = types.CaseIsolating
	if err := r.host.Clear(ctx); err != nil {
		return fmt.Errorf("clearing host state: %w", err)
	}

	if suite.BeforeEach != nil {
		*state = types.CaseSettingUp
		if err := suite.BeforeEach(ctx, sc); err != nil {
			return err
		}
	}

	*state = types.CaseRendering
	if err := r.host.ReRender(ctx); err != nil {
		return fmt.Errorf("re-rendering host: %w", err)
	}

	*state = types.CaseExecuting
	if tc.Body == nil {
		return errors.New("test body is nil")
	}
	return tc.Body(ctx, sc)
}

func (r *Runner) deliver(ctx context.Context, report *types.Report) {
	if r.reportMode != types.ReportAuto {
		r.log.Warn("The explicit report toggle is deprecated; the collector is detected automatically",
			"mode", r.reportMode)
	}
	if r.reportMode == types.ReportForceOff {
		r.log.Info("Skipping results report: reporting is switched off")
		metrics.RecordReport(metrics.ReportOff)
		return
	}
	if r.reporter == nil {
		r.log.Debug("No reporter configured, results stay local")
		return
	}
	r.reporter.ProbeAndSend(ctx, report)
}

// Results returns a copy of the results of the most recent run.
func (r *Runner) Results() []types.TestResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.results)
}

// RunID returns the id of the most recent run.
func (r *Runner) RunID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runID
}
