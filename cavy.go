// Package cavy wires the op-cavy runner into a cliapp lifecycle: it opens the
// host state store, resolves the suites of the plan, runs them once and
// prints the results.
package cavy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"

	"github.com/ethereum-optimism/infra/op-cavy/host"
	"github.com/ethereum-optimism/infra/op-cavy/registry"
	"github.com/ethereum-optimism/infra/op-cavy/reporter"
	"github.com/ethereum-optimism/infra/op-cavy/runner"
	"github.com/ethereum-optimism/infra/op-cavy/suites"
	"github.com/ethereum-optimism/infra/op-cavy/types"
)

// cavy implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &cavy{}

// SuiteRunner runs a set of suites once.
type SuiteRunner interface {
	Run(ctx context.Context, startDelay time.Duration) *types.Report
}

// cavy runs the suites of a plan once against the demo app.
type cavy struct {
	config    *Config
	version   string
	app       *host.App
	suites    []*types.TestScope
	runner    SuiteRunner
	formatter ResultFormatter
	report    *types.Report

	running atomic.Bool

	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*cavy, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug("Creating cavy with config",
		"plan", config.PlanFile,
		"suites", config.Plan.Suites,
		"startDelay", config.Plan.StartDelay,
		"report", config.ReportMode(),
		"store", config.Store.Kind)

	store, err := host.NewStore(config.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	app, err := host.NewApp(store, suites.Render, config.Log)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create app: %w", err)
	}

	reg := registry.NewRegistry(registry.Config{Log: config.Log})
	if err := suites.Register(reg); err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("failed to register suites: %w", err)
	}
	selected, err := reg.Resolve(config.Plan)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("failed to resolve plan: %w", err)
	}

	r, err := runner.New(runner.Config{
		Host:   app,
		Suites: selected,
		Reporter: reporter.New(reporter.Config{
			CollectorAddr: config.CollectorAddr,
			Timeout:       config.CollectorTimeout,
			Log:           config.Log,
		}),
		ReportMode: config.ReportMode(),
		Log:        config.Log,
	})
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("failed to create runner: %w", err)
	}
	config.Log.Info("cavy.New: created registry and runner", "suites", len(selected),
		"cases", types.CountCases(selected))

	return newCavy(config, version, app, selected, r, shutdownCallback), nil
}

func newCavy(config *Config, version string, app *host.App, selected []*types.TestScope,
	r SuiteRunner, shutdownCallback func(error)) *cavy {
	return &cavy{
		config:           config,
		version:          version,
		app:              app,
		suites:           selected,
		runner:           r,
		formatter:        NewConsoleResultFormatter(config.Log, os.Stdout),
		shutdownCallback: shutdownCallback,
	}
}

// Start runs the suites once, prints the results and requests shutdown.
// Start implements the cliapp.Lifecycle interface.
func (c *cavy) Start(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.config.Log.Error("Runtime error occurred", "error", r)
			err = NewRuntimeError(fmt.Errorf("panic: %v", r))
		}
	}()

	c.running.Store(true)
	c.config.Log.Info("Starting op-cavy", "version", c.version)

	c.report = c.runner.Run(ctx, c.config.Plan.StartDelay)
	if c.report == nil {
		return NewRuntimeError(errors.New("runner returned no report"))
	}
	if err := c.formatter.FormatResults(c.report, c.suites); err != nil {
		c.config.Log.Warn("Failed to print results", "err", err)
	}
	fmt.Println(c.report.String())
	c.config.Log.Info("Run completed", "run_id", c.report.RunID, "errors", c.report.ErrorCount)

	if c.report.Failed() {
		c.config.Log.Warn("Run completed with failures, returning exit code 1")
		return NewTestFailureError(c.report.String())
	}

	go func() {
		c.shutdownCallback(nil)
	}()
	return nil
}

// Stop releases the host state store.
// Stop implements the cliapp.Lifecycle interface.
func (c *cavy) Stop(ctx context.Context) error {
	c.config.Log.Info("Stopping op-cavy")
	if !c.running.Swap(false) {
		c.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}
	if c.app != nil {
		if err := c.app.Close(); err != nil {
			return fmt.Errorf("failed to close state store: %w", err)
		}
	}
	c.config.Log.Info("op-cavy stopped successfully")
	return nil
}

// Stopped implements the cliapp.Lifecycle interface.
func (c *cavy) Stopped() bool {
	return !c.running.Load()
}

// Report returns the report of the last run, nil before Start.
func (c *cavy) Report() *types.Report {
	return c.report
}
