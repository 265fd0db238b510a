package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	cavy "github.com/ethereum-optimism/infra/op-cavy"
	"github.com/ethereum-optimism/infra/op-cavy/collector"
	"github.com/ethereum-optimism/infra/op-cavy/flags"
	"github.com/ethereum-optimism/infra/op-cavy/service"
	"github.com/ethereum-optimism/infra/op-cavy/types"
	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := newApp()

	// Start telemetry
	ctx, shutdown, err := telemetry.SetupOpenTelemetry(
		context.Background(),
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer shutdown()

	// Start CLI
	ctx = ctxinterrupt.WithSignalWaiterMain(ctx)
	err = app.RunContext(ctx, os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "op-cavy"
	app.Usage = "In-process sequential test runner"
	app.Description = "op-cavy runs suites of test cases against an app and reports the results to a local collector"
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	app.Action = cliapp.LifecycleCmd(run)
	app.Commands = []*cli.Command{
		{
			Name:   "collect",
			Usage:  "Run a report collector that op-cavy runs deliver their results to",
			Flags:  cliapp.ProtectFlags(flags.Flags),
			Action: cliapp.LifecycleCmd(collect),
		},
	}
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			cli.HandleExitCoder(cli.Exit(err.Error(), cavy.ExitCode(err)))
		}
	}
	return app
}

func setupLogger(ctx *cli.Context) log.Logger {
	logCfg := oplog.ReadCLIConfig(ctx)
	logger := oplog.NewLogger(oplog.AppOut(ctx), logCfg)
	oplog.SetGlobalLogHandler(logger.Handler())
	oplog.SetupDefaults()
	return logger
}

func run(ctx *cli.Context, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
	logger := setupLogger(ctx)

	cfg, err := cavy.NewConfig(ctx, logger)
	if err != nil {
		// Wrap in RuntimeError to signal this should exit with code 2
		return nil, cavy.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}
	cfg.Log.Debug("Config", "config", cfg)

	app, err := cavy.New(ctx.Context, cfg, Version, closeApp)
	if err != nil {
		return nil, cavy.NewRuntimeError(fmt.Errorf("failed to create cavy: %w", err))
	}
	return withService(app, service.New(cavy.ReadServiceConfig(ctx, logger))), nil
}

func collect(ctx *cli.Context, _ context.CancelCauseFunc) (cliapp.Lifecycle, error) {
	logger := setupLogger(ctx)

	cfg := cavy.ReadCollectorConfig(ctx, logger)
	formatter := cavy.NewConsoleResultFormatter(logger, os.Stdout)
	cfg.OnReport = func(id string, report *types.Report) {
		if err := formatter.FormatResults(report, nil); err != nil {
			logger.Warn("Failed to print report", "id", id, "err", err)
		}
	}
	srv, err := collector.New(cfg)
	if err != nil {
		return nil, cavy.NewRuntimeError(fmt.Errorf("failed to create collector: %w", err))
	}
	return withService(srv, service.New(cavy.ReadServiceConfig(ctx, logger))), nil
}
