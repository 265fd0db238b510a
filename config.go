package cavy

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/op-cavy/collector"
	"github.com/ethereum-optimism/infra/op-cavy/flags"
	"github.com/ethereum-optimism/infra/op-cavy/host"
	"github.com/ethereum-optimism/infra/op-cavy/registry"
	"github.com/ethereum-optimism/infra/op-cavy/service"
	"github.com/ethereum-optimism/infra/op-cavy/types"
)

// Config holds the application configuration
type Config struct {
	PlanFile         string         // absolute path, empty when no plan was given
	Plan             *registry.Plan // plan file merged with flag overrides
	CollectorAddr    string
	CollectorTimeout time.Duration
	Store            host.StoreConfig
	Log              log.Logger
}

// NewConfig creates a new Config from cli context. Flags that were set
// explicitly take precedence over the plan file.
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	plan := &registry.Plan{}
	var planFile string
	if p := ctx.String(flags.Plan.Name); p != "" {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for plan '%s': %w", p, err)
		}
		plan, err = registry.LoadPlan(abs)
		if err != nil {
			return nil, err
		}
		planFile = abs
	}

	if ctx.IsSet(flags.Suites.Name) {
		plan.Suites = ctx.StringSlice(flags.Suites.Name)
	}
	if ctx.IsSet(flags.Report.Name) || plan.Report == "" {
		plan.Report = ctx.String(flags.Report.Name)
	}
	if ctx.IsSet(flags.StartDelay.Name) {
		plan.StartDelay = ctx.Duration(flags.StartDelay.Name)
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run configuration: %w", err)
	}

	store := host.StoreConfig{
		Kind:        host.StoreKind(strings.ToLower(ctx.String(flags.StateStore.Name))),
		RedisURL:    ctx.String(flags.RedisURL.Name),
		RedisPrefix: ctx.String(flags.RedisPrefix.Name),
		Log:         log,
	}
	if !store.Kind.IsValid() {
		return nil, fmt.Errorf("invalid state store: %s", store.Kind)
	}
	if p := ctx.String(flags.LevelDBPath.Name); p != "" {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for leveldb '%s': %w", p, err)
		}
		store.LevelDBPath = abs
	}

	return &Config{
		PlanFile:         planFile,
		Plan:             plan,
		CollectorAddr:    ctx.String(flags.CollectorAddr.Name),
		CollectorTimeout: ctx.Duration(flags.CollectorTimeout.Name),
		Store:            store,
		Log:              log,
	}, nil
}

// ReportMode returns the effective report mode.
func (c *Config) ReportMode() types.ReportMode {
	return c.Plan.ReportMode()
}

// ReadServiceConfig reads the healthz and metrics server settings.
func ReadServiceConfig(ctx *cli.Context, log log.Logger) service.Config {
	m := opmetrics.ReadCLIConfig(ctx)
	return service.Config{
		HealthzAddr:    ctx.String(flags.HealthzAddr.Name),
		MetricsEnabled: m.Enabled,
		MetricsAddr:    net.JoinHostPort(m.ListenAddr, strconv.Itoa(m.ListenPort)),
		Log:            log,
	}
}

// ReadCollectorConfig reads the settings of the collect command.
func ReadCollectorConfig(ctx *cli.Context, log log.Logger) collector.Config {
	return collector.Config{
		Addr:      ctx.String(flags.CollectorAddr.Name),
		History:   ctx.Int(flags.History.Name),
		RateLimit: ctx.Float64(flags.CollectorRateLimit.Name),
		Log:       log,
	}
}
