package flags

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	opflags "github.com/ethereum-optimism/optimism/op-service/flags"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/op-cavy/collector"
	"github.com/ethereum-optimism/infra/op-cavy/host"
	"github.com/ethereum-optimism/infra/op-cavy/reporter"
	"github.com/ethereum-optimism/infra/op-cavy/types"
)

const EnvVarPrefix = "OP_CAVY"

var (
	Plan = &cli.StringFlag{
		Name:    "plan",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PLAN"),
		Usage:   "Path to a run plan (.yaml, .yml or .toml). Without a plan every registered suite runs",
	}
	Suites = &cli.StringSliceFlag{
		Name:    "suites",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SUITES"),
		Usage:   "Suites to run, in order. Overrides the suites of the plan",
	}
	Report = &cli.StringFlag{
		Name:    "report",
		Value:   types.ReportAuto.String(),
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPORT"),
		Usage:   "Report delivery mode: auto, on or off. Overrides the plan",
		Action: func(_ *cli.Context, v string) error {
			_, err := types.ParseReportMode(v)
			return err
		},
	}
	CollectorAddr = &cli.StringFlag{
		Name:    "collector-addr",
		Value:   reporter.DefaultCollectorAddr,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "COLLECTOR_ADDR"),
		Usage:   "host:port of the report collector. The collect command listens here",
	}
	CollectorTimeout = &cli.DurationFlag{
		Name:    "collector-timeout",
		Value:   reporter.DefaultTimeout,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "COLLECTOR_TIMEOUT"),
		Usage:   "Timeout of each request to the collector",
	}
	StartDelay = &cli.DurationFlag{
		Name:    "start-delay",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "START_DELAY"),
		Usage:   "Time to wait before the first suite runs (e.g. '2s'). Overrides the plan",
	}
	StateStore = &cli.StringFlag{
		Name:    "state-store",
		Value:   string(host.StoreMemory),
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "STATE_STORE"),
		Usage:   fmt.Sprintf("Backing store of host state: %s, %s or %s", host.StoreMemory, host.StoreLevelDB, host.StoreRedis),
		Action: func(_ *cli.Context, v string) error {
			return validateStoreKind(v)
		},
	}
	LevelDBPath = &cli.StringFlag{
		Name:    "leveldb-path",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LEVELDB_PATH"),
		Usage:   "Directory of the leveldb state store",
	}
	RedisURL = &cli.StringFlag{
		Name:    "redis-url",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REDIS_URL"),
		Usage:   "URL of the redis state store (e.g. 'redis://localhost:6379/0')",
	}
	RedisPrefix = &cli.StringFlag{
		Name:    "redis-prefix",
		Value:   host.DefaultRedisPrefix,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REDIS_PREFIX"),
		Usage:   "Key prefix of the redis state store",
	}
	HealthzAddr = &cli.StringFlag{
		Name:    "healthz-addr",
		Value:   "0.0.0.0:8080",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_ADDR"),
		Usage:   "Listen address of the healthz server. Empty disables it",
	}
	CollectorRateLimit = &cli.Float64Flag{
		Name:    "collector-rate-limit",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "COLLECTOR_RATE_LIMIT"),
		Usage:   "Reports per second the collect command accepts. 0 disables the limit",
	}
	History = &cli.IntFlag{
		Name:    "history",
		Value:   collector.DefaultHistory,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HISTORY"),
		Usage:   "Number of reports the collect command keeps in memory",
	}
)

var optionalFlags = []cli.Flag{
	Plan,
	Suites,
	Report,
	CollectorAddr,
	CollectorTimeout,
	StartDelay,
	StateStore,
	LevelDBPath,
	RedisURL,
	RedisPrefix,
	HealthzAddr,
	CollectorRateLimit,
	History,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = optionalFlags
}

func validateStoreKind(v string) error {
	if !host.StoreKind(strings.ToLower(v)).IsValid() {
		return fmt.Errorf("state-store must be one of: %s, %s, %s", host.StoreMemory, host.StoreLevelDB, host.StoreRedis)
	}
	return nil
}

// CheckRequired checks flags that are only required in combination with others.
func CheckRequired(ctx *cli.Context) error {
	switch host.StoreKind(strings.ToLower(ctx.String(StateStore.Name))) {
	case host.StoreLevelDB:
		if !ctx.IsSet(LevelDBPath.Name) {
			return fmt.Errorf("flag %s is required with --%s=%s", LevelDBPath.Name, StateStore.Name, host.StoreLevelDB)
		}
	case host.StoreRedis:
		if !ctx.IsSet(RedisURL.Name) {
			return fmt.Errorf("flag %s is required with --%s=%s", RedisURL.Name, StateStore.Name, host.StoreRedis)
		}
	}
	return opflags.CheckRequiredXor(ctx)
}
