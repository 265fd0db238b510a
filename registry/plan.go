package registry

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/ethereum-optimism/infra/op-cavy/types"
)

// Plan selects and orders the suites of a run.
type Plan struct {
	Suites     []string      `yaml:"suites" toml:"suites"`
	StartDelay time.Duration `yaml:"start_delay" toml:"-"`
	Report     string        `yaml:"report" toml:"report"`
}

// tomlPlan exists because toml has no native duration type.
type tomlPlan struct {
	Plan
	StartDelay string `toml:"start_delay"`
}

// LoadPlan reads a plan from a .yaml/.yml or .toml file.
func LoadPlan(path string) (*Plan, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading plan file")
	}

	var plan Plan
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		var tp tomlPlan
		if _, err := toml.Decode(string(contents), &tp); err != nil {
			return nil, errors.Wrap(err, "decoding toml plan")
		}
		plan = tp.Plan
		if tp.StartDelay != "" {
			d, err := time.ParseDuration(tp.StartDelay)
			if err != nil {
				return nil, errors.Wrap(err, "parsing start_delay")
			}
			plan.StartDelay = d
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(contents, &plan); err != nil {
			return nil, errors.Wrap(err, "decoding yaml plan")
		}
	default:
		return nil, errors.Errorf("unsupported plan file extension %q", filepath.Ext(path))
	}

	if err := plan.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid plan %s", path)
	}
	return &plan, nil
}

// Validate checks the plan for obvious mistakes.
func (p *Plan) Validate() error {
	if p.StartDelay < 0 {
		return errors.New("start_delay must not be negative")
	}
	if _, err := types.ParseReportMode(p.Report); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(p.Suites))
	for _, s := range p.Suites {
		if s == "" {
			return errors.New("empty suite name")
		}
		if _, ok := seen[s]; ok {
			return errors.Errorf("suite %q listed twice", s)
		}
		seen[s] = struct{}{}
	}
	return nil
}

// ReportMode returns the parsed report mode of the plan.
func (p *Plan) ReportMode() types.ReportMode {
	m, _ := types.ParseReportMode(p.Report)
	return m
}
