// Package registry keeps the suites known to a cavy binary and the plans selecting them.
package registry

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"

	"github.com/ethereum-optimism/infra/op-cavy/types"
)

// Registry holds the suites available to a run, in registration order.
type Registry struct {
	mu     sync.RWMutex
	log    log.Logger
	order  []string
	suites map[string]*types.TestScope
}

// Config holds configuration for creating a new Registry
type Config struct {
	Log log.Logger
}

func NewRegistry(cfg Config) *Registry {
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	return &Registry{
		log:    cfg.Log,
		suites: make(map[string]*types.TestScope),
	}
}

// Register adds a suite. Names must be unique and non-empty.
func (r *Registry) Register(suite *types.TestScope) error {
	if suite == nil {
		return errors.New("cannot register a nil suite")
	}
	if suite.Name == "" {
		return errors.New("suite name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.suites[suite.Name]; ok {
		return errors.Errorf("suite %q is already registered", suite.Name)
	}
	r.suites[suite.Name] = suite
	r.order = append(r.order, suite.Name)
	r.log.Debug("Registered suite", "suite", suite.Name, "cases", suite.Len())
	return nil
}

func (r *Registry) Get(name string) (*types.TestScope, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.suites[name]
	return s, ok
}

// Names returns suite names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Resolve turns a plan into the ordered suites to run. A nil or empty plan
// selects every registered suite in registration order.
func (r *Registry) Resolve(plan *Plan) ([]*types.TestScope, error) {
	names := r.Names()
	if plan != nil && len(plan.Suites) > 0 {
		names = plan.Suites
	}

	suites := make([]*types.TestScope, 0, len(names))
	for _, name := range names {
		s, ok := r.Get(name)
		if !ok {
			return nil, fmt.Errorf("plan references unknown suite %q", name)
		}
		suites = append(suites, s)
	}
	return suites, nil
}
