// Package types contains shared types used across the cavy test runner
package types

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-cavy/host"
)

// Result marks appended to a case description in its TestResult message.
const (
	PassMark = "✅"
	FailMark = "❌"
)

// Func is the signature shared by test bodies and setup hooks.
type Func func(ctx context.Context, sc *Scope) error

// TestCase is a single named test.
type TestCase struct {
	Description string
	Body        Func
}

// TestScope is a suite: an ordered list of cases sharing an optional setup hook.
type TestScope struct {
	Name       string
	Cases      []TestCase
	BeforeEach Func
}

// Len returns the number of cases in the scope.
func (s *TestScope) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Cases)
}

// CountCases returns the total number of cases across all scopes.
func CountCases(scopes []*TestScope) int {
	total := 0
	for _, s := range scopes {
		total += s.Len()
	}
	return total
}

// Scope is the per-case context handed to setup hooks and test bodies.
// A fresh Scope is built for every case, so values stored by a setup hook
// are visible to the body of the same case only.
type Scope struct {
	Suite *TestScope
	Case  *TestCase
	Host  host.Host
	Log   log.Logger

	mu     sync.Mutex
	values map[string]any
}

// NewScope creates the context for one case of suite.
func NewScope(suite *TestScope, tc *TestCase, h host.Host, logger log.Logger) *Scope {
	return &Scope{
		Suite:  suite,
		Case:   tc,
		Host:   h,
		Log:    logger,
		values: make(map[string]any),
	}
}

// Set stores a value for the rest of the current case.
func (s *Scope) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values == nil {
		s.values = make(map[string]any)
	}
	s.values[key] = value
}

// Get returns a value stored earlier in the current case.
func (s *Scope) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// CaseState tracks a single case through the isolation protocol.
type CaseState int

const (
	CasePending CaseState = iota
	CaseIsolating
	CaseSettingUp
	CaseRendering
	CaseExecuting
	CasePassed
	CaseFailed
)

func (s CaseState) String() string {
	switch s {
	case CasePending:
		return "pending"
	case CaseIsolating:
		return "isolating"
	case CaseSettingUp:
		return "setting-up"
	case CaseRendering:
		return "rendering"
	case CaseExecuting:
		return "executing"
	case CasePassed:
		return "passed"
	case CaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s CaseState) Terminal() bool {
	return s == CasePassed || s == CaseFailed
}

// Outcome is what executing one case produces: Passed, or Failed with a message.
type Outcome struct {
	State   CaseState
	Failure string
}

// Passed reports whether the case passed.
func (o Outcome) Passed() bool {
	return o.State == CasePassed
}

// PassedOutcome returns a passing outcome.
func PassedOutcome() Outcome {
	return Outcome{State: CasePassed}
}

// FailedOutcome returns a failing outcome carrying msg.
func FailedOutcome(msg string) Outcome {
	return Outcome{State: CaseFailed, Failure: msg}
}

// Result converts the outcome of the case described by description into a TestResult.
func (o Outcome) Result(description string) TestResult {
	if o.Passed() {
		return TestResult{
			Message: fmt.Sprintf("%s  %s", description, PassMark),
			Passed:  true,
		}
	}
	return TestResult{
		Message: fmt.Sprintf("%s  %s\n   %s", description, FailMark, o.Failure),
		Passed:  false,
	}
}

// ReportMode replaces the deprecated tri-state send-report toggle.
type ReportMode int

const (
	// ReportAuto always attempts reporting; the collector probe decides.
	ReportAuto ReportMode = iota
	// ReportForceOn was the explicit `true` toggle. It still goes through the probe.
	ReportForceOn
	// ReportForceOff was the explicit `false` toggle. Nothing is sent.
	ReportForceOff
)

func (m ReportMode) String() string {
	switch m {
	case ReportAuto:
		return "auto"
	case ReportForceOn:
		return "on"
	case ReportForceOff:
		return "off"
	default:
		return "unknown"
	}
}

// ParseReportMode accepts auto|on|off and the legacy true|false spellings.
// An empty string means auto.
func ParseReportMode(s string) (ReportMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ReportAuto, nil
	case "on", "true":
		return ReportForceOn, nil
	case "off", "false":
		return ReportForceOff, nil
	default:
		return ReportAuto, fmt.Errorf("invalid report mode %q: must be one of auto, on, off", s)
	}
}
