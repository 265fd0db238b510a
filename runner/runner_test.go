package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ethereum-optimism/optimism/op-service/testlog"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-cavy/types"
)

// recordingHost logs every host call into a shared event list.
type recordingHost struct {
	mu        sync.Mutex
	events    []string
	clearErr  error
	renderErr error
}

func (h *recordingHost) record(ev string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *recordingHost) Events() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.events...)
}

func (h *recordingHost) Clear(context.Context) error {
	h.record("clear")
	return h.clearErr
}

func (h *recordingHost) ReRender(context.Context) error {
	h.record("render")
	return h.renderErr
}

type recordingReporter struct {
	mu      sync.Mutex
	reports []*types.Report
}

func (r *recordingReporter) ProbeAndSend(_ context.Context, report *types.Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
}

func (r *recordingReporter) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}

func pass(h *recordingHost, name string) types.Func {
	return func(context.Context, *types.Scope) error {
		h.record("body:" + name)
		return nil
	}
}

func fail(h *recordingHost, name string, err error) types.Func {
	return func(context.Context, *types.Scope) error {
		h.record("body:" + name)
		return err
	}
}

func newTestRunner(t *testing.T, cfg Config) *Runner {
	if cfg.Log == nil {
		cfg.Log = testlog.Logger(t, log.LevelDebug)
	}
	r, err := New(cfg)
	require.NoError(t, err)
	return r
}

func TestExecuteAll_FailureDoesNotStopRun(t *testing.T) {
	h := &recordingHost{}
	suites := []*types.TestScope{
		{Name: "S1", Cases: []types.TestCase{
			{Description: "caseA", Body: fail(h, "A", errors.New("expected 1, got 2"))},
			{Description: "caseB", Body: pass(h, "B")},
		}},
		{Name: "S2", Cases: []types.TestCase{
			{Description: "caseC", Body: pass(h, "C")},
		}},
	}
	r := newTestRunner(t, Config{Host: h, Suites: suites})

	report := r.ExecuteAll(context.Background())

	require.Len(t, report.Results, 3)
	assert.Equal(t, types.TestResult{Message: "caseA  ❌\n   expected 1, got 2", Passed: false}, report.Results[0])
	assert.Equal(t, types.TestResult{Message: "caseB  ✅", Passed: true}, report.Results[1])
	assert.Equal(t, types.TestResult{Message: "caseC  ✅", Passed: true}, report.Results[2])
	assert.Equal(t, 1, report.ErrorCount)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, report.RunID, r.RunID())
	assert.Equal(t, report.Results, r.Results())
}

func TestExecuteAll_Invariants(t *testing.T) {
	h := &recordingHost{}
	var suites []*types.TestScope
	for s := 0; s < 4; s++ {
		suite := &types.TestScope{Name: fmt.Sprintf("suite-%d", s)}
		for c := 0; c < s+1; c++ {
			name := fmt.Sprintf("%d.%d", s, c)
			body := pass(h, name)
			if (s+c)%3 == 0 {
				body = fail(h, name, errors.New("nope"))
			}
			suite.Cases = append(suite.Cases, types.TestCase{Description: name, Body: body})
		}
		suites = append(suites, suite)
	}
	// an empty suite contributes nothing
	suites = append(suites, &types.TestScope{Name: "empty"})

	r := newTestRunner(t, Config{Host: h, Suites: suites})
	report := r.ExecuteAll(context.Background())

	assert.Len(t, report.Results, types.CountCases(suites))
	assert.Equal(t, types.CountFailures(report.Results), report.ErrorCount)
	require.NoError(t, report.Validate())

	// results follow the flattened (suite, case) order
	i := 0
	for _, s := range suites {
		for _, c := range s.Cases {
			assert.Contains(t, report.Results[i].Message, c.Description+"  ")
			i++
		}
	}
}

func TestExecuteCase_IsolationProtocolOrder(t *testing.T) {
	h := &recordingHost{}
	suite := &types.TestScope{
		Name: "ordered",
		BeforeEach: func(_ context.Context, sc *types.Scope) error {
			h.record("hook:" + sc.Case.Description)
			return nil
		},
		Cases: []types.TestCase{
			{Description: "one", Body: pass(h, "one")},
			{Description: "two", Body: pass(h, "two")},
		},
	}
	r := newTestRunner(t, Config{Host: h, Suites: []*types.TestScope{suite}})

	r.ExecuteAll(context.Background())

	assert.Equal(t, []string{
		"clear", "hook:one", "render", "body:one",
		"clear", "hook:two", "render", "body:two",
	}, h.Events())
}

func TestExecuteCase_HookFailureIsCaseFailure(t *testing.T) {
	h := &recordingHost{}
	suite := &types.TestScope{
		Name: "broken setup",
		BeforeEach: func(context.Context, *types.Scope) error {
			return errors.New("seed failed")
		},
		Cases: []types.TestCase{
			{Description: "first", Body: pass(h, "first")},
			{Description: "second", Body: pass(h, "second")},
		},
	}
	r := newTestRunner(t, Config{Host: h, Suites: []*types.TestScope{suite}})

	report := r.ExecuteAll(context.Background())

	require.Len(t, report.Results, 2)
	assert.Equal(t, "first  ❌\n   seed failed", report.Results[0].Message)
	assert.Equal(t, "second  ❌\n   seed failed", report.Results[1].Message)
	assert.Equal(t, 2, report.ErrorCount)
	// neither render nor body ran after the hook failed
	assert.Equal(t, []string{"clear", "clear"}, h.Events())
}

func TestExecuteCase_PanicIsCaught(t *testing.T) {
	h := &recordingHost{}
	suite := &types.TestScope{Name: "panics", Cases: []types.TestCase{
		{Description: "explodes", Body: func(context.Context, *types.Scope) error {
			panic("kaboom")
		}},
		{Description: "survives", Body: pass(h, "survives")},
	}}
	r := newTestRunner(t, Config{Host: h, Suites: []*types.TestScope{suite}})

	report := r.ExecuteAll(context.Background())

	require.Len(t, report.Results, 2)
	assert.Equal(t, "explodes  ❌\n   panic: kaboom", report.Results[0].Message)
	assert.True(t, report.Results[1].Passed)
}

func TestExecuteCase_NilBody(t *testing.T) {
	h := &recordingHost{}
	suite := &types.TestScope{Name: "s", Cases: []types.TestCase{{Description: "todo"}}}
	r := newTestRunner(t, Config{Host: h})

	outcome := r.ExecuteCase(context.Background(), suite, &suite.Cases[0])
	assert.False(t, outcome.Passed())
	assert.Equal(t, types.CaseFailed, outcome.State)
	assert.Equal(t, "test body is nil", outcome.Failure)
}

func TestExecuteCase_HostFailures(t *testing.T) {
	t.Run("clear", func(t *testing.T) {
		h := &recordingHost{clearErr: errors.New("disk full")}
		suite := &types.TestScope{Name: "s", Cases: []types.TestCase{{Description: "c", Body: pass(h, "c")}}}
		r := newTestRunner(t, Config{Host: h})

		outcome := r.ExecuteCase(context.Background(), suite, &suite.Cases[0])
		assert.Equal(t, "clearing host state: disk full", outcome.Failure)
		assert.Equal(t, []string{"clear"}, h.Events())
	})

	t.Run("render", func(t *testing.T) {
		h := &recordingHost{renderErr: errors.New("bad tree")}
		suite := &types.TestScope{Name: "s", Cases: []types.TestCase{{Description: "c", Body: pass(h, "c")}}}
		r := newTestRunner(t, Config{Host: h})

		outcome := r.ExecuteCase(context.Background(), suite, &suite.Cases[0])
		assert.Equal(t, "re-rendering host: bad tree", outcome.Failure)
		assert.Equal(t, []string{"clear", "render"}, h.Events())
	})
}

func TestExecuteCase_ScopeValuesArePerCase(t *testing.T) {
	h := &recordingHost{}
	var seen []any
	suite := &types.TestScope{
		Name: "values",
		BeforeEach: func(_ context.Context, sc *types.Scope) error {
			if _, ok := sc.Get("user"); ok {
				return errors.New("value leaked from a previous case")
			}
			sc.Set("user", sc.Case.Description)
			return nil
		},
		Cases: []types.TestCase{
			{Description: "alice", Body: func(_ context.Context, sc *types.Scope) error {
				v, _ := sc.Get("user")
				seen = append(seen, v)
				return nil
			}},
			{Description: "bob", Body: func(_ context.Context, sc *types.Scope) error {
				v, _ := sc.Get("user")
				seen = append(seen, v)
				assert.Same(t, h, sc.Host)
				return nil
			}},
		},
	}
	r := newTestRunner(t, Config{Host: h, Suites: []*types.TestScope{suite}})

	report := r.ExecuteAll(context.Background())
	assert.Equal(t, 0, report.ErrorCount)
	assert.Equal(t, []any{"alice", "bob"}, seen)
}

func TestExecuteAll_ReportModes(t *testing.T) {
	tests := []struct {
		mode      types.ReportMode
		wantCalls int
	}{
		{mode: types.ReportAuto, wantCalls: 1},
		{mode: types.ReportForceOn, wantCalls: 1},
		{mode: types.ReportForceOff, wantCalls: 0},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			h := &recordingHost{}
			rep := &recordingReporter{}
			suite := &types.TestScope{Name: "s", Cases: []types.TestCase{{Description: "c", Body: pass(h, "c")}}}
			r := newTestRunner(t, Config{Host: h, Suites: []*types.TestScope{suite}, Reporter: rep, ReportMode: tt.mode})

			report := r.ExecuteAll(context.Background())

			require.Equal(t, tt.wantCalls, rep.calls())
			if tt.wantCalls > 0 {
				assert.Same(t, report, rep.reports[0])
			}
		})
	}
}

func TestExecuteAll_NoReporter(t *testing.T) {
	h := &recordingHost{}
	r := newTestRunner(t, Config{Host: h})
	report := r.ExecuteAll(context.Background())
	assert.Empty(t, report.Results)
	assert.Equal(t, 0, report.ErrorCount)
}

func TestRun_StartDelay(t *testing.T) {
	t.Run("zero delay starts immediately", func(t *testing.T) {
		h := &recordingHost{}
		suite := &types.TestScope{Name: "s", Cases: []types.TestCase{{Description: "c", Body: pass(h, "c")}}}
		r := newTestRunner(t, Config{Host: h, Suites: []*types.TestScope{suite}})

		start := time.Now()
		r.Run(context.Background(), 0)
		assert.Less(t, time.Since(start), 500*time.Millisecond)
		assert.Equal(t, "clear", h.Events()[0])
	})

	t.Run("delay is awaited before the first case", func(t *testing.T) {
		h := &recordingHost{}
		var firstCase time.Time
		suite := &types.TestScope{Name: "s", Cases: []types.TestCase{{Description: "c", Body: func(context.Context, *types.Scope) error {
			firstCase = time.Now()
			return nil
		}}}}
		r := newTestRunner(t, Config{Host: h, Suites: []*types.TestScope{suite}})

		start := time.Now()
		report := r.Run(context.Background(), 50*time.Millisecond)
		assert.GreaterOrEqual(t, firstCase.Sub(start), 50*time.Millisecond)
		// the delay is not part of the measured duration
		assert.Less(t, report.Duration, 0.05)
	})
}

func TestExecuteAll_Duration(t *testing.T) {
	h := &recordingHost{}
	sleepy := func(context.Context, *types.Scope) error {
		time.Sleep(20 * time.Millisecond)
		return nil
	}
	suites := []*types.TestScope{
		{Name: "a", Cases: []types.TestCase{{Description: "1", Body: sleepy}}},
		{Name: "b", Cases: []types.TestCase{{Description: "2", Body: sleepy}}},
	}
	r := newTestRunner(t, Config{Host: h, Suites: suites})

	start := time.Now()
	report := r.ExecuteAll(context.Background())
	wall := time.Since(start).Seconds()

	assert.GreaterOrEqual(t, report.Duration, 0.04)
	assert.LessOrEqual(t, report.Duration, wall)
}

func TestNew(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	_, err = New(Config{Host: &recordingHost{}, Suites: []*types.TestScope{nil}})
	require.Error(t, err)

	r, err := New(Config{Host: &recordingHost{}})
	require.NoError(t, err)
	assert.NotNil(t, r.log)
}
