package collector

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum-optimism/optimism/op-service/testlog"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-cavy/host"
	"github.com/ethereum-optimism/infra/op-cavy/reporter"
	"github.com/ethereum-optimism/infra/op-cavy/runner"
	"github.com/ethereum-optimism/infra/op-cavy/types"
)

func newTestServer(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	if cfg.Log == nil {
		cfg.Log = testlog.Logger(t, log.LevelDebug)
	}
	s, err := New(cfg)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func TestProbe(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	res, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, reporter.CollectorAck, string(body))
}

func TestPostReport(t *testing.T) {
	var (
		mu       sync.Mutex
		received []string
	)
	s, ts := newTestServer(t, Config{OnReport: func(id string, _ *types.Report) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, id)
	}})

	payload := `{"results":[{"message":"a  ✅","passed":true},{"message":"b  ❌\n   boom","passed":false}],"errorCount":1,"duration":0.5}`
	res, err := http.Post(ts.URL+"/report", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusCreated, res.StatusCode)

	var created map[string]string
	require.NoError(t, json.NewDecoder(res.Body).Decode(&created))
	id := created["id"]
	require.NotEmpty(t, id)

	mu.Lock()
	assert.Equal(t, []string{id}, received)
	mu.Unlock()

	stored, ok := s.Report(id)
	require.True(t, ok)
	assert.Equal(t, 1, stored.ErrorCount)
	assert.Len(t, stored.Results, 2)
	assert.Equal(t, []string{id}, s.ReportIDs())

	res2, err := http.Get(ts.URL + "/reports/" + id)
	require.NoError(t, err)
	defer res2.Body.Close()
	require.Equal(t, http.StatusOK, res2.StatusCode)
	var got types.Report
	require.NoError(t, json.NewDecoder(res2.Body).Decode(&got))
	assert.Equal(t, stored.Results, got.Results)
	assert.Equal(t, 0.5, got.Duration)
}

func TestPostMalformedReport(t *testing.T) {
	s, ts := newTestServer(t, Config{})

	res, err := http.Post(ts.URL+"/report", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Empty(t, s.ReportIDs())
}

func TestUnknownReport(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	res, err := http.Get(ts.URL + "/reports/does-not-exist")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestHistoryIsBounded(t *testing.T) {
	s, ts := newTestServer(t, Config{History: 2})

	for i := 0; i < 3; i++ {
		res, err := http.Post(ts.URL+"/report", "application/json",
			strings.NewReader(`{"results":[],"errorCount":0,"duration":0}`))
		require.NoError(t, err)
		res.Body.Close()
	}
	assert.Len(t, s.ReportIDs(), 2)

	res, err := http.Get(ts.URL + "/reports")
	require.NoError(t, err)
	defer res.Body.Close()
	var list map[string][]string
	require.NoError(t, json.NewDecoder(res.Body).Decode(&list))
	assert.Equal(t, s.ReportIDs(), list["reports"])
}

func TestRateLimit(t *testing.T) {
	s, ts := newTestServer(t, Config{RateLimit: 1})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		res, err := http.Post(ts.URL+"/report", "application/json",
			strings.NewReader(`{"results":[],"errorCount":0,"duration":0}`))
		require.NoError(t, err)
		res.Body.Close()
		codes = append(codes, res.StatusCode)
	}
	assert.Equal(t, http.StatusCreated, codes[0])
	assert.Contains(t, codes, http.StatusTooManyRequests)
	assert.Less(t, len(s.ReportIDs()), 3)
}

func TestCORS(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/report", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:8081")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, "*", res.Header.Get("Access-Control-Allow-Origin"))
}

// TestRunnerDeliversToCollector runs suites end to end and checks the
// collector receives exactly what the runner produced.
func TestRunnerDeliversToCollector(t *testing.T) {
	reports := make(chan *types.Report, 1)
	logger := testlog.Logger(t, log.LevelDebug)
	s, err := New(Config{
		Addr: "127.0.0.1:0",
		Log:  logger,
		OnReport: func(_ string, r *types.Report) {
			reports <- r
		},
	})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	assert.False(t, s.Stopped())

	app, err := host.NewApp(host.NewMemStore(), func(ctx context.Context, st host.Store) (host.View, error) {
		return host.View{}, nil
	}, logger)
	require.NoError(t, err)

	suites := []*types.TestScope{{
		Name: "e2e",
		Cases: []types.TestCase{
			{Description: "passes", Body: func(context.Context, *types.Scope) error { return nil }},
			{Description: "fails", Body: func(context.Context, *types.Scope) error { return assert.AnError }},
		},
	}}
	r, err := runner.New(runner.Config{
		Host:     app,
		Suites:   suites,
		Reporter: reporter.New(reporter.Config{CollectorAddr: s.Addr(), Log: logger}),
		Log:      logger,
	})
	require.NoError(t, err)

	report := r.Run(context.Background(), 0)

	select {
	case got := <-reports:
		assert.Equal(t, report.Results, got.Results)
		assert.Equal(t, report.ErrorCount, got.ErrorCount)
		assert.Equal(t, report.Duration, got.Duration)
	case <-time.After(5 * time.Second):
		t.Fatal("collector never received the report")
	}

	require.NoError(t, s.Stop(context.Background()))
	assert.True(t, s.Stopped())
}
