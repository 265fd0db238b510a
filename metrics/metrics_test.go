package metrics

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestErrToLabel(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{
			name: "nil error",
			err:  nil,
		},
		{
			name: "simple error",
			err:  errors.New("test error"),
		},
		{
			name: "error with special chars",
			err:  errors.New("test@error#123"),
		},
		{
			name: "error with multiple spaces",
			err:  errors.New("test   error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := errToLabel(tt.err)
			validLabelRegex := regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
			if !validLabelRegex.MatchString(result) {
				t.Errorf("errToLabel() = %v, is not a valid Prometheus label", result)
			}
		})
	}
}

func TestRecordError(t *testing.T) {
	// just test that it doesn't panic
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("RecordError panic'd")
		}
	}()

	RecordError("test_error")
	RecordErrorDetails("test", nil)
	RecordErrorDetails("test", errors.New("sample error"))
}

func TestRecordCase(t *testing.T) {
	before := testutil.ToFloat64(casesTotal.WithLabelValues("metrics-suite", "fail"))
	RecordCase("metrics-suite", "fail", 10*time.Millisecond)
	RecordCase("metrics-suite", "bogus", time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(casesTotal.WithLabelValues("metrics-suite", "fail")))
}

func TestRecordRun(t *testing.T) {
	RecordRun("fail", 5, 2, 1500*time.Millisecond)
	assert.Equal(t, float64(3), testutil.ToFloat64(runCases.WithLabelValues("pass")))
	assert.Equal(t, float64(2), testutil.ToFloat64(runCases.WithLabelValues("fail")))
	assert.Equal(t, 1.5, testutil.ToFloat64(runDuration))
}

func TestRecordReport(t *testing.T) {
	before := testutil.ToFloat64(reportsTotal.WithLabelValues(ReportSkipped))
	RecordReport(ReportSkipped)
	RecordReport("nonsense")
	assert.Equal(t, before+1, testutil.ToFloat64(reportsTotal.WithLabelValues(ReportSkipped)))
}

func TestResultLabel(t *testing.T) {
	assert.Equal(t, "pass", ResultLabel(true))
	assert.Equal(t, "fail", ResultLabel(false))
}
