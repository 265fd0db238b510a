package types

import "fmt"

// TestResult is the record produced for each executed case, in execution order.
type TestResult struct {
	Message string `json:"message"`
	Passed  bool   `json:"passed"`
}

// Report aggregates a full run. Only results, errorCount and duration go on the wire.
type Report struct {
	Results    []TestResult `json:"results"`
	ErrorCount int          `json:"errorCount"`
	Duration   float64      `json:"duration"` // seconds

	RunID string `json:"-"`
}

// NewReport builds a report from results, deriving the error count.
func NewReport(runID string, results []TestResult, duration float64) *Report {
	if results == nil {
		results = []TestResult{}
	}
	return &Report{
		Results:    results,
		ErrorCount: CountFailures(results),
		Duration:   duration,
		RunID:      runID,
	}
}

// CountFailures returns the number of failed results.
func CountFailures(results []TestResult) int {
	n := 0
	for _, r := range results {
		if !r.Passed {
			n++
		}
	}
	return n
}

// Passed returns the number of passed results.
func (r *Report) Passed() int {
	return len(r.Results) - r.ErrorCount
}

// Failed reports whether any case failed.
func (r *Report) Failed() bool {
	return r.ErrorCount > 0
}

// Validate checks that the error count agrees with the results.
func (r *Report) Validate() error {
	if r.ErrorCount < 0 {
		return fmt.Errorf("negative error count %d", r.ErrorCount)
	}
	if n := CountFailures(r.Results); n != r.ErrorCount {
		return fmt.Errorf("error count %d does not match %d failed results", r.ErrorCount, n)
	}
	if r.Duration < 0 {
		return fmt.Errorf("negative duration %f", r.Duration)
	}
	return nil
}

// String returns a one line summary of the report.
func (r *Report) String() string {
	status := "pass"
	if r.Failed() {
		status = "fail"
	}
	return fmt.Sprintf("Cavy run %s: %d tests, %d passed, %d failed in %.2fs",
		status, len(r.Results), r.Passed(), r.ErrorCount, r.Duration)
}
