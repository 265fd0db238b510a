package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "cavy"
)

// Reporter delivery outcomes.
const (
	ReportSent    = "sent"
	ReportSkipped = "skipped"
	ReportRefused = "refused"
	ReportFailed  = "failed"
	ReportOff     = "off"
)

// ResultRateLimited labels reports the collector turned away.
const ResultRateLimited = "rate_limited"

var (
	Debug                bool = true
	validResults              = []string{"pass", "fail"}
	validReportOutcomes       = []string{ReportSent, ReportSkipped, ReportRefused, ReportFailed, ReportOff}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	casesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "cases_total",
		Help:      "Count of executed test cases",
	}, []string{
		"suite",
		"result",
	})

	caseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "case_duration_seconds",
		Help:      "Duration of a single test case, including isolation",
		Buckets:   prometheus.DefBuckets,
	}, []string{
		"suite",
	})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "runs_total",
		Help:      "Count of completed runs",
	}, []string{
		"result",
	})

	runCases = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_cases",
		Help:      "Number of cases in the last run by result",
	}, []string{
		"result",
	})

	runDuration = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of the last run",
	})

	reportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "reports_total",
		Help:      "Count of report deliveries by outcome",
	}, []string{
		"outcome",
	})

	collectedReportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "collected_reports_total",
		Help:      "Count of reports received by the collector",
	}, []string{
		"result",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

func RecordCase(suite string, result string, duration time.Duration) {
	if !isValidResult(result) {
		log.Error("RecordCase - invalid result", "result", result)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "cases_total",
			"suite", suite,
			"result", result)
	}
	casesTotal.WithLabelValues(suite, result).Inc()
	caseDuration.WithLabelValues(suite).Observe(duration.Seconds())
}

func RecordRun(result string, total int, failed int, duration time.Duration) {
	if !isValidResult(result) {
		log.Error("RecordRun - invalid result", "result", result)
		return
	}
	runsTotal.WithLabelValues(result).Inc()
	runCases.WithLabelValues("pass").Set(float64(total - failed))
	runCases.WithLabelValues("fail").Set(float64(failed))
	runDuration.Set(duration.Seconds())
}

func RecordReport(outcome string) {
	if !slices.Contains(validReportOutcomes, outcome) {
		log.Error("RecordReport - invalid outcome", "outcome", outcome)
		return
	}
	reportsTotal.WithLabelValues(outcome).Inc()
}

func RecordCollectedReport(result string) {
	if !isValidResult(result) && result != ResultRateLimited {
		log.Error("RecordCollectedReport - invalid result", "result", result)
		return
	}
	collectedReportsTotal.WithLabelValues(result).Inc()
}

// ResultLabel maps a pass/fail boolean to a result label.
func ResultLabel(passed bool) string {
	if passed {
		return "pass"
	}
	return "fail"
}

func isValidResult(result string) bool {
	return slices.Contains(validResults, result)
}
