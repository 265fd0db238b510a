package cavy

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-cavy/types"
)

// ResultFormatter is responsible for formatting and displaying run reports.
type ResultFormatter interface {
	FormatResults(report *types.Report, suites []*types.TestScope) error
}

// ConsoleResultFormatter renders a report as a table.
type ConsoleResultFormatter struct {
	logger log.Logger
	out    io.Writer
}

func NewConsoleResultFormatter(logger log.Logger, out io.Writer) *ConsoleResultFormatter {
	return &ConsoleResultFormatter{
		logger: logger,
		out:    out,
	}
}

// FormatResults prints one row per case. When suites are given, results are
// grouped under the suite they came from, otherwise they are listed flat.
func (f *ConsoleResultFormatter) FormatResults(report *types.Report, suites []*types.TestScope) error {
	if report == nil {
		return fmt.Errorf("no report to format")
	}
	f.logger.Debug("Printing results...")
	duration := time.Duration(report.Duration * float64(time.Second))

	t := table.NewWriter()
	t.SetOutputMirror(f.out)
	t.SetTitle(fmt.Sprintf("Cavy Results (%s)", formatDuration(duration)))
	t.AppendHeader(table.Row{"Type", "ID", "Tests", "Passed", "Failed", "Status", "Error"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Type", AutoMerge: true},
		{Name: "ID", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Tests", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	results := report.Results
	if types.CountCases(suites) == len(results) && len(suites) > 0 {
		next := 0
		for _, suite := range suites {
			chunk := results[next : next+suite.Len()]
			next += suite.Len()
			failed := types.CountFailures(chunk)
			t.AppendRow(table.Row{
				"Suite", suite.Name, "-", len(chunk) - failed, failed, getResultString(failed == 0), "",
			})
			appendTests(t, chunk, "│   ")
		}
	} else {
		appendTests(t, results, "")
	}

	if report.Failed() {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	}
	t.AppendFooter(table.Row{
		"TOTAL", "", len(results), report.Passed(), report.ErrorCount, getResultString(!report.Failed()), "",
	})
	t.Render()
	return nil
}

func appendTests(t table.Writer, results []types.TestResult, indent string) {
	for i, res := range results {
		prefix := "├──"
		if i == len(results)-1 {
			prefix = "└──"
		}
		name, reason := splitMessage(res.Message)
		t.AppendRow(table.Row{
			"Test",
			fmt.Sprintf("%s%s %s", indent, prefix, name),
			1,
			boolToInt(res.Passed),
			boolToInt(!res.Passed),
			getResultString(res.Passed),
			reason,
		})
	}
}

// splitMessage separates the description from the failure reason of a
// result message and strips the pass/fail mark.
func splitMessage(msg string) (string, string) {
	name, reason, _ := strings.Cut(msg, "\n")
	name = strings.TrimSuffix(name, "  "+types.PassMark)
	name = strings.TrimSuffix(name, "  "+types.FailMark)
	return name, strings.TrimSpace(reason)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Round(10 * time.Millisecond).String()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func getResultString(passed bool) string {
	if passed {
		return "✓ pass"
	}
	return "✗ fail"
}
