package scenario

import (
	"fmt"
	"math/big"
	"strings"
)

// Report contains the results of a scenario run
type Report struct {
	Title   string
	ChainID *big.Int
	Results []Result
	Summary Summary
}

// Summary contains summary statistics
type Summary struct {
	TotalTests  int
	PassedTests int
	FailedTests int
	PassRate    float64
	// GroupPass tells whether every case of a group passed.
	GroupPass map[string]bool
	// Groups keeps the groups in the order they were first run.
	Groups []string
}

// Passed reports whether every case passed.
func (r *Report) Passed() bool {
	return r.Summary.FailedTests == 0
}

func summarize(results []Result) Summary {
	summary := Summary{GroupPass: make(map[string]bool)}

	for _, r := range results {
		group := r.Case.Group
		if _, seen := summary.GroupPass[group]; !seen {
			summary.Groups = append(summary.Groups, group)
			summary.GroupPass[group] = true
		}

		summary.TotalTests++
		if r.Passed {
			summary.PassedTests++
		} else {
			summary.FailedTests++
			summary.GroupPass[group] = false
		}
	}

	if summary.TotalTests > 0 {
		summary.PassRate = float64(summary.PassedTests) / float64(summary.TotalTests) * 100
	}
	return summary
}

// FormatReport formats the scenario report as a string
func FormatReport(report *Report) string {
	var sb strings.Builder

	sb.WriteString("=" + strings.Repeat("=", 79) + "\n")
	sb.WriteString(fmt.Sprintf("  %s\n", report.Title))
	sb.WriteString(fmt.Sprintf("  Chain ID: %s\n", report.ChainID.String()))
	sb.WriteString("=" + strings.Repeat("=", 79) + "\n\n")

	// Summary
	sb.WriteString("SUMMARY\n")
	sb.WriteString("-" + strings.Repeat("-", 39) + "\n")
	sb.WriteString(fmt.Sprintf("Total Tests:  %d\n", report.Summary.TotalTests))
	sb.WriteString(fmt.Sprintf("Passed:       %d\n", report.Summary.PassedTests))
	sb.WriteString(fmt.Sprintf("Failed:       %d\n", report.Summary.FailedTests))
	sb.WriteString(fmt.Sprintf("Pass Rate:    %.1f%%\n\n", report.Summary.PassRate))

	sb.WriteString("Group Status:\n")
	for _, g := range report.Summary.Groups {
		sb.WriteString(fmt.Sprintf("  %-12s %s\n", g+":", statusIcon(report.Summary.GroupPass[g])))
	}

	group := ""
	for _, r := range report.Results {
		if r.Case.Group != group {
			group = r.Case.Group
			sb.WriteString(fmt.Sprintf("\n%s\n", strings.ToUpper(group)))
			sb.WriteString("-" + strings.Repeat("-", 39) + "\n")
		}
		sb.WriteString(fmt.Sprintf("[%s] %s\n", statusIcon(r.Passed), r.Case.Name))
		if !r.Passed {
			sb.WriteString(fmt.Sprintf("       Description: %s\n", r.Case.Description))
			if r.Error != nil {
				sb.WriteString(fmt.Sprintf("       Error: %v\n", r.Error))
			}
		}
	}

	sb.WriteString("\n" + "=" + strings.Repeat("=", 79) + "\n")
	if report.Passed() {
		sb.WriteString("  ALL TESTS PASSED\n")
	} else {
		sb.WriteString(fmt.Sprintf("  %d TESTS FAILED\n", report.Summary.FailedTests))
	}
	sb.WriteString("=" + strings.Repeat("=", 79) + "\n")

	return sb.String()
}

func statusIcon(passed bool) string {
	if passed {
		return "PASS"
	}
	return "FAIL"
}
