package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/wonny/epimart/internal/contracts"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

const (
	singleLine = "───────────────────────────────────────────────────────────"
	doubleLine = "═══════════════════════════════════════════════════════════"
)

// PrintHeader prints a framed command header
func PrintHeader(w io.Writer, title string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, doubleLine)
	fmt.Fprintf(w, "  %s\n", title)
	fmt.Fprintln(w, singleLine)
}

// PrintSeparator prints a visual separator
func PrintSeparator(w io.Writer) {
	fmt.Fprintln(w, singleLine)
}

// PrintWarning prints a warning message
func PrintWarning(w io.Writer, message string) {
	fmt.Fprintf(w, "⚠️  %s\n", message)
}

// PrintSuccess prints a success message
func PrintSuccess(w io.Writer, message string) {
	fmt.Fprintf(w, "✅ %s\n", message)
}

// PrintError prints an error message
func PrintError(w io.Writer, message string) {
	fmt.Fprintf(w, "❌ %s\n", message)
}

// PrintTableHeader prints a table header
func PrintTableHeader(w io.Writer, columns []string, widths []int) {
	PrintTableRow(w, columns, widths)

	totalWidth := 0
	for i, width := range widths {
		totalWidth += width
		if i < len(widths)-1 {
			totalWidth += 2 // spacing
		}
	}
	fmt.Fprintln(w, strings.Repeat("─", totalWidth))
}

// PrintTableRow prints a table row
func PrintTableRow(w io.Writer, values []string, widths []int) {
	for i, val := range values {
		fmt.Fprintf(w, "%-*s", widths[i], val)
		if i < len(values)-1 {
			fmt.Fprint(w, "  ")
		}
	}
	fmt.Fprintln(w)
}

// PrintRunSummary prints the audit trail of one pipeline run
func PrintRunSummary(w io.Writer, run *contracts.PipelineRun) {
	PrintHeader(w, "Pipeline Run")
	fmt.Fprintf(w, "  Run ID    : %s\n", run.RunID)
	fmt.Fprintf(w, "  Config    : %s\n", shortHash(run.ConfigHash))
	if !run.FinishedAt.IsZero() {
		fmt.Fprintf(w, "  Duration  : %s\n", run.Duration().Round(time.Millisecond))
	}
	PrintSeparator(w)

	// S1
	widths := []int{14, 8, 8, 30}
	PrintTableHeader(w, []string{"S1 source", "input", "kept", "rejected"}, widths)
	for _, f := range run.Filter {
		PrintTableRow(w, []string{
			string(f.Source),
			fmt.Sprint(f.Input),
			fmt.Sprint(f.Kept),
			formatRejected(f.Rejected),
		}, widths)
	}
	fmt.Fprintln(w)

	// S2
	widths = []int{14, 12, 8, 8, 6}
	PrintTableHeader(w, []string{"S2 source", "policy", "input", "keys", "ties"}, widths)
	for _, r := range run.Reduce {
		PrintTableRow(w, []string{
			string(r.Source),
			r.Policy,
			fmt.Sprint(r.Input),
			fmt.Sprint(r.Keys),
			fmt.Sprint(r.Ties),
		}, widths)
	}
	fmt.Fprintln(w)

	// S3
	widths = []int{28, 6, 6, 8, 8, 7}
	PrintTableHeader(w, []string{"S3 stage", "left", "right", "matched", "dropped", "rate"}, widths)
	for _, s := range run.Join.Stages {
		PrintTableRow(w, []string{
			s.Name,
			fmt.Sprint(s.LeftRows),
			fmt.Sprint(s.RightRows),
			fmt.Sprint(s.Matched),
			fmt.Sprint(s.DroppedLeft),
			fmt.Sprintf("%.1f%%", s.DropRate()*100),
		}, widths)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  Mart rows     : %d\n", run.MartRows)
	fmt.Fprintf(w, "  National rows : %d (gap days: %d)\n", run.NationalRows, run.GapDays)

	switch {
	case run.Coverage.MaxDropRate == 0:
		fmt.Fprintf(w, "  Coverage      : observe only (worst %.1f%%)\n", run.Coverage.WorstRate*100)
	case run.Coverage.Passed:
		PrintSuccess(w, fmt.Sprintf("Coverage passed (worst %.1f%% <= %.1f%%)",
			run.Coverage.WorstRate*100, run.Coverage.MaxDropRate*100))
	default:
		PrintWarning(w, fmt.Sprintf("Coverage breached at %s (worst %.1f%% > %.1f%%)",
			strings.Join(run.Coverage.Breaches, ", "), run.Coverage.WorstRate*100, run.Coverage.MaxDropRate*100))
	}
}

// formatRejected renders rule counts in evaluation order
func formatRejected(rejected map[string]int) string {
	var parts []string
	for _, rule := range contracts.RejectRules() {
		if n := rejected[rule]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", rule, n))
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
