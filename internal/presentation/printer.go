package presentation

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"photoproc/internal/domain"
	"photoproc/internal/pipeline"
)

type Printer struct {
	Writer  io.Writer
	Verbose bool
}

// PrintReport summarizes one pipeline run: per-stage counts, the failed
// records, and the abort position if the run did not complete.
func (p Printer) PrintReport(report domain.BatchReport) {
	for _, stage := range report.StageOrder {
		counts := report.Counts(stage)
		fmt.Fprintf(p.Writer, "%-12s  %d ok, %d failed, %d skipped\n",
			stage, counts.Success, counts.Failed, counts.Skipped)
	}

	failed := report.FailedRecords()
	if len(failed) > 0 {
		fmt.Fprintln(p.Writer)
		fmt.Fprintln(p.Writer, "Failed:")
		for _, line := range formatFailureLines(failed) {
			fmt.Fprintln(p.Writer, line)
		}
	}

	fmt.Fprintln(p.Writer)
	switch report.State {
	case domain.RunCompleted:
		fmt.Fprintf(p.Writer, "Processed %d files.\n", len(report.Records))
	case domain.RunAborted:
		fmt.Fprintf(p.Writer, "Aborted at stage %s: %s\n", report.AbortedStage, report.AbortReason)
	}
}

// PrintMoves lists the moves of a run, truncated the same way long copy
// listings are elsewhere.
func (p Printer) PrintMoves(report domain.BatchReport, stage domain.Stage) {
	var lines []string
	for _, rec := range report.Records {
		res := rec.Result(stage)
		if res.Status == domain.StatusSuccess || res.Status == domain.StatusSkipped {
			if res.Note != "" {
				lines = append(lines, fmt.Sprintf("%s  %s", rec.Name, res.Note))
			}
		}
	}
	for _, line := range truncateLines(lines) {
		fmt.Fprintln(p.Writer, line)
	}
}

// PrintDetectedOffsets renders the per-directory detection results of the
// detect-timezone command.
func (p Printer) PrintDetectedOffsets(results map[string]pipeline.DetectedOffset) {
	dirs := make([]string, 0, len(results))
	for dir := range results {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	for _, dir := range dirs {
		res := results[dir]
		if res.Err != nil {
			fmt.Fprintf(p.Writer, "%s: detection failed: %v\n", dir, res.Err)
			continue
		}
		label := ""
		if res.Offset.Label != "" && res.Offset.Label != res.Offset.String() {
			label = " (" + res.Offset.Label + ")"
		}
		fmt.Fprintf(p.Writer, "%s: %s%s\n", dir, res.Offset, label)
	}
}

func (p Printer) PrintWarnings(warnings []string) {
	if !p.Verbose || len(warnings) == 0 {
		return
	}
	fmt.Fprintln(p.Writer, "Warnings:")
	for _, warning := range warnings {
		fmt.Fprintln(p.Writer, "- "+warning)
	}
}

func formatFailureLines(records []*domain.PhotoRecord) []string {
	lines := make([]string, 0, len(records))
	for _, rec := range records {
		var reason string
		for _, stage := range domain.ProcessStages {
			res := rec.Result(stage)
			if res.Status == domain.StatusFailed {
				reason = fmt.Sprintf("%s: %s", stage, res.ErrorMsg)
				break
			}
		}
		lines = append(lines, fmt.Sprintf("%s  %s", rec.Name, reason))
	}
	return truncateLines(lines)
}

func truncateLines(lines []string) []string {
	if len(lines) <= 4 {
		return lines
	}
	head := lines[:2]
	tail := lines[len(lines)-2:]
	return append(append(append([]string{}, head...), "..."), tail...)
}

func JoinLines(lines []string) string {
	return strings.Join(lines, "\n")
}
