package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/mikeboe/deep-research/pkg/research"
)

var (
	heading = color.New(color.FgGreen, color.Bold)
	label   = color.New(color.FgCyan, color.Bold)
	warning = color.New(color.FgYellow)
	gapHead = color.New(color.FgYellow, color.Bold)
	failure = color.New(color.FgRed, color.Bold)
	bold    = color.New(color.Bold)
)

// PrintSummary writes a colored summary of the report to w.
func PrintSummary(w io.Writer, r *research.FinalReport) {
	rule := strings.Repeat("=", 80)
	heading.Fprintln(w, "\n"+rule)
	heading.Fprintln(w, "RESEARCH SUMMARY")
	heading.Fprintln(w, rule)

	label.Fprintf(w, "\nQuery: %s\n", r.Seed)
	fmt.Fprintf(w, "Iterations: %d\n", len(r.Iterations))
	fmt.Fprintf(w, "Total Sources: %d\n", len(r.Sources))
	fmt.Fprintf(w, "Confidence Score: %.1f/10\n", r.Confidence)
	if r.Reason.Failed() {
		failure.Fprintf(w, "Stopped: %s", r.Reason)
		if r.Error != "" {
			failure.Fprintf(w, " (%s)", r.Error)
		}
		fmt.Fprintln(w)
	} else {
		fmt.Fprintf(w, "Stopped: %s\n", r.Reason)
	}

	if r.Narrative != "" {
		label.Fprintln(w, "\nExecutive Summary")
		fmt.Fprintln(w, r.Narrative)
	}

	if len(r.Findings) > 0 {
		bold.Fprintln(w, "\nKey Findings:")
		for i, f := range r.Findings {
			theme := f.Theme
			if theme == "" {
				theme = "General"
			}
			fmt.Fprintf(w, "   %d. %s: %s\n", i+1, bold.Sprint(theme), f.Finding)
		}
	}

	if len(r.Gaps) > 0 {
		gapHead.Fprintln(w, "\nInformation Gaps:")
		for _, g := range r.Gaps {
			warning.Fprintf(w, "   - %s\n", g)
		}
	}
}
