package report

import (
	"fmt"
	"strings"

	"github.com/mikeboe/deep-research/pkg/research"
)

// RenderMarkdown formats the report as a Markdown document with the
// summary, findings, gaps, sources and a per-iteration log.
func RenderMarkdown(r *research.FinalReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Research Report: %s\n\n", r.Seed)
	fmt.Fprintf(&b, "- **Outcome:** %s\n", r.Reason)
	fmt.Fprintf(&b, "- **Confidence:** %.1f/10\n", r.Confidence)
	fmt.Fprintf(&b, "- **Iterations:** %d\n", len(r.Iterations))
	fmt.Fprintf(&b, "- **Sources:** %d\n", len(r.Sources))
	if r.Error != "" {
		fmt.Fprintf(&b, "- **Error:** %s\n", r.Error)
	}

	if r.Narrative != "" {
		b.WriteString("\n## Executive Summary\n\n")
		b.WriteString(r.Narrative)
		b.WriteString("\n")
	}

	if len(r.Findings) > 0 {
		b.WriteString("\n## Key Findings\n\n")
		for i, f := range r.Findings {
			theme := f.Theme
			if theme == "" {
				theme = "General"
			}
			fmt.Fprintf(&b, "%d. **%s**: %s\n", i+1, theme, f.Finding)
		}
	}

	if len(r.Gaps) > 0 {
		b.WriteString("\n## Information Gaps\n\n")
		for _, g := range r.Gaps {
			fmt.Fprintf(&b, "- %s\n", g)
		}
	}

	if len(r.Sources) > 0 {
		b.WriteString("\n## Sources\n\n")
		for i, s := range r.Sources {
			title := s.Title
			if title == "" {
				title = s.URL
			}
			fmt.Fprintf(&b, "%d. [%s](%s) (score %.1f, iteration %d)\n", i+1, title, s.URL, s.Score, s.Iteration)
			if s.Summary != "" {
				fmt.Fprintf(&b, "   %s\n", s.Summary)
			}
		}
	}

	if len(r.Iterations) > 0 {
		b.WriteString("\n## Iterations\n\n")
		b.WriteString("| # | Queries | Documents | Retained | Failed searches | Confidence |\n")
		b.WriteString("|---|---|---|---|---|---|\n")
		for _, it := range r.Iterations {
			queries := make([]string, len(it.Queries))
			for i, q := range it.Queries {
				queries[i] = q.Text
			}
			fmt.Fprintf(&b, "| %d | %s | %d | %d | %d | %.1f |\n",
				it.Index, strings.Join(queries, "; "), len(it.Documents), len(it.Retained), len(it.SearchFailures), it.Confidence)
		}
	}

	return b.String()
}
