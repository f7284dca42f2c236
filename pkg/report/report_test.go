package report

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/deep-research/pkg/research"
)

func sampleReport() *research.FinalReport {
	return &research.FinalReport{
		ID:         "abc",
		Seed:       "Impact of AI on healthcare?",
		Reason:     research.ReasonConfidenceReached,
		Confidence: 8,
		Narrative:  "AI helps diagnostics.",
		Gaps:       []string{"long-term outcomes"},
		Findings:   []research.Finding{{Theme: "diagnostics", Finding: "faster reads"}, {Finding: "untagged"}},
		Sources: []research.Source{
			{URL: "https://a.example", Title: "A", Summary: "sum a", Score: 9, Iteration: 1},
			{URL: "https://b.example", Score: 7, Iteration: 2},
		},
		Iterations: []research.IterationResult{
			{Index: 1, Queries: []research.Query{{Text: "q1"}, {Text: "q2"}}, Confidence: 5},
			{Index: 2, Queries: []research.Query{{Text: "q3"}}, Confidence: 8},
		},
		FinishedAt: time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC),
	}
}

func TestDefaultFilename(t *testing.T) {
	assert.Equal(t, "research_report_Impact_of_AI_on_healthcare_20250304_050607.json", DefaultFilename(sampleReport()))

	long := &research.FinalReport{Seed: strings.Repeat("x", 80) + "!!", FinishedAt: time.Unix(0, 0).UTC()}
	name := DefaultFilename(long)
	assert.Equal(t, "research_report_"+strings.Repeat("x", 50)+"_19700101_000000.json", name)
}

func TestSafeQuery(t *testing.T) {
	tests := map[string]string{
		"climate change solutions 2024": "climate_change_solutions_2024",
		"what's new in Go?  ":           "whats_new_in_Go",
		"a/b\\c":                        "abc",
		"café-au_lait":                  "café-au_lait",
	}
	for in, want := range tests {
		assert.Equal(t, want, safeQuery(in), in)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	r := sampleReport()

	name, err := Save(r, path)
	require.NoError(t, err)
	assert.Equal(t, path, name)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, r.Seed, loaded.Seed)
	assert.Equal(t, r.Reason, loaded.Reason)
	assert.Equal(t, r.Sources, loaded.Sources)
	assert.True(t, r.FinishedAt.Equal(loaded.FinishedAt))

	_, err = Save(r, filepath.Join(t.TempDir(), "missing", "dir", "r.json"))
	require.Error(t, err)
}

func TestRenderMarkdown(t *testing.T) {
	md := RenderMarkdown(sampleReport())

	assert.True(t, strings.HasPrefix(md, "# Research Report: Impact of AI on healthcare?\n"))
	assert.Contains(t, md, "- **Outcome:** confidence_reached")
	assert.Contains(t, md, "## Executive Summary\n\nAI helps diagnostics.")
	assert.Contains(t, md, "1. **diagnostics**: faster reads")
	assert.Contains(t, md, "2. **General**: untagged")
	assert.Contains(t, md, "- long-term outcomes")
	assert.Contains(t, md, "1. [A](https://a.example) (score 9.0, iteration 1)\n   sum a")
	assert.Contains(t, md, "2. [https://b.example](https://b.example)")
	assert.Contains(t, md, "| 1 | q1; q2 | 0 | 0 | 0 | 5.0 |")
	assert.NotContains(t, md, "**Error:**")
}

func TestPrintSummary(t *testing.T) {
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = false })

	var buf bytes.Buffer
	r := sampleReport()
	PrintSummary(&buf, r)
	out := buf.String()

	assert.Contains(t, out, "RESEARCH SUMMARY")
	assert.Contains(t, out, "Query: Impact of AI on healthcare?")
	assert.Contains(t, out, "Total Sources: 2")
	assert.Contains(t, out, "Stopped: confidence_reached")
	assert.Contains(t, out, "1. diagnostics: faster reads")
	assert.Contains(t, out, "- long-term outcomes")

	buf.Reset()
	r.Reason = research.ReasonSearchFailed
	r.Error = "all searches failed"
	PrintSummary(&buf, r)
	assert.Contains(t, buf.String(), "Stopped: search_failed (all searches failed)")
}
