// Package report persists and presents finished research sessions.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/mikeboe/deep-research/pkg/research"
)

const maxSlugLength = 50

// DefaultFilename names a report after its seed and the time it finished.
func DefaultFilename(r *research.FinalReport) string {
	ts := r.FinishedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return fmt.Sprintf("research_report_%s_%s.json", safeQuery(r.Seed), ts.Format("20060102_150405"))
}

// safeQuery keeps letters, digits, spaces, dashes and underscores, then
// replaces spaces with underscores.
func safeQuery(q string) string {
	var b strings.Builder
	for _, r := range q {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	s := strings.ReplaceAll(strings.TrimRight(b.String(), " "), " ", "_")
	if runes := []rune(s); len(runes) > maxSlugLength {
		s = string(runes[:maxSlugLength])
	}
	return s
}

// Save writes the report as indented JSON. An empty filename selects
// DefaultFilename. The written filename is returned.
func Save(r *research.FinalReport, filename string) (string, error) {
	if filename == "" {
		filename = DefaultFilename(r)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return "", fmt.Errorf("failed to save report: %w", err)
	}
	return filename, nil
}

// Load reads a report written by Save.
func Load(filename string) (*research.FinalReport, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var r research.FinalReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse report %s: %w", filename, err)
	}
	return &r, nil
}
