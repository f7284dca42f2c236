package analyst

import (
	"context"
	"fmt"
	"strings"
)

type queryResponse struct {
	Queries []string `json:"queries"`
}

// Expand implements research.Expander. Without gaps it derives queries from
// the seed alone; with gaps it targets them. An empty list is not an error;
// the engine decides what zero queries means.
func (a *Analyst) Expand(ctx context.Context, seed string, gaps []string, count int) ([]string, error) {
	system := fmt.Sprintf(expandPrompt, count)
	input := "Research question: " + seed
	if len(gaps) > 0 {
		system = fmt.Sprintf(refinePrompt, count)
		input += "\n\nInformation gaps:\n- " + strings.Join(gaps, "\n- ")
	}

	var resp queryResponse
	if err := a.generateJSON(ctx, a.Reasoning, system, expandSchema, input, &resp); err != nil {
		return nil, err
	}
	return resp.Queries, nil
}
