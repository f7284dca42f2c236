package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mikeboe/deep-research/pkg/research"
)

const exaSearchURL = "https://api.exa.ai/search"

// DefaultExcludedDomains keeps social media out of the result set.
var DefaultExcludedDomains = []string{"reddit.com", "twitter.com", "facebook.com"}

// ExaSearcher queries the Exa search API and returns page text with each hit.
type ExaSearcher struct {
	APIKey         string
	BaseURL        string
	ExcludeDomains []string
	PublishedAfter string // YYYY-MM-DD
	client         *http.Client
}

// NewExaSearcher constructs an Exa search provider.
func NewExaSearcher(apiKey string) *ExaSearcher {
	return &ExaSearcher{
		APIKey:         apiKey,
		BaseURL:        exaSearchURL,
		ExcludeDomains: DefaultExcludedDomains,
		PublishedAfter: "2020-01-01",
		client:         &http.Client{Timeout: 30 * time.Second},
	}
}

type exaRequest struct {
	Query              string      `json:"query"`
	Type               string      `json:"type"`
	NumResults         int         `json:"numResults"`
	ExcludeDomains     []string    `json:"excludeDomains,omitempty"`
	StartPublishedDate string      `json:"startPublishedDate,omitempty"`
	Contents           exaContents `json:"contents"`
}

type exaContents struct {
	Text       bool `json:"text"`
	Highlights bool `json:"highlights"`
}

type exaResponse struct {
	Results []struct {
		URL           string   `json:"url"`
		Title         string   `json:"title"`
		Text          string   `json:"text"`
		Highlights    []string `json:"highlights"`
		PublishedDate string   `json:"publishedDate"`
		Score         float64  `json:"score"`
	} `json:"results"`
}

// Search implements research.Searcher.
func (s *ExaSearcher) Search(ctx context.Context, query string, maxResults int) ([]research.Document, error) {
	if strings.TrimSpace(s.APIKey) == "" {
		return nil, errors.New("exa: API key is missing")
	}

	payload, err := json.Marshal(exaRequest{
		Query:              query,
		Type:               "auto",
		NumResults:         maxResults,
		ExcludeDomains:     s.ExcludeDomains,
		StartPublishedDate: s.PublishedAfter,
		Contents:           exaContents{Text: true, Highlights: true},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", s.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("exa http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded exaResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode exa response: %w", err)
	}

	docs := make([]research.Document, 0, len(decoded.Results))
	for _, r := range decoded.Results {
		content := r.Text
		if content == "" {
			content = strings.Join(r.Highlights, "\n")
		}
		title := r.Title
		if title == "" {
			title = "No title"
		}
		docs = append(docs, research.Document{
			URL:           r.URL,
			Title:         title,
			Content:       content,
			PublishedDate: r.PublishedDate,
			SearchScore:   r.Score,
		})
	}
	return docs, nil
}
