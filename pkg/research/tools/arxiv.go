package tools

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mikeboe/deep-research/pkg/research"
)

const arxivQueryURL = "https://export.arxiv.org/api/query"

// ArxivEntry struct to hold arXiv entry data
type ArxivEntry struct {
	ID        string      `xml:"id"`
	Title     string      `xml:"title"`
	Summary   string      `xml:"summary"`
	Published string      `xml:"published"`
	Link      []ArxivLink `xml:"link"`
}

// ArxivLink struct to hold arXiv link data
type ArxivLink struct {
	Href string `xml:"href,attr"`
	Type string `xml:"type,attr"`
	Rel  string `xml:"rel,attr"`
}

// ArxivFeed struct to hold the entire arXiv feed
type ArxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entry   []ArxivEntry `xml:"entry"`
}

// PDF returns the entry's PDF link, if any.
func (e ArxivEntry) PDF() string {
	for _, link := range e.Link {
		if link.Type == "application/pdf" {
			return link.Href
		}
	}
	return ""
}

// Abstract returns the canonical landing page of the entry.
func (e ArxivEntry) Abstract() string {
	for _, link := range e.Link {
		if link.Rel == "alternate" {
			return link.Href
		}
	}
	return strings.TrimSpace(e.ID)
}

// ArxivSearcher searches arXiv papers. When a PDF scraper is configured the
// full text of each paper replaces its abstract.
type ArxivSearcher struct {
	BaseURL string
	Scraper *PDFScraper
	Logger  *slog.Logger
	client  *http.Client
}

func NewArxivSearcher(scraper *PDFScraper) *ArxivSearcher {
	return &ArxivSearcher{
		BaseURL: arxivQueryURL,
		Scraper: scraper,
		Logger:  slog.Default(),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Search implements research.Searcher.
func (a *ArxivSearcher) Search(ctx context.Context, query string, maxResults int) ([]research.Document, error) {
	if maxResults <= 0 {
		maxResults = 5
	}

	params := url.Values{}
	params.Add("search_query", "all:"+query)
	params.Add("max_results", strconv.Itoa(maxResults))
	params.Add("start", "0")
	apiURL := a.BaseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	a.Logger.Debug("API request made", "url", apiURL)

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		a.Logger.Error("API returned non-200 status code", "status", resp.StatusCode, "body", string(bodyBytes))
		return nil, fmt.Errorf("API returned non-200 status code: %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var feed ArxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal XML: %w", err)
	}

	docs := make([]research.Document, 0, len(feed.Entry))
	for _, entry := range feed.Entry {
		content := strings.TrimSpace(entry.Summary)
		if pdf := entry.PDF(); pdf != "" && a.Scraper != nil {
			text, err := a.Scraper.Scrape(ctx, pdf)
			if err != nil {
				// The abstract is still worth evaluating.
				a.Logger.Warn("PDF scrape failed, using abstract", "url", pdf, "error", err)
			} else {
				content = text
			}
		}
		docs = append(docs, research.Document{
			URL:           entry.Abstract(),
			Title:         strings.Join(strings.Fields(entry.Title), " "),
			Content:       content,
			PublishedDate: entry.Published,
		})
	}
	return docs, nil
}
