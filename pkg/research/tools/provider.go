package tools

import (
	"fmt"

	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/research"
)

// FromConfig builds the configured search provider, wrapped in a cache when
// a TTL is set.
func FromConfig(cfg *config.Config) (research.Searcher, error) {
	var s research.Searcher
	switch cfg.SearchProvider {
	case config.ProviderExa:
		s = NewExaSearcher(cfg.ExaApiKey)
	case config.ProviderArxiv:
		var scraper *PDFScraper
		if cfg.MistralApiKey != "" {
			scraper = NewPDFScraper(cfg.MistralApiKey)
		}
		s = NewArxivSearcher(scraper)
	default:
		return nil, fmt.Errorf("unknown search provider %q", cfg.SearchProvider)
	}

	if cfg.SearchCacheTTL > 0 {
		s = NewCachedSearcher(s, cfg.SearchCacheTTL)
	}
	return s, nil
}
