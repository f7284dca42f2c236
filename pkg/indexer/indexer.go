// Package indexer stores the sources of a finished research session in the
// vector store so they can be searched by the chat agent and MCP tools.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mikeboe/deep-research/pkg/research"
	"github.com/mikeboe/deep-research/pkg/vectorstore"
)

type Splitter interface {
	SplitText(text string) ([]string, error)
}

type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

type Store interface {
	IndexedSources(ctx context.Context, sources []string) (map[string]bool, error)
	AddChunks(ctx context.Context, chunks []vectorstore.Chunk) error
}

// Stats summarizes one Index call.
type Stats struct {
	Indexed int `json:"indexed"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
	Chunks  int `json:"chunks"`
}

type Indexer struct {
	Splitter Splitter
	Embedder Embedder
	Store    Store
	Logger   *slog.Logger
	// Concurrency bounds how many sources are embedded at once.
	Concurrency int
}

func New(s Splitter, e Embedder, store Store) *Indexer {
	return &Indexer{
		Splitter:    s,
		Embedder:    e,
		Store:       store,
		Logger:      slog.Default(),
		Concurrency: 3,
	}
}

// Index chunks, embeds and stores every source of the report that is not
// indexed yet. A failing source is logged and counted but does not stop the
// others; only a failure to query the store is returned.
func (ix *Indexer) Index(ctx context.Context, r *research.FinalReport) (Stats, error) {
	var stats Stats
	if len(r.Sources) == 0 {
		return stats, nil
	}

	urls := make([]string, len(r.Sources))
	for i, s := range r.Sources {
		urls[i] = s.URL
	}
	indexed, err := ix.Store.IndexedSources(ctx, urls)
	if err != nil {
		return stats, fmt.Errorf("failed to check indexed sources: %w", err)
	}

	contents := documentContents(r)
	var pending []research.Source
	for _, s := range r.Sources {
		if indexed[s.URL] {
			stats.Skipped++
			continue
		}
		pending = append(pending, s)
	}

	chunkCounts := make([]int, len(pending))
	errs := make([]error, len(pending))

	var g errgroup.Group
	if ix.Concurrency > 0 {
		g.SetLimit(ix.Concurrency)
	}
	for i, s := range pending {
		g.Go(func() error {
			n, err := ix.indexSource(ctx, r, s, contents[s.URL])
			chunkCounts[i], errs[i] = n, err
			return nil
		})
	}
	_ = g.Wait()

	for i, s := range pending {
		if errs[i] != nil {
			stats.Failed++
			ix.Logger.Error("Failed to index source", "url", s.URL, "error", errs[i])
			continue
		}
		stats.Indexed++
		stats.Chunks += chunkCounts[i]
	}

	ix.Logger.Info("Indexing complete", "session", r.ID, "indexed", stats.Indexed, "skipped", stats.Skipped, "failed", stats.Failed, "chunks", stats.Chunks)
	return stats, nil
}

func (ix *Indexer) indexSource(ctx context.Context, r *research.FinalReport, s research.Source, content string) (int, error) {
	texts, err := ix.Splitter.SplitText(sourceText(s, content))
	if err != nil {
		return 0, fmt.Errorf("failed to split text: %w", err)
	}
	if len(texts) == 0 {
		return 0, fmt.Errorf("source has no text")
	}

	vectors, err := ix.Embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(vectors) != len(texts) {
		return 0, fmt.Errorf("got %d embeddings for %d chunks", len(vectors), len(texts))
	}

	chunks := make([]vectorstore.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = vectorstore.Chunk{
			Content:   text,
			Source:    s.URL,
			Title:     s.Title,
			SessionID: r.ID,
			Seed:      r.Seed,
			Iteration: s.Iteration,
			Score:     s.Score,
			Index:     i,
			Embedding: vectors[i],
		}
	}
	if err := ix.Store.AddChunks(ctx, chunks); err != nil {
		return 0, fmt.Errorf("failed to add chunks: %w", err)
	}
	return len(chunks), nil
}

// documentContents maps each retained URL to the document text it was
// evaluated on.
func documentContents(r *research.FinalReport) map[string]string {
	out := make(map[string]string)
	for _, it := range r.Iterations {
		for _, sum := range it.Retained {
			if _, ok := out[sum.Document.URL]; !ok {
				out[sum.Document.URL] = sum.Document.Content
			}
		}
	}
	return out
}

// sourceText prefers the full document text and falls back to the summary
// and key points produced during evaluation.
func sourceText(s research.Source, content string) string {
	if strings.TrimSpace(content) != "" {
		return content
	}
	var b strings.Builder
	b.WriteString(s.Summary)
	for _, kp := range s.KeyPoints {
		b.WriteString("\n- ")
		b.WriteString(kp)
	}
	return b.String()
}
