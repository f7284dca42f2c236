package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"

	"github.com/mikeboe/deep-research/pkg/vectorstore"
)

// ChunkStore is the read side of the vector store.
type ChunkStore interface {
	SimilaritySearch(ctx context.Context, queryEmbedding []float32, topK int, filter vectorstore.Filter) ([]vectorstore.SimilaritySearchResult, error)
	ChunksBySource(ctx context.Context, source string) ([]vectorstore.Chunk, error)
	ChunksByMetadata(ctx context.Context, filter map[string]any) ([]vectorstore.Chunk, error)
}

type QueryEmbedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// RagToolset exposes the indexed research sources to the agent. When
// SessionID is set every search is restricted to that research session.
type RagToolset struct {
	Store     ChunkStore
	Embedder  QueryEmbedder
	SessionID string
	TopK      int
}

func NewRagToolset(store ChunkStore, embedder QueryEmbedder) *RagToolset {
	return &RagToolset{Store: store, Embedder: embedder, TopK: 5}
}

// Scoped returns a copy of the toolset restricted to one research session.
func (t *RagToolset) Scoped(sessionID string) *RagToolset {
	scoped := *t
	scoped.SessionID = sessionID
	return &scoped
}

func (t *RagToolset) Name() string {
	return "rag_tools"
}

func (t *RagToolset) Tools(ctx agent.ReadonlyContext) ([]tool.Tool, error) {
	searchTool, err := functiontool.New[SearchContentArgs, SearchContentResp](
		functiontool.Config{
			Name:        "search_content",
			Description: "Search the indexed research sources using semantic search.",
		},
		t.searchContentTool,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create search tool: %w", err)
	}

	findBySourceTool, err := functiontool.New[FindSourceArgs, FindSourceResp](
		functiontool.Config{
			Name:        "find_content_by_source",
			Description: "Read the full indexed text of one source URL.",
		},
		t.findContentBySourceTool,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create find_by_source tool: %w", err)
	}

	findByMetadataTool, err := functiontool.New[FindMetadataArgs, FindMetadataResp](
		functiontool.Config{
			Name:        "find_content_by_metadata",
			Description: "Find indexed content using logical filters on metadata (source, title, seed, session_id, iteration, score).",
		},
		t.findContentByMetadataTool,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create find_by_metadata tool: %w", err)
	}

	return []tool.Tool{searchTool, findBySourceTool, findByMetadataTool}, nil
}

// --- Tool Implementations ---

type SearchContentArgs struct {
	Query     string `json:"query" jsonschema:"The search query"`
	TopK      int    `json:"topK,omitempty" jsonschema:"Number of results to return (default 5)"`
	Source    string `json:"source,omitempty" jsonschema:"Optional source URL filter"`
	SessionID string `json:"session_id,omitempty" jsonschema:"Optional research session filter"`
}

type SearchContentResp struct {
	Results string `json:"results"`
}

// Wrapper for ADK tool interface
func (t *RagToolset) searchContentTool(ctx tool.Context, args SearchContentArgs) (SearchContentResp, error) {
	return t.SearchContent(ctx, args)
}

// SearchContent embeds the query and returns the closest chunks.
func (t *RagToolset) SearchContent(ctx context.Context, args SearchContentArgs) (SearchContentResp, error) {
	if strings.TrimSpace(args.Query) == "" {
		return SearchContentResp{}, fmt.Errorf("query is required")
	}
	if args.TopK <= 0 {
		args.TopK = t.TopK
	}
	if t.SessionID != "" {
		args.SessionID = t.SessionID
	}

	slog.Info("Search content", "query", args.Query, "topK", args.TopK, "source", args.Source, "session", args.SessionID)

	queryEmbedding, err := t.Embedder.EmbedText(ctx, args.Query)
	if err != nil {
		return SearchContentResp{}, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	results, err := t.Store.SimilaritySearch(ctx, queryEmbedding, args.TopK, vectorstore.Filter{
		Source:    args.Source,
		SessionID: args.SessionID,
	})
	if err != nil {
		return SearchContentResp{}, fmt.Errorf("failed to search: %w", err)
	}

	if len(results) == 0 {
		return SearchContentResp{Results: "No indexed content matches the query."}, nil
	}

	formatted := make([]string, len(results))
	for i, r := range results {
		formatted[i] = fmt.Sprintf("%s\n[Similarity]: %.3f", r.Chunk.String(), r.Score)
	}
	return SearchContentResp{Results: strings.Join(formatted, "\n\n")}, nil
}

type FindSourceArgs struct {
	Source string `json:"source" jsonschema:"The source URL to find content for"`
}

type FindSourceResp struct {
	Content string `json:"content"`
}

// Wrapper for ADK tool interface
func (t *RagToolset) findContentBySourceTool(ctx tool.Context, args FindSourceArgs) (FindSourceResp, error) {
	return t.FindContentBySource(ctx, args)
}

// FindContentBySource returns the indexed text of one source in chunk order.
func (t *RagToolset) FindContentBySource(ctx context.Context, args FindSourceArgs) (FindSourceResp, error) {
	chunks, err := t.Store.ChunksBySource(ctx, args.Source)
	if err != nil {
		return FindSourceResp{}, fmt.Errorf("failed to find content: %w", err)
	}

	var parts []string
	for _, c := range chunks {
		if t.SessionID != "" && c.SessionID != t.SessionID {
			continue
		}
		parts = append(parts, c.Content)
	}
	if len(parts) == 0 {
		return FindSourceResp{Content: "No indexed content for " + args.Source}, nil
	}
	return FindSourceResp{Content: strings.Join(parts, "\n\n")}, nil
}

type FindMetadataArgs struct {
	Filter map[string]any `json:"filter" jsonschema:"JSON filter object with logical operators ($and, $or, $not)"`
}

type FindMetadataResp struct {
	Content string `json:"content"`
}

// Wrapper for ADK tool interface
func (t *RagToolset) findContentByMetadataTool(ctx tool.Context, args FindMetadataArgs) (FindMetadataResp, error) {
	return t.FindContentByMetadata(ctx, args)
}

// FindContentByMetadata returns chunks matching the filter.
func (t *RagToolset) FindContentByMetadata(ctx context.Context, args FindMetadataArgs) (FindMetadataResp, error) {
	filter := args.Filter
	if t.SessionID != "" {
		filter = map[string]any{
			"$and": []any{
				map[string]any{vectorstore.KeySession: t.SessionID},
				args.Filter,
			},
		}
	}

	chunks, err := t.Store.ChunksByMetadata(ctx, filter)
	if err != nil {
		return FindMetadataResp{}, fmt.Errorf("failed to find content: %w", err)
	}

	formatted := make([]string, len(chunks))
	for i, c := range chunks {
		formatted[i] = c.String()
	}
	return FindMetadataResp{Content: strings.Join(formatted, "\n\n")}, nil
}
