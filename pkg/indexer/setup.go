package indexer

import (
	"context"
	"fmt"

	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/database"
	"github.com/mikeboe/deep-research/pkg/embeddings"
	"github.com/mikeboe/deep-research/pkg/splitter"
	"github.com/mikeboe/deep-research/pkg/vectorstore"
)

// Retrieval holds the components shared by indexing and content search.
type Retrieval struct {
	Indexer  *Indexer
	Store    *vectorstore.PGVectorStore
	Embedder *embeddings.GoogleEmbedder
}

// FromConfig creates the embeddings table if needed and wires a markdown
// splitter, the Gemini embedder and the pgvector store into an Indexer.
func FromConfig(ctx context.Context, cfg *config.Config, db *database.PostgresDB) (*Retrieval, error) {
	embedder, err := embeddings.NewGoogleEmbedder(ctx, cfg.EmbeddingModel, cfg.GoogleApiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	if err := db.CreateEmbeddingsTable(ctx, cfg.CollectionName, embedder.Dimension()); err != nil {
		return nil, err
	}

	store, err := vectorstore.NewPGVectorStore(db.Pool, cfg.CollectionName)
	if err != nil {
		return nil, err
	}

	split := splitter.NewMarkdownTextSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	return &Retrieval{
		Indexer:  New(split, embedder, store),
		Store:    store,
		Embedder: embedder,
	}, nil
}
