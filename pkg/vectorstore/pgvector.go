package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-zA-Z0-9_]{0,62}$`)

// PGVectorStore stores research source chunks in a pgvector table
type PGVectorStore struct {
	pool      *pgxpool.Pool
	tableName string
}

// isValidTableName validates that a table name contains only safe characters
// to prevent SQL injection attacks
func isValidTableName(name string) bool {
	// Table names must start with a letter or underscore and be between 1-63 chars (PostgreSQL limit)
	return tableNamePattern.MatchString(name)
}

// NewPGVectorStore creates a new PGVector store
func NewPGVectorStore(pool *pgxpool.Pool, tableName string) (*PGVectorStore, error) {
	if !isValidTableName(tableName) {
		return nil, fmt.Errorf("invalid table name: must contain only alphanumeric characters and underscores, start with a letter or underscore, and be 1-63 characters long")
	}
	return &PGVectorStore{
		pool:      pool,
		tableName: tableName,
	}, nil
}

func (vs *PGVectorStore) table() string {
	return pgx.Identifier{vs.tableName}.Sanitize()
}

// AddChunks inserts chunks with their embeddings in one batch
func (vs *PGVectorStore) AddChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (content, metadata, embedding)
		VALUES ($1, $2, $3)
	`, vs.table())

	batch := &pgx.Batch{}
	for _, c := range chunks {
		metadataJSON, err := json.Marshal(c.metadata())
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		batch.Queue(query, c.Content, metadataJSON, pgvector.NewVector(c.Embedding))
	}

	br := vs.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range chunks {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
	}
	return nil
}

// IndexedSources reports which of the given source URLs already have chunks.
func (vs *PGVectorStore) IndexedSources(ctx context.Context, sources []string) (map[string]bool, error) {
	indexed := make(map[string]bool)
	if len(sources) == 0 {
		return indexed, nil
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT metadata->>'source'
		FROM %s
		WHERE metadata->>'source' = ANY($1)
	`, vs.table())

	rows, err := vs.pool.Query(ctx, query, sources)
	if err != nil {
		return nil, fmt.Errorf("failed to query indexed sources: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var src string
		if err := rows.Scan(&src); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		indexed[src] = true
	}
	return indexed, rows.Err()
}

// Filter narrows a similarity search. Zero fields are ignored.
type Filter struct {
	Source    string
	SessionID string
}

// where renders the filter as SQL conditions, numbering placeholders after
// the args already present.
func (f Filter) where(args *[]any) string {
	var conds []string
	if f.Source != "" {
		*args = append(*args, f.Source)
		conds = append(conds, fmt.Sprintf("metadata->>'source' = $%d", len(*args)))
	}
	if f.SessionID != "" {
		*args = append(*args, f.SessionID)
		conds = append(conds, fmt.Sprintf("metadata->>'session_id' = $%d", len(*args)))
	}
	if len(conds) == 0 {
		return "TRUE"
	}
	return strings.Join(conds, " AND ")
}

// SimilaritySearchResult represents a search result with score
type SimilaritySearchResult struct {
	Chunk Chunk
	Score float64
}

// SimilaritySearch returns the topK chunks closest to queryEmbedding
func (vs *PGVectorStore) SimilaritySearch(ctx context.Context, queryEmbedding []float32, topK int, filter Filter) ([]SimilaritySearchResult, error) {
	args := []any{pgvector.NewVector(queryEmbedding)}
	where := filter.where(&args)
	args = append(args, topK)

	query := fmt.Sprintf(`
		SELECT id, content, metadata, 1 - (embedding <=> $1) as similarity
		FROM %s
		WHERE %s
		ORDER BY embedding <=> $1
		LIMIT $%d
	`, vs.table(), where, len(args))

	rows, err := vs.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute similarity search: %w", err)
	}
	defer rows.Close()

	var results []SimilaritySearchResult
	for rows.Next() {
		var similarity float64
		c, err := scanChunk(rows, &similarity)
		if err != nil {
			return nil, err
		}
		results = append(results, SimilaritySearchResult{Chunk: c, Score: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return results, nil
}

// ChunksBySource retrieves all chunks of one source in order
func (vs *PGVectorStore) ChunksBySource(ctx context.Context, source string) ([]Chunk, error) {
	query := fmt.Sprintf(`
		SELECT id, content, metadata
		FROM %s
		WHERE metadata->>'source' = $1
		ORDER BY (metadata->>'chunk')::int
	`, vs.table())
	return vs.queryChunks(ctx, query, source)
}

// ChunksByMetadata retrieves chunks matching a JSON filter.
// Supports logical operators $and, $or, $not within the filter map
func (vs *PGVectorStore) ChunksByMetadata(ctx context.Context, filter map[string]any) ([]Chunk, error) {
	var args []any
	whereClause, err := vs.buildMetadataQuery(filter, &args)
	if err != nil {
		return nil, fmt.Errorf("failed to build metadata query: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, content, metadata
		FROM %s
		WHERE %s
	`, vs.table(), whereClause)
	return vs.queryChunks(ctx, query, args...)
}

func (vs *PGVectorStore) queryChunks(ctx context.Context, query string, args ...any) ([]Chunk, error) {
	rows, err := vs.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return chunks, nil
}

// scanChunk reads id, content and metadata, plus any extra columns into dest.
func scanChunk(rows pgx.Rows, dest ...any) (Chunk, error) {
	var c Chunk
	var metadataJSON []byte
	if err := rows.Scan(append([]any{&c.ID, &c.Content, &metadataJSON}, dest...)...); err != nil {
		return c, fmt.Errorf("failed to scan row: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(metadataJSON, &m); err != nil {
		return c, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	c.setMetadata(m)
	return c, nil
}

// buildMetadataQuery recursively builds a SQL WHERE clause for list of conditions
func (vs *PGVectorStore) buildMetadataQuery(filter map[string]any, args *[]any) (string, error) {
	if len(filter) == 0 {
		return "TRUE", nil
	}

	var conditions []string

	for key, value := range filter {
		switch key {
		case "$and", "$or":
			list, ok := value.([]any)
			if !ok {
				return "", fmt.Errorf("value for %s must be a list of conditions", key)
			}
			var subConditions []string
			for _, item := range list {
				subMap, ok := item.(map[string]any)
				if !ok {
					return "", fmt.Errorf("item in %s list must be a JSON object", key)
				}
				subQuery, err := vs.buildMetadataQuery(subMap, args)
				if err != nil {
					return "", err
				}
				subConditions = append(subConditions, "("+subQuery+")")
			}

			if len(subConditions) == 0 {
				continue
			}

			op := " AND "
			if key == "$or" {
				op = " OR "
			}
			conditions = append(conditions, "("+strings.Join(subConditions, op)+")")

		case "$not":
			subMap, ok := value.(map[string]any)
			if !ok {
				return "", fmt.Errorf("value for $not must be a JSON object")
			}
			subQuery, err := vs.buildMetadataQuery(subMap, args)
			if err != nil {
				return "", err
			}
			conditions = append(conditions, "NOT ("+subQuery+")")

		default:
			// Simple equality match: metadata @> '{"key": value}'
			jsonBytes, err := json.Marshal(map[string]any{key: value})
			if err != nil {
				return "", fmt.Errorf("failed to marshal metadata pair: %w", err)
			}
			*args = append(*args, jsonBytes)
			conditions = append(conditions, fmt.Sprintf("metadata @> $%d", len(*args)))
		}
	}

	if len(conditions) == 0 {
		return "TRUE", nil
	}

	return strings.Join(conditions, " AND "), nil
}
