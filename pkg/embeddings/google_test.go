package embeddings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatches(t *testing.T) {
	texts := []string{"a", "b", "c", "d", "e"}

	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, batches(texts, 2))
	assert.Equal(t, [][]string{texts}, batches(texts, 5))
	assert.Empty(t, batches(nil, 3))
}

func TestNewGoogleEmbedderRequiresKey(t *testing.T) {
	_, err := NewGoogleEmbedder(context.Background(), "gemini-embedding-001", "")
	require.Error(t, err)
}
