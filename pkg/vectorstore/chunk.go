package vectorstore

import (
	"fmt"
	"strings"
)

// Metadata keys written for every chunk.
const (
	KeySource    = "source"
	KeyTitle     = "title"
	KeySession   = "session_id"
	KeySeed      = "seed"
	KeyIteration = "iteration"
	KeyScore     = "score"
	KeyChunk     = "chunk"
)

// Chunk is a piece of an indexed research source together with its
// embedding. Extra holds metadata beyond the fixed keys.
type Chunk struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Source    string         `json:"source"`
	Title     string         `json:"title"`
	SessionID string         `json:"session_id"`
	Seed      string         `json:"seed"`
	Iteration int            `json:"iteration"`
	Score     float64        `json:"score"`
	Index     int            `json:"chunk"`
	Extra     map[string]any `json:"extra,omitempty"`
	Embedding []float32      `json:"embedding,omitempty"`
}

func (c Chunk) metadata() map[string]any {
	m := make(map[string]any, len(c.Extra)+7)
	for k, v := range c.Extra {
		m[k] = v
	}
	m[KeySource] = c.Source
	m[KeyTitle] = c.Title
	m[KeySession] = c.SessionID
	m[KeySeed] = c.Seed
	m[KeyIteration] = c.Iteration
	m[KeyScore] = c.Score
	m[KeyChunk] = c.Index
	return m
}

// setMetadata fills the typed fields from a decoded metadata object and
// keeps unknown keys in Extra.
func (c *Chunk) setMetadata(m map[string]any) {
	for k, v := range m {
		switch k {
		case KeySource:
			c.Source, _ = v.(string)
		case KeyTitle:
			c.Title, _ = v.(string)
		case KeySession:
			c.SessionID, _ = v.(string)
		case KeySeed:
			c.Seed, _ = v.(string)
		case KeyIteration:
			c.Iteration = asInt(v)
		case KeyScore:
			c.Score, _ = v.(float64)
		case KeyChunk:
			c.Index = asInt(v)
		default:
			if c.Extra == nil {
				c.Extra = make(map[string]any)
			}
			c.Extra[k] = v
		}
	}
}

func asInt(v any) int {
	if f, ok := v.(float64); ok {
		return int(f)
	}
	return 0
}

// String formats the chunk for a language model: source first, then the
// content, then the remaining metadata.
func (c Chunk) String() string {
	var sb strings.Builder
	source := c.Source
	if source == "" {
		source = "unknown"
	}
	fmt.Fprintf(&sb, "[Source]: %s\n", source)
	if c.Title != "" {
		fmt.Fprintf(&sb, "[Title]: %s\n", c.Title)
	}
	fmt.Fprintf(&sb, "[Content]: %s", c.Content)
	if c.Seed != "" {
		fmt.Fprintf(&sb, "\n[Research question]: %s", c.Seed)
	}
	if c.Score > 0 {
		fmt.Fprintf(&sb, "\n[Relevance]: %.1f", c.Score)
	}
	return sb.String()
}
