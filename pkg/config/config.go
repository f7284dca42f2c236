package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mikeboe/deep-research/pkg/research"
)

const (
	ProviderExa   = "exa"
	ProviderArxiv = "arxiv"

	LLMGoogle    = "google"
	LLMAnthropic = "anthropic"
)

type Config struct {
	GoogleApiKey   string `yaml:"-"`
	ExaApiKey      string `yaml:"-"`
	MistralApiKey  string `yaml:"-"`
	AnthropicKey   string `yaml:"-"`
	DatabaseURL    string `yaml:"-"`
	LLMProvider    string `yaml:"llm_provider"`
	ReasoningModel string `yaml:"reasoning_model"`
	FastModel      string `yaml:"fast_model"`
	Port           string `yaml:"port"`
	ChunkSize      int    `yaml:"chunk_size"`
	ChunkOverlap   int    `yaml:"chunk_overlap"`
	EmbeddingModel string `yaml:"embedding_model"`
	CollectionName string `yaml:"collection_name"`

	SearchProvider       string        `yaml:"search_provider"`
	MaxQueries           int           `yaml:"max_queries_per_iteration"`
	MaxURLsPerQuery      int           `yaml:"max_urls_per_query"`
	MinRelevance         float64       `yaml:"min_relevance_score"`
	MinConfidence        float64       `yaml:"min_confidence_score"`
	MaxIterations        int           `yaml:"max_research_iterations"`
	CallTimeout          time.Duration `yaml:"call_timeout"`
	MaxRetries           int           `yaml:"max_retries"`
	MaxConcurrency       int           `yaml:"max_concurrency"`
	ContentSnippetLength int           `yaml:"content_snippet_length"`
	SearchCacheTTL       time.Duration `yaml:"search_cache_ttl"`
	GapsForceContinue    bool          `yaml:"gaps_force_continue"`
}

// Load reads configuration from the environment, after loading a .env file
// if one exists.
func Load() *Config {
	// A missing .env is fine as long as the variables are set.
	_ = godotenv.Load()

	return &Config{
		GoogleApiKey:   getEnv("GOOGLE_API_KEY", ""),
		ExaApiKey:      getEnv("EXA_API_KEY", ""),
		MistralApiKey:  getEnv("MISTRAL_API_KEY", ""),
		AnthropicKey:   getEnv("ANTHROPIC_API_KEY", ""),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		LLMProvider:    strings.ToLower(getEnv("LLM_PROVIDER", LLMGoogle)),
		ReasoningModel: getEnv("REASONING_MODEL", "gemini-3-pro-preview"),
		FastModel:      getEnv("FAST_MODEL", "gemini-3-flash-preview"),
		Port:           getEnv("PORT", "8081"),
		ChunkSize:      getEnvAsInt("CHUNK_SIZE", 1000),
		ChunkOverlap:   getEnvAsInt("CHUNK_OVERLAP", 200),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "gemini-embedding-001"),
		CollectionName: getEnv("COLLECTION_NAME", "research_findings"),

		SearchProvider:       strings.ToLower(getEnv("SEARCH_PROVIDER", ProviderExa)),
		MaxQueries:           getEnvAsInt("MAX_QUERIES_PER_ITERATION", 3),
		MaxURLsPerQuery:      getEnvAsInt("MAX_URLS_PER_QUERY", 20),
		MinRelevance:         getEnvAsFloat("MIN_RELEVANCE_SCORE", 6),
		MinConfidence:        getEnvAsFloat("MIN_CONFIDENCE_SCORE", 7),
		MaxIterations:        getEnvAsInt("MAX_RESEARCH_ITERATIONS", 3),
		CallTimeout:          getEnvAsDuration("CALL_TIMEOUT", 60*time.Second),
		MaxRetries:           getEnvAsInt("MAX_RETRIES", 3),
		MaxConcurrency:       getEnvAsInt("MAX_CONCURRENCY", 0),
		ContentSnippetLength: getEnvAsInt("CONTENT_SNIPPET_LENGTH", 2000),
		SearchCacheTTL:       getEnvAsDuration("SEARCH_CACHE_TTL", 30*time.Minute),
		GapsForceContinue:    getEnvAsBool("GAPS_FORCE_CONTINUE", false),
	}
}

// Research builds the engine configuration.
func (c *Config) Research() (research.Config, error) {
	rc := research.DefaultConfig()
	rc.MaxQueries = c.MaxQueries
	rc.MaxResultsPerQuery = c.MaxURLsPerQuery
	rc.MinRelevance = c.MinRelevance
	rc.MinConfidence = c.MinConfidence
	rc.MaxIterations = c.MaxIterations
	rc.CallTimeout = c.CallTimeout
	rc.Retry.MaxAttempts = c.MaxRetries
	rc.MaxConcurrency = c.MaxConcurrency
	rc.GapsForceContinue = c.GapsForceContinue

	if err := rc.Validate(); err != nil {
		return research.Config{}, err
	}
	return rc, nil
}

// MissingKeys lists the credentials the selected providers need but lack.
func (c *Config) MissingKeys() []string {
	var missing []string
	switch c.LLMProvider {
	case LLMAnthropic:
		if c.AnthropicKey == "" {
			missing = append(missing, "ANTHROPIC_API_KEY")
		}
	default:
		if c.GoogleApiKey == "" {
			missing = append(missing, "GOOGLE_API_KEY")
		}
	}
	if c.SearchProvider == ProviderExa && c.ExaApiKey == "" {
		missing = append(missing, "EXA_API_KEY")
	}
	return missing
}

// RequireKeys fails when MissingKeys is not empty.
func (c *Config) RequireKeys() error {
	if missing := c.MissingKeys(); len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
