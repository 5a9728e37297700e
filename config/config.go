// Package config provides unified configuration for memflow: defaults,
// YAML file loading, and environment variable overrides.
//
// Precedence: defaults, then the YAML file, then MEMFLOW_* environment
// variables.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the complete memflow configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" env:"SERVER"`
	LLM      LLMConfig      `yaml:"llm" env:"LLM"`
	Pipeline PipelineConfig `yaml:"pipeline" env:"PIPELINE"`
	Sources  SourcesConfig  `yaml:"sources" env:"SOURCES"`
	Log      LogConfig      `yaml:"log" env:"LOG"`
}

// ServerConfig holds the HTTP serving settings.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// LLMConfig holds the language model collaborator settings.
type LLMConfig struct {
	APIKey     string        `yaml:"api_key" env:"API_KEY"`
	BaseURL    string        `yaml:"base_url" env:"BASE_URL"`
	Model      string        `yaml:"model" env:"MODEL"`
	EmbedModel string        `yaml:"embed_model" env:"EMBED_MODEL"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// Encoding names the tiktoken encoding used for prompt budgets.
	Encoding string `yaml:"encoding" env:"ENCODING"`
}

// PipelineConfig holds the per-stage pipeline settings.
type PipelineConfig struct {
	Filter    FilterConfig    `yaml:"filter" env:"FILTER"`
	Retriever RetrieverConfig `yaml:"retriever" env:"RETRIEVER"`
	Refiner   RefinerConfig   `yaml:"refiner" env:"REFINER"`

	SourceLimit    int  `yaml:"source_limit" env:"SOURCE_LIMIT"`
	GenerateReport bool `yaml:"generate_report" env:"GENERATE_REPORT"`
}

// FilterConfig holds the document quality filter settings.
type FilterConfig struct {
	MinContentLength int `yaml:"min_content_length" env:"MIN_CONTENT_LENGTH"`
	ShortPageLength  int `yaml:"short_page_length" env:"SHORT_PAGE_LENGTH"`
}

// RetrieverConfig holds the result fusion settings.
type RetrieverConfig struct {
	SimilarityFloor float64 `yaml:"similarity_floor" env:"SIMILARITY_FLOOR"`
	MaxResults      int     `yaml:"max_results" env:"MAX_RESULTS"`
	MaxConcurrency  int     `yaml:"max_concurrency" env:"MAX_CONCURRENCY"`
}

// RefinerConfig holds the final relevance pass settings.
type RefinerConfig struct {
	Enabled          bool `yaml:"enabled" env:"ENABLED"`
	TriggerThreshold int  `yaml:"trigger_threshold" env:"TRIGGER_THRESHOLD"`
	MaxCandidates    int  `yaml:"max_candidates" env:"MAX_CANDIDATES"`
	SnippetTokens    int  `yaml:"snippet_tokens" env:"SNIPPET_TOKENS"`
}

// SourcesConfig holds the data source connector settings.
type SourcesConfig struct {
	DocStore DocStoreConfig `yaml:"docstore" env:"DOCSTORE"`
	History  HistoryConfig  `yaml:"history" env:"HISTORY"`
	WebFetch WebFetchConfig `yaml:"webfetch" env:"WEBFETCH"`
	OCR      OCRConfig      `yaml:"ocr" env:"OCR"`
}

// DocStoreConfig holds the document store connector settings.
type DocStoreConfig struct {
	Enabled         bool          `yaml:"enabled" env:"ENABLED"`
	BaseURL         string        `yaml:"base_url" env:"BASE_URL"`
	APIKey          string        `yaml:"api_key" env:"API_KEY"`
	Timeout         time.Duration `yaml:"timeout" env:"TIMEOUT"`
	ExcludedFolders []string      `yaml:"excluded_folders" env:"EXCLUDED_FOLDERS"`
}

// HistoryConfig holds the browsing history connector settings.
type HistoryConfig struct {
	Enabled     bool   `yaml:"enabled" env:"ENABLED"`
	DBPath      string `yaml:"db_path" env:"DB_PATH"`
	RecencyDays int    `yaml:"recency_days" env:"RECENCY_DAYS"`
	MaxResults  int    `yaml:"max_results" env:"MAX_RESULTS"`
}

// OCRConfig holds the OCR document connector settings.
type OCRConfig struct {
	Enabled bool          `yaml:"enabled" env:"ENABLED"`
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	APIKey  string        `yaml:"api_key" env:"API_KEY"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// WebFetchConfig holds the web page fetcher settings.
type WebFetchConfig struct {
	Enabled        bool          `yaml:"enabled" env:"ENABLED"`
	Timeout        time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxConcurrent  int           `yaml:"max_concurrent" env:"MAX_CONCURRENT"`
	RequestsPerSec float64       `yaml:"requests_per_sec" env:"REQUESTS_PER_SEC"`
	MaxContentLen  int           `yaml:"max_content_len" env:"MAX_CONTENT_LEN"`
}

// LogConfig holds the logging settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json, console
	Format string `yaml:"format" env:"FORMAT"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			MetricsPort:     9091,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
		},
		LLM: LLMConfig{
			BaseURL:    "https://generativelanguage.googleapis.com",
			Model:      "gemini-2.0-flash",
			EmbedModel: "text-embedding-004",
			Timeout:    60 * time.Second,
			Encoding:   "cl100k_base",
		},
		Pipeline: PipelineConfig{
			Filter: FilterConfig{
				MinContentLength: 100,
				ShortPageLength:  1000,
			},
			Retriever: RetrieverConfig{
				SimilarityFloor: 0.3,
				MaxResults:      20,
				MaxConcurrency:  4,
			},
			Refiner: RefinerConfig{
				Enabled:          true,
				TriggerThreshold: 10,
				MaxCandidates:    20,
				SnippetTokens:    120,
			},
			SourceLimit:    50,
			GenerateReport: true,
		},
		Sources: SourcesConfig{
			DocStore: DocStoreConfig{
				Timeout: 30 * time.Second,
			},
			History: HistoryConfig{
				RecencyDays: 30,
				MaxResults:  50,
			},
			WebFetch: WebFetchConfig{
				Timeout:        15 * time.Second,
				MaxConcurrent:  3,
				RequestsPerSec: 2,
				MaxContentLen:  50_000,
			},
			OCR: OCRConfig{
				Timeout: 60 * time.Second,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	if c.Pipeline.Retriever.SimilarityFloor < 0 || c.Pipeline.Retriever.SimilarityFloor > 1 {
		errs = append(errs, "similarity_floor must be in [0, 1]")
	}
	if c.Pipeline.Retriever.MaxConcurrency < 0 {
		errs = append(errs, "max_concurrency must not be negative")
	}
	if c.Sources.DocStore.Enabled && c.Sources.DocStore.BaseURL == "" {
		errs = append(errs, "docstore enabled without base_url")
	}
	if c.Sources.History.Enabled && c.Sources.History.DBPath == "" {
		errs = append(errs, "history enabled without db_path")
	}
	if c.Sources.OCR.Enabled && c.Sources.OCR.BaseURL == "" {
		errs = append(errs, "ocr enabled without base_url")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("unknown log level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("unknown log format %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
