package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xhad/recall/internal/models"
)

type SeedConfig struct {
	URL      string `yaml:"url"`
	Strategy string `yaml:"strategy"`
	Limit    int    `yaml:"limit"`
}

type Config struct {
	Crawler struct {
		BaseURL      string        `yaml:"base_url"`
		RateLimit    float64       `yaml:"rate_limit"`
		MaxRetries   int           `yaml:"max_retries"`
		Timeout      time.Duration `yaml:"timeout"`
		PollInterval time.Duration `yaml:"poll_interval"`
		MaxPolls     int           `yaml:"max_polls"`
		CrawlTimeout time.Duration `yaml:"crawl_timeout"`
		CrawlLimit   int           `yaml:"crawl_limit"`
	} `yaml:"crawler"`

	Store struct {
		Backend    string `yaml:"backend"`
		URL        string `yaml:"url"`
		APIKey     string `yaml:"api_key"`
		Collection string `yaml:"collection"`
		Metric     string `yaml:"metric"`
		BatchSize  int    `yaml:"batch_size"`
		// DatabaseURL is only used by the pgvector backend.
		DatabaseURL string `yaml:"database_url"`
	} `yaml:"store"`

	Models struct {
		BaseURL         string `yaml:"base_url"`
		EmbeddingModel  string `yaml:"embedding_model"`
		VectorDim       int    `yaml:"vector_dim"`
		SummaryModel    string `yaml:"summary_model"`
		MaxInputChars   int    `yaml:"max_input_chars"`
		MinLength       int    `yaml:"min_length"`
		MaxLength       int    `yaml:"max_length"`
		MaxSummaryChars int    `yaml:"max_summary_chars"`
	} `yaml:"models"`

	Pipeline struct {
		Workers int `yaml:"workers"`
	} `yaml:"pipeline"`

	Query struct {
		TopK          int    `yaml:"top_k"`
		SummaryPrefix int    `yaml:"summary_prefix"`
		DefaultQuery  string `yaml:"default_query"`
	} `yaml:"query"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Seeds []SeedConfig `yaml:"seeds"`
}

// DefaultSeeds is used when the configuration lists no seeds.
var DefaultSeeds = []SeedConfig{
	{URL: "https://engineering.mercari.com/blog/entry/20250612-d2c354901d/"},
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/recall/config.yaml"),
			"/etc/recall/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.Crawler.BaseURL == "" {
		config.Crawler.BaseURL = "http://localhost:3002"
	}
	if config.Crawler.RateLimit == 0 {
		config.Crawler.RateLimit = 2.0
	}
	if config.Crawler.MaxRetries == 0 {
		config.Crawler.MaxRetries = 3
	}
	if config.Crawler.Timeout == 0 {
		config.Crawler.Timeout = 60 * time.Second
	}
	if config.Crawler.PollInterval == 0 {
		config.Crawler.PollInterval = 2 * time.Second
	}
	if config.Crawler.MaxPolls == 0 {
		config.Crawler.MaxPolls = 150
	}
	if config.Crawler.CrawlTimeout == 0 {
		config.Crawler.CrawlTimeout = 5 * time.Minute
	}
	if config.Crawler.CrawlLimit == 0 {
		config.Crawler.CrawlLimit = 10
	}

	if config.Store.Backend == "" {
		config.Store.Backend = "qdrant"
	}
	if config.Store.URL == "" {
		config.Store.URL = "http://localhost:6333"
	}
	if config.Store.Collection == "" {
		config.Store.Collection = "research"
	}
	if config.Store.Metric == "" {
		config.Store.Metric = string(models.MetricCosine)
	}
	if config.Store.BatchSize == 0 {
		config.Store.BatchSize = 100
	}

	if config.Models.BaseURL == "" {
		config.Models.BaseURL = "http://localhost:11434"
	}
	if config.Models.EmbeddingModel == "" {
		config.Models.EmbeddingModel = "all-minilm:l6-v2"
	}
	if config.Models.VectorDim == 0 {
		config.Models.VectorDim = 384
	}
	if config.Models.SummaryModel == "" {
		config.Models.SummaryModel = "qwen2.5:1.5b"
	}
	if config.Models.MaxInputChars == 0 {
		config.Models.MaxInputChars = 3000
	}
	if config.Models.MinLength == 0 {
		config.Models.MinLength = 60
	}
	if config.Models.MaxLength == 0 {
		config.Models.MaxLength = 180
	}
	if config.Models.MaxSummaryChars == 0 {
		config.Models.MaxSummaryChars = 4 * config.Models.MaxLength
	}

	if config.Pipeline.Workers == 0 {
		config.Pipeline.Workers = 4
	}

	if config.Query.TopK == 0 {
		config.Query.TopK = 5
	}
	if config.Query.SummaryPrefix == 0 {
		config.Query.SummaryPrefix = 200
	}
	if config.Query.DefaultQuery == "" {
		config.Query.DefaultQuery = "最新のTransformerの学習安定化手法"
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}

	if len(config.Seeds) == 0 {
		config.Seeds = append([]SeedConfig(nil), DefaultSeeds...)
	}
}

func mergeWithEnv(config *Config) {
	if v := os.Getenv("FIRECRAWL_URL"); v != "" {
		config.Crawler.BaseURL = v
	}
	if v := os.Getenv("QDRANT_URL"); v != "" {
		config.Store.URL = v
	}
	if v := os.Getenv("QDRANT_COLLECTION"); v != "" {
		config.Store.Collection = v
	}
	if v := os.Getenv("QDRANT_API_KEY"); v != "" {
		config.Store.APIKey = v
	}
	if v := os.Getenv("VECTOR_BACKEND"); v != "" {
		config.Store.Backend = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		config.Store.DatabaseURL = v
	}
	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" {
		config.Models.BaseURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.Log.Level = v
	}
}

// ResolveSeeds turns the configured seed list into seeds. An empty strategy is
// inferred from the URL shape.
func (c *Config) ResolveSeeds() []models.Seed {
	seeds := make([]models.Seed, 0, len(c.Seeds))
	for _, s := range c.Seeds {
		strategy, ok := models.ParseStrategy(s.Strategy)
		if !ok {
			strategy = ResolveStrategy(s.URL)
		}
		limit := s.Limit
		if limit == 0 {
			limit = c.Crawler.CrawlLimit
		}
		seeds = append(seeds, models.Seed{URL: s.URL, Strategy: strategy, Limit: limit})
	}
	return seeds
}

// ResolveStrategy picks CRAWL for listing pages and SCRAPE for everything else.
func ResolveStrategy(url string) models.Strategy {
	if strings.HasSuffix(url, "/recent") || strings.Contains(url, "list/") {
		return models.StrategyCrawl
	}
	return models.StrategyScrape
}

func (c *Config) Collection() models.Collection {
	metric, _ := models.ParseMetric(c.Store.Metric)
	return models.Collection{
		Name:      c.Store.Collection,
		Dimension: c.Models.VectorDim,
		Metric:    metric,
	}
}
