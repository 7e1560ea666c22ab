package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	RAG      RAGConfig      `yaml:"rag"`
	EmbedLLM LLMConfig      `yaml:"embed_llm"`
	LLM      LLMConfig      `yaml:"llm"`
	Index    IndexConfig    `yaml:"index"`
	Database DatabaseConfig `yaml:"database"`
}

type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
	MaxUploadMB int64    `yaml:"max_upload_mb"`
	TimeoutSecs int      `yaml:"timeout_secs"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type RAGConfig struct {
	ChunkSize         int  `yaml:"chunk_size"`
	ChunkOverlap      int  `yaml:"chunk_overlap"`
	TopK              int  `yaml:"top_k"`
	MaxDocuments      int  `yaml:"max_documents"`
	ExtractWorkers    int  `yaml:"extract_workers"`
	CrawlLinks        bool `yaml:"crawl_links"`
	RejectErrorMarker bool `yaml:"reject_error_marker"`
	SummarySentences  int  `yaml:"summary_sentences"`
}

// LLMConfig configures either the embedding or the generation provider.
type LLMConfig struct {
	Provider  string `yaml:"provider"`
	BaseURL   string `yaml:"base_url"`
	Key       string `yaml:"key"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
}

type IndexConfig struct {
	Backend    string `yaml:"backend"`
	Collection string `yaml:"collection"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
}

const (
	defaultAddr           = ":8000"
	defaultChunkSize      = 1000
	defaultChunkOverlap   = 200
	defaultTopK           = 3
	defaultMaxDocuments   = 10
	defaultExtractWorkers = 4
	defaultSummary        = 5
	defaultDimension      = 384
)

// LoadConfig reads the yaml file at path. A missing file yields the defaults.
// Values from the environment (and a .env file, if present) override the file.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a config with every default applied and no file or env input.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyEnv(cfg *Config) {
	cfg.Server.Addr = getEnv("DOCQA_ADDR", cfg.Server.Addr)
	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	cfg.RAG.MaxDocuments = getEnvInt("DOCQA_MAX_DOCUMENTS", cfg.RAG.MaxDocuments)

	for _, c := range []*LLMConfig{&cfg.EmbedLLM, &cfg.LLM} {
		if c.Key != "" {
			continue
		}
		switch c.Provider {
		case "openai":
			c.Key = getEnv("OPENAI_API_KEY", "")
		case "gemini":
			c.Key = getEnv("GEMINI_API_KEY", "")
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultAddr
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 32
	}
	if cfg.Server.TimeoutSecs == 0 {
		cfg.Server.TimeoutSecs = 120
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	if cfg.RAG.ChunkSize <= 0 {
		cfg.RAG.ChunkSize = defaultChunkSize
	}
	if cfg.RAG.ChunkOverlap < 0 || cfg.RAG.ChunkOverlap >= cfg.RAG.ChunkSize {
		cfg.RAG.ChunkOverlap = defaultChunkOverlap
		if cfg.RAG.ChunkOverlap >= cfg.RAG.ChunkSize {
			cfg.RAG.ChunkOverlap = cfg.RAG.ChunkSize / 5
		}
	}
	if cfg.RAG.TopK <= 0 {
		cfg.RAG.TopK = defaultTopK
	}
	if cfg.RAG.MaxDocuments <= 0 {
		cfg.RAG.MaxDocuments = defaultMaxDocuments
	}
	if cfg.RAG.ExtractWorkers <= 0 {
		cfg.RAG.ExtractWorkers = defaultExtractWorkers
	}
	if cfg.RAG.SummarySentences <= 0 {
		cfg.RAG.SummarySentences = defaultSummary
	}

	if cfg.EmbedLLM.Provider == "" {
		cfg.EmbedLLM.Provider = "hashing"
	}
	if cfg.EmbedLLM.Dimension <= 0 {
		cfg.EmbedLLM.Dimension = defaultDimension
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "extractive"
	}
	if cfg.Index.Backend == "" {
		cfg.Index.Backend = "memory"
	}
	if cfg.Index.Collection == "" {
		cfg.Index.Collection = "documents"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "pgdriver"
	}
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
