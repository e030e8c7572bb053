package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is the process configuration assembled from flags and environment.
type Profile struct {
	// Unified LLM configuration (OpenAI-compatible protocol).
	// All providers (openai, deepseek, siliconflow, ollama, zai) use the same config.
	LLMProvider string // Provider identifier
	LLMAPIKey   string
	LLMBaseURL  string // Optional, has a default per provider
	LLMModel    string
	LLMTimeout  int // Request timeout in seconds (default: 120)

	// Embedding configuration
	EmbeddingProvider   string
	EmbeddingModel      string
	EmbeddingAPIKey     string
	EmbeddingBaseURL    string
	EmbeddingDimensions int
	EmbeddingTimeout    int // Request timeout in seconds (default: 30)

	// Classroom data
	LibraryDir string // Directory with activity library JSON files
	RosterPath string // JSON file with the classroom roster

	// Optional retrieval tuning file (YAML boost/synonym tables)
	RetrievalConfigPath string

	// Storage
	Mode    string
	Data    string // Data directory (cache db, saved activities)
	Driver  string // sqlite | postgres
	DSN     string
	Version string
}

// Provider default configurations for the LLM.
// Used when the base URL is not explicitly set.
var llmProviderDefaults = map[string]struct {
	BaseURL string
	Model   string
}{
	"openai": {
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o-mini",
	},
	"deepseek": {
		BaseURL: "https://api.deepseek.com",
		Model:   "deepseek-chat",
	},
	"siliconflow": {
		BaseURL: "https://api.siliconflow.cn/v1",
		Model:   "Qwen/Qwen2.5-72B-Instruct",
	},
	"zai": {
		BaseURL: "https://open.bigmodel.cn/api/paas/v4",
		Model:   "glm-4.7",
	},
	"ollama": {
		BaseURL: "http://localhost:11434/v1",
		Model:   "llama3.1",
	},
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if a generation provider key is configured.
// Without it the tool can still search the library and build groupings.
func (p *Profile) IsAIEnabled() bool {
	return p.LLMAPIKey != "" || p.LLMProvider == "ollama"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from IA4EDU_* environment variables.
func (p *Profile) FromEnv() {
	p.LLMProvider = getEnvOrDefault("IA4EDU_LLM_PROVIDER", "openai")
	p.LLMAPIKey = getEnvOrDefault("IA4EDU_LLM_API_KEY", os.Getenv("OPENAI_API_KEY"))
	p.LLMBaseURL = getEnvOrDefault("IA4EDU_LLM_BASE_URL", "")
	p.LLMModel = getEnvOrDefault("IA4EDU_LLM_MODEL", "")
	p.LLMTimeout = getEnvOrDefaultInt("IA4EDU_LLM_TIMEOUT_SECONDS", 120)

	if _, ok := llmProviderDefaults[p.LLMProvider]; !ok {
		slog.Warn("unknown LLM provider, using default: openai", "provider", p.LLMProvider)
		p.LLMProvider = "openai"
	}
	if defaults, ok := llmProviderDefaults[p.LLMProvider]; ok {
		if p.LLMBaseURL == "" {
			p.LLMBaseURL = defaults.BaseURL
		}
		if p.LLMModel == "" {
			p.LLMModel = defaults.Model
		}
	}

	p.EmbeddingProvider = getEnvOrDefault("IA4EDU_EMBEDDING_PROVIDER", "siliconflow")
	p.EmbeddingModel = getEnvOrDefault("IA4EDU_EMBEDDING_MODEL", "BAAI/bge-m3")
	p.EmbeddingAPIKey = getEnvOrDefault("IA4EDU_EMBEDDING_API_KEY", p.LLMAPIKey)
	p.EmbeddingBaseURL = getEnvOrDefault("IA4EDU_EMBEDDING_BASE_URL", "https://api.siliconflow.cn/v1")
	p.EmbeddingDimensions = getEnvOrDefaultInt("IA4EDU_EMBEDDING_DIMENSIONS", 1024)
	p.EmbeddingTimeout = getEnvOrDefaultInt("IA4EDU_EMBEDDING_TIMEOUT_SECONDS", 30)

	if p.LibraryDir == "" {
		p.LibraryDir = getEnvOrDefault("IA4EDU_LIBRARY_DIR", "")
	}
	if p.RosterPath == "" {
		p.RosterPath = getEnvOrDefault("IA4EDU_ROSTER_PATH", "")
	}
	if p.RetrievalConfigPath == "" {
		p.RetrievalConfigPath = getEnvOrDefault("IA4EDU_RETRIEVAL_CONFIG", "")
	}
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if a relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		absDir, err := filepath.Abs(dataDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "dev"
	}

	if p.Data == "" {
		p.Data = "."
	}
	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", p.Data), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir

	switch p.Driver {
	case "", "sqlite":
		p.Driver = "sqlite"
		if p.DSN == "" {
			p.DSN = filepath.Join(dataDir, fmt.Sprintf("ia4edu_%s.db", p.Mode))
		}
	case "postgres":
		if p.DSN == "" {
			return errors.New("dsn required for postgres driver")
		}
	default:
		return errors.Errorf("unsupported database driver %q", p.Driver)
	}

	if p.LibraryDir != "" {
		if _, err := os.Stat(p.LibraryDir); err != nil {
			return errors.Wrapf(err, "unable to access activity library %s", p.LibraryDir)
		}
	}
	if p.RosterPath != "" {
		if _, err := os.Stat(p.RosterPath); err != nil {
			return errors.Wrapf(err, "unable to access roster file %s", p.RosterPath)
		}
	}

	return nil
}
