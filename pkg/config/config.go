package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xhad/pdfalt/pkg/layout"
	"github.com/xhad/pdfalt/pkg/metadata"
)

type Config struct {
	LLM struct {
		Provider        string        `yaml:"provider"`
		BaseURL         string        `yaml:"base_url"`
		Model           string        `yaml:"model"`
		APIKey          string        `yaml:"api_key"`
		MaxTokens       int           `yaml:"max_tokens"`
		Temperature     float64       `yaml:"temperature"`
		Timeout         time.Duration `yaml:"timeout"`
		Workers         int           `yaml:"workers"`
		RateLimit       float64       `yaml:"rate_limit"`
		MaxContextChars int           `yaml:"max_context_chars"`
		EmbeddingModel  string        `yaml:"embedding_model"`
	} `yaml:"llm"`

	Context struct {
		TitleThreshold float64 `yaml:"title_threshold"`
	} `yaml:"context"`

	Accessibility struct {
		AltTextKey string               `yaml:"alt_text_key"`
		Assertions []metadata.Assertion `yaml:"assertions"`
	} `yaml:"accessibility"`

	Images struct {
		Sink  string `yaml:"sink"`
		Dir   string `yaml:"dir"`
		Azure struct {
			AccountName string `yaml:"account_name"`
			AccountKey  string `yaml:"account_key"`
			Container   string `yaml:"container"`
		} `yaml:"azure"`
	} `yaml:"images"`

	Database struct {
		URL       string `yaml:"url"`
		TableName string `yaml:"table_name"`
		VectorDim int    `yaml:"vector_dim"`
		BatchSize int    `yaml:"batch_size"`
	} `yaml:"database"`

	UI struct {
		Progress bool `yaml:"progress"`
		NoColor  bool `yaml:"no_color"`
	} `yaml:"ui"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"pdfalt.yaml",
			"pdfalt.yml",
			filepath.Join(os.Getenv("HOME"), ".config/pdfalt/config.yaml"),
			"/etc/pdfalt/config.yaml",
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
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	config := newConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	mergeWithEnv(config)
	applyDefaults(config)

	return config, nil
}

// newConfig presets the defaults whose zero value is a valid setting, so a
// file can still set them to false or 0.
func newConfig() *Config {
	config := &Config{}
	config.UI.Progress = true
	config.LLM.Temperature = 0.5
	return config
}

func getDefaultConfig() (*Config, error) {
	config := newConfig()
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Provider == "" {
		config.LLM.Provider = "ollama"
	}
	if config.LLM.Model == "" {
		config.LLM.Model = defaultModel(config.LLM.Provider)
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 100
	}
	if config.LLM.BaseURL == "" && config.LLM.Provider == "ollama" {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if config.LLM.Timeout == 0 {
		config.LLM.Timeout = 60 * time.Second
	}
	if config.LLM.Workers == 0 {
		config.LLM.Workers = 1
	}
	if config.LLM.MaxContextChars == 0 {
		config.LLM.MaxContextChars = 2000
	}
	if config.LLM.EmbeddingModel == "" {
		config.LLM.EmbeddingModel = "nomic-embed-text:latest"
	}

	if config.Context.TitleThreshold == 0 {
		config.Context.TitleThreshold = layout.DefaultTitleThreshold
	}

	if config.Accessibility.AltTextKey == "" {
		config.Accessibility.AltTextKey = metadata.AltTextKey
	}
	if config.Accessibility.Assertions == nil {
		config.Accessibility.Assertions = metadata.DefaultAssertions()
	}

	if config.Images.Sink == "" {
		config.Images.Sink = "dir"
	}
	if config.Images.Dir == "" {
		config.Images.Dir = "extracted_images"
	}

	if config.Database.TableName == "" {
		config.Database.TableName = "image_descriptions"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 768
	}
	if config.Database.BatchSize == 0 {
		config.Database.BatchSize = 100
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}
}

func defaultModel(provider string) string {
	switch provider {
	case "openai":
		return "gpt-4o-mini"
	case "mistral":
		return "mistral-small-latest"
	case "anthropic":
		return "claude-3-5-haiku-latest"
	case "huggingface":
		return "mistralai/Mistral-7B-Instruct-v0.2"
	default:
		return "mistral"
	}
}

func mergeWithEnv(config *Config) {
	if provider := os.Getenv("PDFALT_LLM_PROVIDER"); provider != "" {
		config.LLM.Provider = provider
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" && (config.LLM.Provider == "" || config.LLM.Provider == "ollama") {
		config.LLM.BaseURL = baseURL
	}
	if config.LLM.APIKey == "" {
		config.LLM.APIKey = apiKeyFromEnv(config.LLM.Provider)
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if level := os.Getenv("PDFALT_LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}
	if os.Getenv("AZURE_STORAGE_ACCOUNT") != "" && config.Images.Azure.AccountName == "" {
		config.Images.Azure.AccountName = os.Getenv("AZURE_STORAGE_ACCOUNT")
		config.Images.Azure.AccountKey = os.Getenv("AZURE_STORAGE_KEY")
	}
}

func apiKeyFromEnv(provider string) string {
	switch provider {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "mistral":
		return os.Getenv("MISTRAL_API_KEY")
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "huggingface":
		return os.Getenv("HUGGINGFACEHUB_API_TOKEN")
	}
	return ""
}
