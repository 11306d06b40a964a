package llm

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/huggingface"
	"github.com/tmc/langchaingo/llms/mistral"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/xhad/pdfalt/internal/logger"
	"github.com/xhad/pdfalt/internal/models"
	"github.com/xhad/pdfalt/pkg/prompt"
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("empty response from LLM")

// DescriberConfig represents the configuration for a description generator.
type DescriberConfig struct {
	Provider        string
	Model           string
	BaseURL         string
	APIKey          string
	Temperature     float64
	MaxTokens       int
	MaxContextChars int
	// ImageDir prefixes image names in prompts, e.g. "extracted_images".
	ImageDir string
}

// Describer generates image descriptions with an LLM.
type Describer struct {
	config  DescriberConfig
	llm     llms.Model
	prompts prompt.Builder
}

// NewWithConfig creates a Describer backed by the configured provider.
func NewWithConfig(config DescriberConfig) (*Describer, error) {
	if config.Provider == "" {
		config.Provider = "ollama"
	}
	if config.Model == "" {
		config.Model = "mistral" // Default Ollama model
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 100
	}

	model, err := NewModel(config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}
	return NewWithModel(config, model), nil
}

// NewWithModel wraps an already constructed model.
func NewWithModel(config DescriberConfig, model llms.Model) *Describer {
	return &Describer{
		config:  config,
		llm:     model,
		prompts: prompt.NewWithConfig(prompt.BuilderConfig{MaxContextChars: config.MaxContextChars}),
	}
}

// NewModel creates the langchaingo model for config.Provider.
func NewModel(config DescriberConfig) (llms.Model, error) {
	log := logger.WithFields(logrus.Fields{
		"provider": config.Provider,
		"model":    config.Model,
	})
	log.Debug("Creating LLM client")

	switch strings.ToLower(config.Provider) {
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(config.Model)}
		if config.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(config.BaseURL))
		}
		return ollama.New(opts...)
	case "openai":
		if config.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key is not set")
		}
		opts := []openai.Option{
			openai.WithModel(config.Model),
			openai.WithToken(config.APIKey),
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		return openai.New(opts...)
	case "mistral":
		if config.APIKey == "" {
			return nil, fmt.Errorf("Mistral API key is not set")
		}
		return mistral.New(
			mistral.WithModel(config.Model),
			mistral.WithAPIKey(config.APIKey),
		)
	case "anthropic":
		if config.APIKey == "" {
			return nil, fmt.Errorf("Anthropic API key is not set")
		}
		return anthropic.New(
			anthropic.WithModel(config.Model),
			anthropic.WithToken(config.APIKey),
		)
	case "huggingface":
		if config.APIKey == "" {
			return nil, fmt.Errorf("HuggingFace API token is not set")
		}
		return huggingface.New(
			huggingface.WithModel(config.Model),
			huggingface.WithToken(config.APIKey),
		)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", config.Provider)
	}
}

// Generate returns the model's description for one image. The raw model
// output is returned; echoed prompts are stripped by the caller.
func (d *Describer) Generate(ctx context.Context, record models.ContextRecord) (string, error) {
	imagePath := record.ImageName
	if d.config.ImageDir != "" {
		imagePath = path.Join(d.config.ImageDir, record.ImageName)
	}

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, d.prompts.Build(record, imagePath)),
	}

	response, err := d.llm.GenerateContent(ctx, content,
		llms.WithMaxTokens(d.config.MaxTokens),
		llms.WithTemperature(d.config.Temperature),
	)
	if err != nil {
		return "", fmt.Errorf("generate error: %w", err)
	}

	if response == nil || len(response.Choices) == 0 || response.Choices[0] == nil {
		return "", ErrEmptyResponse
	}
	text := response.Choices[0].Content
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}

	logger.WithFields(logrus.Fields{"image": record.ImageName}).Debug("Generated description")
	return text, nil
}
