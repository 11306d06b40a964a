package config

import (
	"fmt"
	"net/url"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var providers = []string{"ollama", "openai", "mistral", "anthropic", "huggingface"}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate LLM config
	if !contains(providers, c.LLM.Provider) {
		errors = append(errors, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("provider must be one of %s", strings.Join(providers, ", ")),
		})
	}

	if c.LLM.Provider == "ollama" && c.LLM.BaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "Ollama base URL is required",
		})
	}

	if c.LLM.BaseURL != "" {
		if u, err := url.Parse(c.LLM.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, ValidationError{
				Field:   "llm.base_url",
				Message: "invalid base URL",
			})
		}
	}

	if c.LLM.Provider != "ollama" && c.LLM.APIKey == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.api_key",
			Message: fmt.Sprintf("API key is required for provider %s", c.LLM.Provider),
		})
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 4096 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 4096",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if c.LLM.Timeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "llm.timeout",
			Message: "timeout cannot be negative",
		})
	}

	if c.LLM.Workers < 1 {
		errors = append(errors, ValidationError{
			Field:   "llm.workers",
			Message: "workers must be positive",
		})
	}

	if c.LLM.RateLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "llm.rate_limit",
			Message: "rate_limit cannot be negative",
		})
	}

	// Validate context config
	if c.Context.TitleThreshold <= 0 {
		errors = append(errors, ValidationError{
			Field:   "context.title_threshold",
			Message: "title_threshold must be positive",
		})
	}

	// Validate accessibility assertions
	seen := make(map[string]bool)
	for _, a := range c.Accessibility.Assertions {
		if a.Key == "" {
			errors = append(errors, ValidationError{
				Field:   "accessibility.assertions",
				Message: "assertion key cannot be empty",
			})
			continue
		}
		if a.Key == c.Accessibility.AltTextKey {
			errors = append(errors, ValidationError{
				Field:   "accessibility.assertions",
				Message: fmt.Sprintf("assertion %s would overwrite the alt text entry", a.Key),
			})
		}
		if seen[a.Key] {
			errors = append(errors, ValidationError{
				Field:   "accessibility.assertions",
				Message: fmt.Sprintf("duplicate assertion key: %s", a.Key),
			})
		}
		seen[a.Key] = true
	}

	// Validate image sink
	switch c.Images.Sink {
	case "none":
	case "dir":
		if c.Images.Dir == "" {
			errors = append(errors, ValidationError{
				Field:   "images.dir",
				Message: "dir is required for the dir sink",
			})
		}
	case "azure":
		if c.Images.Azure.AccountName == "" || c.Images.Azure.AccountKey == "" || c.Images.Azure.Container == "" {
			errors = append(errors, ValidationError{
				Field:   "images.azure",
				Message: "account_name, account_key and container are required for the azure sink",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "images.sink",
			Message: fmt.Sprintf("invalid sink: %s", c.Images.Sink),
		})
	}

	// Validate Database config
	if c.Database.URL != "" {
		if u, err := url.Parse(c.Database.URL); err != nil || u.Scheme == "" {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "invalid database URL",
			})
		}
	}

	if c.Database.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	if c.Database.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.batch_size",
			Message: "batch_size must be positive",
		})
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		errors = append(errors, ValidationError{
			Field:   "log.format",
			Message: "format must be json or text",
		})
	}

	return errors
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
