package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/xhad/pdfalt/internal/models"
	"github.com/xhad/pdfalt/pkg/llm"
)

// fakeModel records the prompt it receives and replies with a fixed answer.
type fakeModel struct {
	reply    *llms.ContentResponse
	err      error
	messages []llms.MessageContent
	options  llms.CallOptions
}

func (m *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	for _, opt := range options {
		opt(&m.options)
	}
	return m.reply, m.err
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func reply(text string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: text}}}
}

func TestGenerate(t *testing.T) {
	model := &fakeModel{reply: reply("A line chart of revenue.")}
	d := llm.NewWithModel(llm.DescriberConfig{
		MaxTokens:   100,
		Temperature: 0.5,
		ImageDir:    "extracted_images",
	}, model)

	got, err := d.Generate(context.Background(), models.ContextRecord{
		ImageName: "image_p1_1.png",
		Title:     "Figure 1",
		TextAfter: "Revenue grew.",
	})
	require.NoError(t, err)
	assert.Equal(t, "A line chart of revenue.", got)

	require.Len(t, model.messages, 1)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[0].Role)
	require.Len(t, model.messages[0].Parts, 1)
	text, ok := model.messages[0].Parts[0].(llms.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "The image is named: extracted_images/image_p1_1.png.")
	assert.Contains(t, text.Text, "Title: Figure 1")
	assert.Equal(t, 100, model.options.MaxTokens)
	assert.Equal(t, 0.5, model.options.Temperature)
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name  string
		model *fakeModel
		want  error
	}{
		{"model error", &fakeModel{err: errors.New("connection refused")}, nil},
		{"no choices", &fakeModel{reply: &llms.ContentResponse{}}, llm.ErrEmptyResponse},
		{"blank text", &fakeModel{reply: reply("   ")}, llm.ErrEmptyResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := llm.NewWithModel(llm.DescriberConfig{}, tt.model)
			_, err := d.Generate(context.Background(), models.ContextRecord{ImageName: "img"})
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestNewModelUnsupportedProvider(t *testing.T) {
	_, err := llm.NewModel(llm.DescriberConfig{Provider: "bard"})
	assert.EqualError(t, err, "unsupported LLM provider: bard")
}

func TestNewModelRequiresAPIKey(t *testing.T) {
	for _, provider := range []string{"openai", "mistral", "anthropic", "huggingface"} {
		_, err := llm.NewModel(llm.DescriberConfig{Provider: provider, Model: "m"})
		assert.Error(t, err, provider)
	}
}

func TestNewWithConfigOllama(t *testing.T) {
	d, err := llm.NewWithConfig(llm.DescriberConfig{BaseURL: "http://localhost:1234"})
	require.NoError(t, err)
	assert.NotNil(t, d)

	_, err = llm.NewWithConfig(llm.DescriberConfig{Temperature: 3})
	assert.Error(t, err)
}
