// Package langchain provides a judge backed by a langchaingo model.
package langchain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
)

const (
	Provider     = "langchain"
	defaultModel = "gemini-2.5-flash"
	temperature  = 0.1
)

// Judge completes prompts through any llms.Model.
type Judge struct {
	model     llms.Model
	modelName string
}

// NewGoogleAI builds a Judge on the langchaingo Google AI backend.
func NewGoogleAI(ctx context.Context, apiKey, model string) (*Judge, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("google ai api key is required")
	}
	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}

	llm, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("create googleai client: %w", err)
	}

	return New(llm, model), nil
}

// New wraps an existing model.
func New(model llms.Model, modelName string) *Judge {
	return &Judge{model: model, modelName: modelName}
}

func (j *Judge) Complete(ctx context.Context, prompt string) (string, error) {
	if j == nil || j.model == nil {
		return "", errors.New("langchain judge is not initialized")
	}

	out, err := llms.GenerateFromSinglePrompt(ctx, j.model, prompt, llms.WithTemperature(temperature))
	if err != nil {
		return "", fmt.Errorf("generate from prompt: %w", err)
	}

	return strings.TrimSpace(out), nil
}

func (j *Judge) Model() string {
	if j == nil {
		return ""
	}
	return j.modelName
}
