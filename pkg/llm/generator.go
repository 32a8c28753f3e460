package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// GeneratorConfig configures the Ollama generation model. Temperature is a
// pointer so an explicit 0 (deterministic sampling) is distinguishable from
// unset; nil falls back to 0.7.
type GeneratorConfig struct {
	Model       string
	BaseURL     string
	Temperature *float64
	MaxTokens   int
}

// Generator produces answers from fully rendered prompts through a local
// Ollama server.
type Generator struct {
	config      GeneratorConfig
	temperature float64
	llm         llms.Model
}

// NewGenerator creates a Generator with the given configuration.
func NewGenerator(config GeneratorConfig) (*Generator, error) {
	if config.Model == "" {
		config.Model = "mistral"
	}
	temperature := 0.7
	if config.Temperature != nil {
		if *config.Temperature < 0 || *config.Temperature > 2 {
			return nil, fmt.Errorf("temperature must be between 0 and 2")
		}
		temperature = *config.Temperature
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}

	model, err := ollama.New(
		ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize generation model: %w", err)
	}

	return &Generator{
		config:      config,
		temperature: temperature,
		llm:         model,
	}, nil
}

// Generate runs the prompt through the model and returns the answer text.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	resp, err := g.llm.GenerateContent(ctx, content,
		llms.WithTemperature(g.temperature),
		llms.WithMaxTokens(g.config.MaxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("generation error: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from model")
	}

	return resp.Choices[0].Content, nil
}
