package synthesis

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/schema"
)

// OllamaGenerator drives a chat model served by Ollama.
type OllamaGenerator struct {
	llm         *ollama.LLM
	temperature float64
}

// NewOllamaGenerator connects to the Ollama server at serverURL and binds
// the given chat model.
func NewOllamaGenerator(serverURL, model string, temperature float64) (*OllamaGenerator, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(serverURL),
		ollama.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("initializing ollama chat model %s: %w", model, err)
	}
	return &OllamaGenerator{llm: llm, temperature: temperature}, nil
}

func (g *OllamaGenerator) Generate(ctx context.Context, systemPrompt, userQuery string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(schema.ChatMessageTypeHuman, userQuery),
	}
	resp, err := g.llm.GenerateContent(ctx, messages, llms.WithTemperature(g.temperature))
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("model returned no completion")
	}
	return resp.Choices[0].Content, nil
}
