// Package generation produces grounded answers via OpenAI chat completions.
package generation

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
)

// DefaultModel is the chat model used when none is configured.
const DefaultModel = "gpt-4o"

const systemPrompt = `You are a document assistant. Answer the question using the provided context passages. Each passage is tagged with its source document and page. Quote or paraphrase from the context where possible. If the context does not contain the answer, say so before answering from general knowledge.`

// Generator turns a question and a grounding context into an answer string.
type Generator struct {
	client *openai.Client
	model  string
}

// NewGenerator creates a Generator. An empty model falls back to DefaultModel.
func NewGenerator(client *openai.Client, model string) *Generator {
	if model == "" {
		model = DefaultModel
	}
	return &Generator{client: client, model: model}
}

// Generate invokes the chat model with the question and retrieved context.
// An empty context is passed through as-is; the model answers unguarded.
func (g *Generator) Generate(ctx context.Context, question, grounding string) (string, error) {
	user := question
	if grounding != "" {
		user = fmt.Sprintf("Context:\n%s\n\nQuestion: %s", grounding, question)
	}

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(user),
		},
		Model: openai.ChatModel(g.model),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
