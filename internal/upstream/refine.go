package upstream

import (
	"context"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

// Refiner optionally rewrites a synthesized agent reply into more natural
// language. A nil Refiner skips the step entirely.
type Refiner interface {
	Refine(ctx context.Context, question, draft string) (string, error)
}

const refineSystemPrompt = "You are a patient-facing care assistant. Rewrite the draft answer " +
	"so it reads naturally and warmly. Keep every clinical fact, count, and name exactly as " +
	"given. Do not add medical advice that is not in the draft."

// OpenAIRefiner rewrites replies through the OpenAI chat completion API.
// API credentials and the model name are loaded from environment variables.
type OpenAIRefiner struct {
	client *openai.Client
	model  string
}

// NewOpenAIRefiner constructs an OpenAI-backed refiner, or returns nil when
// no API key is configured so callers fall back to the synthesized text.
func NewOpenAIRefiner() *OpenAIRefiner {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil
	}
	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIRefiner{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

func (r *OpenAIRefiner) Refine(ctx context.Context, question, draft string) (string, error) {
	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: refineSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Question: " + question + "\n\nDraft answer: " + draft},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
