package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const systemPrompt = "You summarize a website description into one short sentence " +
	"usable as a heading for a list of domain name suggestions. Reply with the sentence only."

// Summarizer produces the one-line summary stored next to a search prompt.
type Summarizer struct {
	client *genai.Client
	model  string
}

func NewSummarizer(ctx context.Context, apiKey string) (*Summarizer, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &Summarizer{client: client, model: "gemini-1.5-flash"}, nil
}

func (s *Summarizer) Summarize(ctx context.Context, prompt string) (string, error) {
	slog.DebugContext(ctx, "summarizing prompt", "model", s.model, "length", len(prompt))
	model := s.client.GenerativeModel(s.model)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}

	res, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	if len(res.Candidates) == 0 || res.Candidates[0].Content == nil {
		return "", fmt.Errorf("empty completion")
	}
	var sb strings.Builder
	for _, part := range res.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

func (s *Summarizer) Close() error {
	return s.client.Close()
}
