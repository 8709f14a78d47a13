package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini generates answers with Google Gemini models
type Gemini struct {
	client *genai.Client
	opts   options
}

// NewGemini creates a Gemini generator. Only the model and rate limit
// options apply.
func NewGemini(ctx context.Context, apiKey string, opts ...Option) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: GEMINI_API_KEY not set", ErrMissingAPIKey)
	}

	o := defaultOptions()
	o.model = DefaultGeminiModel
	for _, opt := range opts {
		opt(&o)
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{client: client, opts: o}, nil
}

func (g *Gemini) Generate(ctx context.Context, req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	if err := g.opts.wait(ctx); err != nil {
		return "", err
	}

	name := req.Model
	if name == "" {
		name = g.opts.model
	}

	model := g.client.GenerativeModel(name)
	model.SetTemperature(float32(req.Temperature))
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.SystemPrompt != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.SystemPrompt)}}
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: gemini returned no candidates", ErrProviderFailed)
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("%w: gemini returned no text", ErrProviderFailed)
	}
	return b.String(), nil
}

func (g *Gemini) Provider() string {
	return ProviderGemini
}

func (g *Gemini) Model() string {
	return g.opts.model
}

// Close releases the underlying client
func (g *Gemini) Close() error {
	return g.client.Close()
}
