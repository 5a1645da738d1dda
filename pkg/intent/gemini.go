package intent

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Gemini classifies with the Gemini API in JSON mode.
type Gemini struct {
	Client   *genai.Client
	Model    string
	Registry *Registry
}

// NewGemini creates a Gemini classifier.
func NewGemini(ctx context.Context, apiKey, model string, reg *Registry) (*Gemini, error) {
	c, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("intent: gemini client: %w", err)
	}
	return &Gemini{Client: c, Model: model, Registry: reg}, nil
}

func (g *Gemini) Predict(ctx context.Context, req Request) (*Prediction, error) {
	if req.Text == "" {
		return nil, ErrEmptyText
	}
	cat, err := g.Registry.Lookup(req.Project)
	if err != nil {
		return nil, err
	}
	if req.Locale == "" {
		req.Locale = DefaultLocale
	}
	model := g.Model
	if req.Deployment != "" {
		model = req.Deployment
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(cat.prompt(req.Locale))}},
		ResponseMIMEType:  "application/json",
	}
	resp, err := g.Client.Models.GenerateContent(ctx, model, []*genai.Content{
		{Parts: []*genai.Part{{Text: req.Text}}, Role: "user"},
	}, cfg)
	if err != nil {
		return nil, fmt.Errorf("intent: gemini: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("intent: gemini: empty response")
	}
	return parsePrediction(text, cat)
}
