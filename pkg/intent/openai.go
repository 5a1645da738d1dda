package intent

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
)

// OpenAI classifies with an OpenAI-compatible chat completion API using a
// JSON schema response format.
type OpenAI struct {
	Client   *openai.Client
	Model    string
	Registry *Registry
}

// NewOpenAI creates a classifier. baseURL may be empty.
func NewOpenAI(apiKey, baseURL, model string, reg *Registry) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	c := openai.NewClient(opts...)
	return &OpenAI{Client: &c, Model: model, Registry: reg}
}

func (o *OpenAI) Predict(ctx context.Context, req Request) (*Prediction, error) {
	if req.Text == "" {
		return nil, ErrEmptyText
	}
	cat, err := o.Registry.Lookup(req.Project)
	if err != nil {
		return nil, err
	}
	if req.Locale == "" {
		req.Locale = DefaultLocale
	}
	model := o.Model
	if req.Deployment != "" {
		model = req.Deployment
	}

	resp, err := o.Client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(cat.prompt(req.Locale)),
			openai.UserMessage(req.Text),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "prediction",
					Description: param.NewOpt("intent prediction"),
					Schema:      outputSchema,
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("intent: openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("intent: openai: no choices")
	}
	msg := resp.Choices[0].Message
	if msg.Refusal != "" {
		return nil, fmt.Errorf("intent: openai refused: %s", msg.Refusal)
	}
	return parsePrediction(msg.Content, cat)
}
