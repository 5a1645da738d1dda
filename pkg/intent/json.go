package intent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

// modelOutput is the JSON shape requested from a model.
type modelOutput struct {
	TopIntent string   `json:"topIntent" jsonschema:"the best matching intent"`
	Intents   []Intent `json:"intents"`
	Entities  []Entity `json:"entities"`
}

var outputSchema = func() *jsonschema.Schema {
	s, err := jsonschema.For[modelOutput](nil)
	if err != nil {
		panic(err)
	}
	return s
}()

// parsePrediction decodes model output, repairing malformed JSON such as
// code fences or trailing commas.
func parsePrediction(text string, c *Catalog) (*Prediction, error) {
	text = stripFence(strings.TrimSpace(text))
	var out modelOutput
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		fixed, rerr := jsonrepair.JSONRepair(text)
		if rerr != nil {
			return nil, fmt.Errorf("intent: invalid model output: %w", err)
		}
		if err := json.Unmarshal([]byte(fixed), &out); err != nil {
			return nil, fmt.Errorf("intent: invalid model output: %w", err)
		}
		text = fixed
	}
	p := &Prediction{
		TopIntent: out.TopIntent,
		Intents:   out.Intents,
		Entities:  out.Entities,
		Raw:       json.RawMessage(text),
	}
	p.normalize(c)
	return p, nil
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
