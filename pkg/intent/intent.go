// Package intent classifies a short utterance into one of a project's
// intents and extracts its entities.
//
// A project is a [Catalog] of intents and entity kinds. Classifiers are
// backed by a language model that is asked for a JSON prediction matching
// the catalog.
package intent

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"slices"
)

// DefaultLocale is used when a request has no locale.
const DefaultLocale = "kk-KZ"

// NoneIntent is reported when nothing in the catalog matches.
const NoneIntent = "None"

var (
	// ErrNotConfigured is returned when the requested project is unknown or
	// no model is configured.
	ErrNotConfigured = errors.New("intent: classifier not configured")
	// ErrEmptyText is returned for a request without text.
	ErrEmptyText = errors.New("intent: missing text")
)

// Request is a classification request.
type Request struct {
	Text       string `json:"text" yaml:"text"`
	Locale     string `json:"locale,omitempty" yaml:"locale,omitempty"`
	Project    string `json:"projectName,omitempty" yaml:"projectName,omitempty"`
	Deployment string `json:"deploymentName,omitempty" yaml:"deploymentName,omitempty"`
}

// Intent is a scored intent.
type Intent struct {
	Category   string  `json:"category" jsonschema:"intent name from the catalog"`
	Confidence float64 `json:"confidenceScore" jsonschema:"confidence between 0 and 1"`
}

// Entity is an entity found in the text.
type Entity struct {
	Category   string  `json:"category" jsonschema:"entity kind from the catalog"`
	Text       string  `json:"text" jsonschema:"the exact substring of the input"`
	Offset     int     `json:"offset" jsonschema:"character offset of text in the input"`
	Length     int     `json:"length" jsonschema:"character length of text"`
	Confidence float64 `json:"confidenceScore" jsonschema:"confidence between 0 and 1"`
}

// Prediction is the classification result.
type Prediction struct {
	TopIntent string          `json:"topIntent"`
	Intents   []Intent        `json:"intents"`
	Entities  []Entity        `json:"entities"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// Classifier predicts intents.
type Classifier interface {
	Predict(ctx context.Context, req Request) (*Prediction, error)
}

// normalize sorts intents by confidence, drops intents and entities that are
// not in the catalog and fills in the top intent.
func (p *Prediction) normalize(c *Catalog) {
	p.Intents = slices.DeleteFunc(p.Intents, func(i Intent) bool { return !c.hasIntent(i.Category) })
	slices.SortStableFunc(p.Intents, func(a, b Intent) int { return cmp.Compare(b.Confidence, a.Confidence) })
	p.Entities = slices.DeleteFunc(p.Entities, func(e Entity) bool { return !c.hasEntity(e.Category) })
	if p.Intents == nil {
		p.Intents = []Intent{}
	}
	if p.Entities == nil {
		p.Entities = []Entity{}
	}
	if !c.hasIntent(p.TopIntent) {
		p.TopIntent = NoneIntent
		if len(p.Intents) > 0 {
			p.TopIntent = p.Intents[0].Category
		}
	}
}
