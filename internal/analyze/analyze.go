// Package analyze is the optional LLM analysis collaborator. The pipeline
// only sees the Analyzer interface; the OpenAI adapter is one
// implementation of it.
package analyze

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/invopop/jsonschema"
)

// ErrEmptyText is returned when there is nothing to analyze.
var ErrEmptyText = errors.New("analyze: empty text")

// Sentiment labels.
const (
	LabelPositive = "positive"
	LabelNeutral  = "neutral"
	LabelNegative = "negative"
)

// Analysis is the model's reading of one conversation.
type Analysis struct {
	Label      string `json:"label" jsonschema:"enum=positive,enum=neutral,enum=negative,description=Overall customer sentiment"`
	CoreDemand string `json:"core_demand" jsonschema:"description=The customer's concrete core demand as a short phrase"`
	FreeText   string `json:"free_text" jsonschema:"description=A detailed analysis that takes the conversation context into account"`
}

// Empty reports whether a carries no content.
func (a Analysis) Empty() bool {
	return a.Label == "" && a.CoreDemand == "" && a.FreeText == ""
}

// Analyzer produces an Analysis for a conversation transcript.
// Callers bound each call with a context deadline.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (Analysis, error)
}

// Func adapts a function to the Analyzer interface.
type Func func(ctx context.Context, text string) (Analysis, error)

func (f Func) Analyze(ctx context.Context, text string) (Analysis, error) {
	return f(ctx, text)
}

// Schema returns the strict JSON schema of Analysis as sent to the model.
func Schema() map[string]any {
	return generateSchema[Analysis]()
}

func generateSchema[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	schema := reflector.Reflect(v)
	schemaObj, err := schemaToMap(schema)
	if err != nil {
		panic(err)
	}
	ensureStrict(schemaObj)
	return schemaObj
}

func schemaToMap(schema *jsonschema.Schema) (map[string]any, error) {
	b, err := schema.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ensureStrict makes every object closed with all properties required, as
// strict structured outputs demand.
func ensureStrict(schema map[string]any) {
	if t, ok := schema["type"].(string); ok && t == "object" {
		schema["additionalProperties"] = false
		if props, ok := schema["properties"].(map[string]any); ok {
			required := make([]string, 0, len(props))
			for name := range props {
				required = append(required, name)
			}
			if len(required) > 0 {
				schema["required"] = required
			}
		}
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		for _, p := range props {
			if pm, ok := p.(map[string]any); ok {
				ensureStrict(pm)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		ensureStrict(items)
	}
}

// decodeModelJSON unmarshals JSON from a model response, tolerating text
// wrapped around the object.
func decodeModelJSON(outputText string, v any) error {
	s := strings.TrimSpace(outputText)
	if s == "" {
		return io.ErrUnexpectedEOF
	}

	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end <= start {
		return fmt.Errorf("no JSON object found in model output (len=%d)", len(s))
	}

	sub := s[start : end+1]
	if err := json.Unmarshal([]byte(sub), v); err != nil {
		return fmt.Errorf("failed to unmarshal extracted JSON (len=%d): %w", len(sub), err)
	}
	return nil
}
