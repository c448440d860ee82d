package translator

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/slavierouse/sound-your-scene/internal/filterspec"
)

// wireDocument is the exact JSON shape the model must emit: the full filter
// spec plus the refinement continuation signal.
type wireDocument struct {
	filterspec.FilterSpec
	ContinueRefinement bool `json:"continue_refinement" jsonschema:"required"`
}

func generateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	return reflector.Reflect(v)
}

func schemaToMap(schema *jsonschema.Schema) (map[string]interface{}, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshaling schema: %w", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshaling schema: %w", err)
	}
	return m, nil
}

// ensureOpenAICompliance walks the schema and enforces the constraints the
// structured-output API demands: additionalProperties false everywhere and
// every property listed as required.
func ensureOpenAICompliance(schema map[string]interface{}) {
	if t, ok := schema["type"].(string); ok && t == "object" {
		schema["additionalProperties"] = false
		if props, ok := schema["properties"].(map[string]interface{}); ok {
			required := make([]string, 0, len(props))
			for name := range props {
				required = append(required, name)
			}
			schema["required"] = required
			for _, sub := range props {
				if subMap, ok := sub.(map[string]interface{}); ok {
					ensureOpenAICompliance(subMap)
				}
			}
		}
	}
	if items, ok := schema["items"].(map[string]interface{}); ok {
		ensureOpenAICompliance(items)
	}
	for _, key := range []string{"anyOf", "allOf", "oneOf"} {
		if variants, ok := schema[key].([]interface{}); ok {
			for _, v := range variants {
				if vm, ok := v.(map[string]interface{}); ok {
					ensureOpenAICompliance(vm)
				}
			}
		}
	}
}

// decodeModelJSON decodes a model reply, salvaging the first JSON object if
// the model wrapped it in prose or a code fence.
func decodeModelJSON(raw string, out interface{}) error {
	if err := json.Unmarshal([]byte(raw), out); err == nil {
		return nil
	}
	start := -1
	depth := 0
	for i, c := range raw {
		switch c {
		case '{':
			if start == -1 {
				start = i
			}
			depth++
		case '}':
			if start != -1 {
				depth--
				if depth == 0 {
					return json.Unmarshal([]byte(raw[start:i+1]), out)
				}
			}
		}
	}
	return fmt.Errorf("no JSON object found in model output")
}
