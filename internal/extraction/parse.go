package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Fields is the structured response of a backend.
type Fields struct {
	Title           string `json:"title"`
	CreationYear    *int   `json:"creation_year"`
	Creator         string `json:"creator"`
	Creditline      string `json:"creditline"`
	Location        string `json:"location"`
	Medium          string `json:"medium"`
	AccessionNumber string `json:"accession_number"`
}

// extractJSONObject strips code fences and surrounding prose, returning the
// outermost JSON object in text.
func extractJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return "", fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return "", fmt.Errorf("invalid JSON object in response")
	}
	return text[startIdx : endIdx+1], nil
}

// normalizeResponse coerces the loose output models tend to produce into
// the schema's types: null text becomes "", numeric strings become numbers
// and unknown keys are dropped. It returns the names of keys it dropped.
func normalizeResponse(m map[string]any, schema Schema) []string {
	var dropped []string
	for k, v := range m {
		spec, ok := schema.field(k)
		if !ok {
			delete(m, k)
			dropped = append(dropped, k+"(unknown)")
			continue
		}
		switch spec.Type {
		case TypeString:
			switch t := v.(type) {
			case nil:
				m[k] = ""
			case json.Number:
				m[k] = t.String()
			}
		case TypeInteger:
			if n, isNumber := v.(json.Number); isNumber {
				// 1890.0 is still a year.
				if f, err := n.Float64(); err == nil && f == math.Trunc(f) && math.Abs(f) < 1e9 {
					m[k] = json.Number(strconv.Itoa(int(f)))
				}
				continue
			}
			s, isString := v.(string)
			if !isString {
				continue
			}
			s = strings.TrimSpace(s)
			if s == "" || strings.EqualFold(s, "null") {
				m[k] = nil
				continue
			}
			if n, err := strconv.Atoi(s); err == nil {
				m[k] = json.Number(strconv.Itoa(n))
			} else {
				m[k] = nil
				dropped = append(dropped, k+"(type)")
			}
		}
	}
	return dropped
}

// parseFields cleans, validates and decodes a backend response.
func parseFields(raw []byte, schema Schema) (*Fields, []string, error) {
	text, err := extractJSONObject(string(raw))
	if err != nil {
		return nil, nil, err
	}

	var m map[string]any
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return nil, nil, fmt.Errorf("unmarshaling json: %w", err)
	}
	dropped := normalizeResponse(m, schema)

	if err := validateAgainstSchema(schema.JSONSchema(), m); err != nil {
		return nil, dropped, err
	}

	cleaned, err := json.Marshal(m)
	if err != nil {
		return nil, dropped, fmt.Errorf("marshaling normalized response: %w", err)
	}
	var fields Fields
	if err := json.Unmarshal(cleaned, &fields); err != nil {
		return nil, dropped, fmt.Errorf("unmarshaling fields: %w", err)
	}
	return &fields, dropped, nil
}

// validateAgainstSchema validates doc against schemaMap.
func validateAgainstSchema(schemaMap map[string]any, doc any) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("label.schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("label.schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
