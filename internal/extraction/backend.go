package extraction

import (
	"context"

	"github.com/zombor/registrar/internal/record"
)

// Backend is a text-understanding capability: given instructions, input text
// and a target schema it returns a JSON object matching the schema.
type Backend interface {
	// Generate returns the raw JSON produced for input.
	Generate(ctx context.Context, instructions, input string, schema Schema) ([]byte, error)
	// Close releases the backend's resources
	Close() error
}

// FieldType is the JSON type of an extractable field.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeInteger FieldType = "integer"
)

// FieldSpec describes one extractable field to the backend.
type FieldSpec struct {
	Name        string
	Type        FieldType
	Description string
	Required    bool
}

// Schema is the shape a backend response must take.
type Schema struct {
	Fields []FieldSpec
}

// LabelSchema is the extractable part of a record.
var LabelSchema = Schema{Fields: []FieldSpec{
	{
		Name:        record.FieldTitle,
		Type:        TypeString,
		Description: "The title or name of the object. Titles sometimes have leading numbers followed by a space, acting as a key between the wall label and the surface the object is mounted on. Remove these numbers if present.",
		Required:    true,
	},
	{
		Name:        record.FieldCreationYear,
		Type:        TypeInteger,
		Description: "The year that the object was created. Use the earliest year of a range. Use 0 if no year is given.",
	},
	{
		Name:        record.FieldCreator,
		Type:        TypeString,
		Description: "The individual or organization responsible for creating the object.",
	},
	{
		Name:        record.FieldCreditline,
		Type:        TypeString,
		Description: "The name of the individual, persons or organization who donated or are lending the object.",
	},
	{
		Name:        record.FieldLocation,
		Type:        TypeString,
		Description: "The location that the object was produced in.",
	},
	{
		Name:        record.FieldMedium,
		Type:        TypeString,
		Description: "The medium or media used to create the object.",
	},
	{
		Name:        record.FieldAccessionNumber,
		Type:        TypeString,
		Description: "The unique identifier for the object, copied exactly as printed.",
	},
}}

// JSONSchema renders s as a JSON Schema document. Unknown keys are allowed
// here and dropped during parsing.
func (s Schema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.Fields))
	required := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		prop := map[string]any{"description": f.Description}
		switch f.Type {
		case TypeInteger:
			prop["type"] = []string{"integer", "null"}
		default:
			prop["type"] = "string"
		}
		if f.Required {
			prop["type"] = string(f.Type)
			required = append(required, f.Name)
		}
		props[f.Name] = prop
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func (s Schema) field(name string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}
