package extraction

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is used when no model name is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// Gemini implements the Backend interface using Google Gemini
type Gemini struct {
	client    *genai.Client
	modelName string
}

// NewGemini creates a new Gemini backend
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client:    client,
		modelName: modelName,
	}, nil
}

// Generate runs one structured-output request. A model handle is created per
// call because the system instruction and schema live on it.
func (g *Gemini) Generate(ctx context.Context, instructions, input string, schema Schema) ([]byte, error) {
	model := g.client.GenerativeModel(g.modelName)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(instructions)}}
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = geminiSchema(schema)
	model.SetTemperature(0)

	resp, err := model.GenerateContent(ctx, genai.Text(input))
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}

	text, err := responseText(resp)
	if err != nil {
		return nil, err
	}
	return []byte(text), nil
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}
	if strings.TrimSpace(responseText.String()) == "" {
		return "", fmt.Errorf("empty text response from gemini")
	}
	return responseText.String(), nil
}

// geminiSchema converts s to the subset of OpenAPI schema Gemini accepts.
func geminiSchema(s Schema) *genai.Schema {
	out := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(s.Fields)),
	}
	for _, f := range s.Fields {
		prop := &genai.Schema{Description: f.Description}
		switch f.Type {
		case TypeInteger:
			prop.Type = genai.TypeInteger
		default:
			prop.Type = genai.TypeString
		}
		out.Properties[f.Name] = prop
		// Every field is required so the model fills in empty defaults
		// instead of omitting keys.
		out.Required = append(out.Required, f.Name)
	}
	return out
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
