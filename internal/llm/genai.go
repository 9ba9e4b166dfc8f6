package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/net/http2"
	"google.golang.org/genai"
)

// GenAIStreamer implements Streamer against the Gemini API. Grounded on
// embedding.GenAIEngine's client construction; the generation call and
// function-declaration conversion are new, since the teacher only used
// genai for embeddings.
type GenAIStreamer struct {
	client *genai.Client
	model  string
}

// NewGenAIStreamer creates a streamer bound to model (e.g.
// "gemini-2.0-flash").
func NewGenAIStreamer(apiKey, model string) (*GenAIStreamer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("llm: GenAI API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	// Force HTTP/2 on the transport so a long-running Send doesn't hold a
	// whole TCP connection hostage from other concurrent session turns.
	httpClient := &http.Client{Transport: &http2.Transport{}}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:     apiKey,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: creating GenAI client: %w", err)
	}
	return &GenAIStreamer{client: client, model: model}, nil
}

func (g *GenAIStreamer) Send(ctx context.Context, systemPrompt string, messages []Message, toolDefs []ToolDefinition) (*Turn, error) {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := genai.RoleUser
		if m.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
	}
	if len(toolDefs) > 0 {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: buildDeclarations(toolDefs)}}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("llm: generate: %w", err)
	}
	return convertResponse(resp), nil
}

func buildDeclarations(defs []ToolDefinition) []*genai.FunctionDeclaration {
	out := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, d := range defs {
		props := map[string]*genai.Schema{}
		for name, p := range d.Schema.Properties {
			props[name] = &genai.Schema{Type: genai.Type(schemaType(p.Type)), Description: p.Description}
		}
		out = append(out, &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: props,
				Required:   d.Schema.Required,
			},
		})
	}
	return out
}

func schemaType(jsonType string) string {
	switch jsonType {
	case "integer":
		return "INTEGER"
	case "number":
		return "NUMBER"
	case "boolean":
		return "BOOLEAN"
	case "array":
		return "ARRAY"
	case "object":
		return "OBJECT"
	default:
		return "STRING"
	}
}

func convertResponse(resp *genai.GenerateContentResponse) *Turn {
	turn := &Turn{StopReason: "end_turn"}
	if len(resp.Candidates) == 0 {
		return turn
	}
	cand := resp.Candidates[0]
	if cand.FinishReason != "" {
		turn.StopReason = string(cand.FinishReason)
	}
	if cand.Content == nil {
		return turn
	}
	for _, part := range cand.Content.Parts {
		if part.Text != "" {
			turn.Text += part.Text
		}
		if part.FunctionCall != nil {
			// Gemini's function-call parts carry no call ID of their own
			// (unlike providers that echo one back); mint a fresh one per
			// call so two calls to the same tool in one turn don't collide
			// when correlated against their tool results.
			turn.ToolCalls = append(turn.ToolCalls, ToolCall{
				ID:   uuid.NewString(),
				Name: part.FunctionCall.Name,
				Args: part.FunctionCall.Args,
			})
		}
	}
	return turn
}

// Close releases the underlying client.
func (g *GenAIStreamer) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
