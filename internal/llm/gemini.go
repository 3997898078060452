package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/kibocha/orderdesk/internal/log"
)

// GeminiConfig holds generation parameters for the Gemini provider.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	TopP        float32
	MaxTokens   int
}

// Gemini calls the Gemini API through the official Go SDK.
type Gemini struct {
	client *genai.Client
	cfg    GeminiConfig
	logger log.Logger
}

// NewGemini creates a Gemini provider.
func NewGemini(ctx context.Context, cfg GeminiConfig, logger log.Logger) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &Gemini{client: client, cfg: cfg, logger: logger}, nil
}

// Generate implements Provider.
func (g *Gemini) Generate(ctx context.Context, req Request) (*Response, error) {
	contents := historyToContents(req.History)
	contents = append(contents, genai.NewContentFromText(req.Message, genai.RoleUser))

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(g.cfg.Temperature),
		TopP:            genai.Ptr(g.cfg.TopP),
		MaxOutputTokens: int32(g.cfg.MaxTokens),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 t.Name,
				Description:          t.Description,
				ParametersJsonSchema: t.Parameters,
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.Model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini generate: no candidates returned")
	}

	out := &Response{Text: resp.Text()}
	for _, fc := range resp.FunctionCalls() {
		out.Calls = append(out.Calls, FunctionCall{Name: fc.Name, Args: fc.Args})
	}

	g.logger.Debug("gemini response",
		"model", g.cfg.Model,
		"calls", len(out.Calls),
		"text_len", len(out.Text))

	return out, nil
}

// historyToContents converts stored turns into SDK content. The wire shape of
// Turn already mirrors the contents array, so this is a field-by-field copy.
func historyToContents(history []Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, turn := range history {
		parts := make([]*genai.Part, 0, len(turn.Parts))
		for _, p := range turn.Parts {
			switch {
			case p.FunctionCall != nil:
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					Name: p.FunctionCall.Name,
					Args: p.FunctionCall.Args,
				}})
			case p.FunctionResponse != nil:
				parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					Name:     p.FunctionResponse.Name,
					Response: p.FunctionResponse.Response,
				}})
			default:
				parts = append(parts, &genai.Part{Text: p.Text})
			}
		}
		contents = append(contents, &genai.Content{Role: turn.Role, Parts: parts})
	}
	return contents
}
