// Package gemini implements models.AIProvider with the Google Gen AI SDK.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kiranshivaraju/labelscan/internal/ai/llm"
	"github.com/kiranshivaraju/labelscan/internal/config"
	"github.com/kiranshivaraju/labelscan/pkg/models"
	"google.golang.org/genai"
)

// Provider implements models.AIProvider using Gemini.
type Provider struct {
	client *genai.Client
	model  string
}

func NewProvider(ctx context.Context, cfg config.GeminiConfig) (*Provider, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &Provider{client: client, model: cfg.Model}, nil
}

func (p *Provider) Name() string { return "gemini" }

func (p *Provider) Generate(ctx context.Context, req models.GenerateRequest) (models.GenerateResult, error) {
	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	if req.Image != nil {
		parts = append(parts, genai.NewPartFromBytes(req.Image.Data, req.Image.MIMEType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if len(req.Tools) > 0 {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: declarations(req.Tools)}}
	} else if req.JSON {
		// JSON mime type cannot be combined with function calling.
		cfg.ResponseMIMEType = "application/json"
	}

	toolCalls := 0
	for round := 0; ; round++ {
		resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, cfg)
		if err != nil {
			return models.GenerateResult{}, classifyError(err)
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			return models.GenerateResult{}, fmt.Errorf("%w: no candidates", llm.ErrInvalidResponse)
		}

		calls := resp.FunctionCalls()
		if len(calls) == 0 {
			return models.GenerateResult{Text: resp.Text(), Model: resp.ModelVersion, ToolCalls: toolCalls}, nil
		}
		if round >= llm.MaxToolRounds {
			return models.GenerateResult{}, llm.ErrTooManyToolRounds
		}

		contents = append(contents, resp.Candidates[0].Content)
		replies := make([]*genai.Part, 0, len(calls))
		for _, call := range calls {
			toolCalls++
			args := call.Args
			if args == nil {
				args = map[string]any{}
			}
			out := llm.CallTool(ctx, req.Tools, call.Name, args)

			var decoded any
			if err := json.Unmarshal([]byte(out), &decoded); err != nil {
				decoded = out
			}
			replies = append(replies, &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       call.ID,
				Name:     call.Name,
				Response: map[string]any{"output": decoded},
			}})
		}
		contents = append(contents, genai.NewContentFromParts(replies, genai.RoleUser))
	}
}

func declarations(tools []models.Tool) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 t.Name,
			Description:          t.Description,
			ParametersJsonSchema: t.Parameters,
		})
	}
	return decls
}

// classifyError maps SDK errors to the ai sentinels.
func classifyError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %s", llm.StatusError(apiErr.Code), apiErr.Message)
	}
	return llm.ClassifyError(err)
}

var _ models.AIProvider = (*Provider)(nil)
