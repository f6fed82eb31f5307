// Package anthropic implements models.AIProvider over the Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kiranshivaraju/labelscan/internal/ai/llm"
	"github.com/kiranshivaraju/labelscan/internal/config"
	"github.com/kiranshivaraju/labelscan/pkg/models"
)

const (
	messagesPath = "/v1/messages"
	apiVersion   = "2023-06-01"
	maxTokens    = 4096
)

// Provider implements models.AIProvider using Anthropic.
type Provider struct {
	model  string
	client *llm.HTTPClient
}

func NewProvider(cfg config.AnthropicConfig) *Provider {
	return &Provider{
		model: cfg.Model,
		client: llm.NewHTTPClient(cfg.BaseURL, map[string]string{
			"x-api-key":         cfg.APIKey,
			"anthropic-version": apiVersion,
		}),
	}
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) Generate(ctx context.Context, req models.GenerateRequest) (models.GenerateResult, error) {
	system := req.System
	if req.JSON {
		// No JSON mode on this API; the instruction goes in the system prompt.
		system = strings.TrimSpace(system + "\n\nRespond with a single JSON value and nothing else.")
	}

	body := messagesRequest{
		Model:     p.model,
		MaxTokens: maxTokens,
		System:    system,
		Tools:     toolDefs(req.Tools),
		Messages:  []message{{Role: "user", Content: userContent(req)}},
	}

	toolCalls := 0
	for round := 0; ; round++ {
		var resp messagesResponse
		if err := p.client.PostJSON(ctx, messagesPath, body, &resp); err != nil {
			return models.GenerateResult{}, err
		}

		var text strings.Builder
		var uses []contentBlock
		for _, block := range resp.Content {
			switch block.Type {
			case "text":
				text.WriteString(block.Text)
			case "tool_use":
				uses = append(uses, block)
			}
		}

		if len(uses) == 0 {
			if resp.StopReason == "max_tokens" {
				return models.GenerateResult{}, fmt.Errorf("%w: response truncated at max_tokens", llm.ErrInvalidResponse)
			}
			return models.GenerateResult{Text: text.String(), Model: resp.Model, ToolCalls: toolCalls}, nil
		}
		if round >= llm.MaxToolRounds {
			return models.GenerateResult{}, llm.ErrTooManyToolRounds
		}

		results := make([]contentBlock, 0, len(uses))
		for _, use := range uses {
			toolCalls++
			var args map[string]any
			if err := json.Unmarshal(use.Input, &args); err != nil || args == nil {
				args = map[string]any{}
			}
			results = append(results, contentBlock{
				Type:      "tool_result",
				ToolUseID: use.ID,
				Content:   llm.CallTool(ctx, req.Tools, use.Name, args),
			})
		}
		body.Messages = append(body.Messages,
			message{Role: "assistant", Content: resp.Content},
			message{Role: "user", Content: results},
		)
	}
}

func userContent(req models.GenerateRequest) []contentBlock {
	blocks := make([]contentBlock, 0, 2)
	if req.Image != nil {
		blocks = append(blocks, contentBlock{
			Type: "image",
			Source: &imageSource{
				Type:      "base64",
				MediaType: req.Image.MIMEType,
				Data:      base64.StdEncoding.EncodeToString(req.Image.Data),
			},
		})
	}
	return append(blocks, contentBlock{Type: "text", Text: req.Prompt})
}

func toolDefs(tools []models.Tool) []toolDef {
	if len(tools) == 0 {
		return nil
	}
	defs := make([]toolDef, 0, len(tools))
	for _, t := range tools {
		schema := t.Parameters
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		defs = append(defs, toolDef{Name: t.Name, Description: t.Description, InputSchema: schema})
	}
	return defs
}

var _ models.AIProvider = (*Provider)(nil)
