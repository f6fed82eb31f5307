// Package openai implements models.AIProvider over the OpenAI chat
// completions API. Any OpenAI-compatible server (vLLM, LocalAI) works with a
// different base URL.
package openai

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/kiranshivaraju/labelscan/internal/ai/llm"
	"github.com/kiranshivaraju/labelscan/internal/config"
	"github.com/kiranshivaraju/labelscan/pkg/models"
)

const chatPath = "/v1/chat/completions"

// Provider implements models.AIProvider using the chat completions API.
type Provider struct {
	name   string
	model  string
	client *llm.HTTPClient
}

func NewProvider(cfg config.OpenAIConfig) *Provider {
	return NewCompatible("openai", cfg.BaseURL, cfg.APIKey, cfg.Model)
}

// NewCompatible creates a provider for an OpenAI-compatible server. apiKey
// may be empty for servers without auth.
func NewCompatible(name, baseURL, apiKey, model string) *Provider {
	headers := map[string]string{}
	if apiKey != "" {
		headers["Authorization"] = "Bearer " + apiKey
	}
	return &Provider{
		name:   name,
		model:  model,
		client: llm.NewHTTPClient(baseURL, headers),
	}
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Generate(ctx context.Context, req models.GenerateRequest) (models.GenerateResult, error) {
	messages := make([]chatMessage, 0, 4)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, userMessage(req))

	body := chatRequest{
		Model: p.model,
		Tools: toolDefs(req.Tools),
	}
	if req.JSON {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	toolCalls := 0
	for round := 0; ; round++ {
		body.Messages = messages

		var resp chatResponse
		if err := p.client.PostJSON(ctx, chatPath, body, &resp); err != nil {
			return models.GenerateResult{}, err
		}
		if len(resp.Choices) == 0 {
			return models.GenerateResult{}, fmt.Errorf("%w: no choices", llm.ErrInvalidResponse)
		}

		msg := resp.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			text, _ := msg.Content.(string)
			return models.GenerateResult{Text: text, Model: resp.Model, ToolCalls: toolCalls}, nil
		}
		if round >= llm.MaxToolRounds {
			return models.GenerateResult{}, llm.ErrTooManyToolRounds
		}

		messages = append(messages, chatMessage{Role: "assistant", ToolCalls: msg.ToolCalls})
		for _, call := range msg.ToolCalls {
			toolCalls++
			out := llm.CallTool(ctx, req.Tools, call.Function.Name, llm.ParseArgs(call.Function.Arguments))
			messages = append(messages, chatMessage{Role: "tool", ToolCallID: call.ID, Content: out})
		}
	}
}

func userMessage(req models.GenerateRequest) chatMessage {
	if req.Image == nil {
		return chatMessage{Role: "user", Content: req.Prompt}
	}
	uri := fmt.Sprintf("data:%s;base64,%s", req.Image.MIMEType, base64.StdEncoding.EncodeToString(req.Image.Data))
	return chatMessage{
		Role: "user",
		Content: []contentPart{
			{Type: "text", Text: req.Prompt},
			{Type: "image_url", ImageURL: &imageURL{URL: uri}},
		},
	}
}

func toolDefs(tools []models.Tool) []toolDef {
	if len(tools) == 0 {
		return nil
	}
	defs := make([]toolDef, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, toolDef{
			Type: "function",
			Function: functionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return defs
}

var _ models.AIProvider = (*Provider)(nil)
