// Package ollama implements models.AIProvider over a local Ollama server.
package ollama

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/kiranshivaraju/labelscan/internal/ai/llm"
	"github.com/kiranshivaraju/labelscan/internal/config"
	"github.com/kiranshivaraju/labelscan/pkg/models"
)

const chatPath = "/api/chat"

// Provider implements models.AIProvider using Ollama.
type Provider struct {
	model  string
	client *llm.HTTPClient
}

func NewProvider(cfg config.OllamaConfig) *Provider {
	return &Provider{
		model:  cfg.Model,
		client: llm.NewHTTPClient(cfg.BaseURL, nil),
	}
}

func (p *Provider) Name() string { return "ollama" }

func (p *Provider) Generate(ctx context.Context, req models.GenerateRequest) (models.GenerateResult, error) {
	messages := make([]chatMessage, 0, 4)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	user := chatMessage{Role: "user", Content: req.Prompt}
	if req.Image != nil {
		user.Images = []string{base64.StdEncoding.EncodeToString(req.Image.Data)}
	}
	messages = append(messages, user)

	body := chatRequest{
		Model:  p.model,
		Stream: false,
		Tools:  toolDefs(req.Tools),
	}
	if req.JSON {
		body.Format = "json"
	}

	toolCalls := 0
	for round := 0; ; round++ {
		body.Messages = messages

		var resp chatResponse
		if err := p.client.PostJSON(ctx, chatPath, body, &resp); err != nil {
			return models.GenerateResult{}, err
		}
		if resp.Error != "" {
			return models.GenerateResult{}, fmt.Errorf("%w: %s", llm.ErrInvalidResponse, resp.Error)
		}

		if len(resp.Message.ToolCalls) == 0 {
			return models.GenerateResult{Text: resp.Message.Content, Model: resp.Model, ToolCalls: toolCalls}, nil
		}
		if round >= llm.MaxToolRounds {
			return models.GenerateResult{}, llm.ErrTooManyToolRounds
		}

		messages = append(messages, chatMessage{Role: "assistant", ToolCalls: resp.Message.ToolCalls})
		for _, call := range resp.Message.ToolCalls {
			toolCalls++
			args := call.Function.Arguments
			if args == nil {
				args = map[string]any{}
			}
			messages = append(messages, chatMessage{
				Role:     "tool",
				ToolName: call.Function.Name,
				Content:  llm.CallTool(ctx, req.Tools, call.Function.Name, args),
			})
		}
	}
}

func toolDefs(tools []models.Tool) []toolDef {
	if len(tools) == 0 {
		return nil
	}
	defs := make([]toolDef, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, toolDef{
			Type:     "function",
			Function: functionDef{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
		})
	}
	return defs
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Tools    []toolDef     `json:"tools,omitempty"`
	Format   string        `json:"format,omitempty"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	Images    []string   `json:"images,omitempty"`
	ToolCalls []toolCall `json:"tool_calls,omitempty"`
	ToolName  string     `json:"tool_name,omitempty"`
}

type toolDef struct {
	Type     string      `json:"type"`
	Function functionDef `json:"function"`
}

type functionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type toolCall struct {
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

type chatResponse struct {
	Model   string      `json:"model"`
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
	Error   string      `json:"error,omitempty"`
}

var _ models.AIProvider = (*Provider)(nil)
