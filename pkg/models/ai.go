// Package models contains shared data models used across the LabelScan codebase.
package models

import "context"

// AIProvider is the core interface that all AI integrations must implement.
// Never call specific AI providers directly; always inject this interface.
type AIProvider interface {
	// Generate runs one prompt to completion, servicing any tool calls the
	// model makes along the way, and returns the model's final text.
	Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error)
	// Name returns the provider identifier (e.g., "gemini", "openai").
	Name() string
}

// GenerateRequest is the input to a single provider call.
type GenerateRequest struct {
	System string
	Prompt string
	Image  *InlineImage // optional; attached to the user turn
	Tools  []Tool
	JSON   bool // ask the provider for a JSON-only answer when supported
}

// InlineImage is an image sent inline with the prompt.
type InlineImage struct {
	MIMEType string
	Data     []byte
}

// ToolFunc executes a tool invocation requested by the model. The returned
// value is JSON-encoded and handed back to the model.
type ToolFunc func(ctx context.Context, args map[string]any) (any, error)

// Tool is a named capability the model may invoke mid-generation.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema of the arguments object
	Call        ToolFunc
}

// GenerateResult is the final answer of a provider call.
type GenerateResult struct {
	Text      string
	Model     string
	ToolCalls int
}
