// Package mock provides scriptable models.AIProvider doubles. The offline
// provider also backs the CLI's --offline mode.
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/kiranshivaraju/labelscan/internal/ai"
	"github.com/kiranshivaraju/labelscan/internal/ai/llm"
	"github.com/kiranshivaraju/labelscan/pkg/models"
)

// MockProvider satisfies models.AIProvider for testing. Every request is
// recorded before GenerateFunc runs.
type MockProvider struct {
	Name_        string
	GenerateFunc func(ctx context.Context, req models.GenerateRequest) (models.GenerateResult, error)

	mu    sync.Mutex
	calls []models.GenerateRequest
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Generate(ctx context.Context, req models.GenerateRequest) (models.GenerateResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return models.GenerateResult{}, nil
}

// Calls returns a copy of the recorded requests in arrival order.
func (m *MockProvider) Calls() []models.GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.GenerateRequest(nil), m.calls...)
}

func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// NewMockProvider returns an offline provider that reads the label
// "Water, Paraben, Fragrance" from any image.
func NewMockProvider() *MockProvider {
	return NewOfflineProvider([]string{"Water", "Paraben", "Fragrance"})
}

// NewOfflineProvider answers the extraction flow with labelNames and the
// suggestion flow by running the getAlternativeProducts tool itself. Every
// other request fails with ai.ErrProviderUnavailable, so analyzers fall back
// to the local ingredient table.
func NewOfflineProvider(labelNames []string) *MockProvider {
	names := append([]string{}, labelNames...)
	return &MockProvider{
		Name_: "mock",
		GenerateFunc: func(ctx context.Context, req models.GenerateRequest) (models.GenerateResult, error) {
			switch {
			case hasTool(req.Tools, ai.ToolIngredientSynonyms):
				return jsonResult(map[string]any{"ingredients": names}, 0)
			case hasTool(req.Tools, ai.ToolAlternativeProducts):
				flagged, err := promptIngredients(req.Prompt)
				if err != nil {
					return models.GenerateResult{}, fmt.Errorf("%w: %v", ai.ErrInvalidResponse, err)
				}
				out := llm.CallTool(ctx, req.Tools, ai.ToolAlternativeProducts, map[string]any{"ingredients": flagged})
				return models.GenerateResult{
					Text:      `{"alternativeProducts": ` + out + `}`,
					Model:     "mock-v1",
					ToolCalls: 1,
				}, nil
			default:
				return models.GenerateResult{}, fmt.Errorf("%w: offline", ai.ErrProviderUnavailable)
			}
		},
	}
}

// NewStaticProvider returns a MockProvider that answers every request with text.
func NewStaticProvider(text string) *MockProvider {
	return &MockProvider{
		Name_: "mock-static",
		GenerateFunc: func(_ context.Context, _ models.GenerateRequest) (models.GenerateResult, error) {
			return models.GenerateResult{Text: text, Model: "mock-v1"}, nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		GenerateFunc: func(_ context.Context, _ models.GenerateRequest) (models.GenerateResult, error) {
			return models.GenerateResult{}, err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		GenerateFunc: func(ctx context.Context, _ models.GenerateRequest) (models.GenerateResult, error) {
			<-ctx.Done()
			return models.GenerateResult{}, ai.ErrInferenceTimeout
		},
	}
}

// NewPanickingProvider returns a MockProvider whose Generate panics.
func NewPanickingProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-panicking",
		GenerateFunc: func(_ context.Context, _ models.GenerateRequest) (models.GenerateResult, error) {
			panic("mock provider panic")
		},
	}
}

func hasTool(tools []models.Tool, name string) bool {
	for _, t := range tools {
		if t.Name == name {
			return true
		}
	}
	return false
}

// promptIngredients reads the JSON list on the prompt's "Ingredients:" line.
func promptIngredients(prompt string) ([]any, error) {
	for _, line := range strings.Split(prompt, "\n") {
		rest, ok := strings.CutPrefix(strings.TrimSpace(line), "Ingredients:")
		if !ok {
			continue
		}
		var names []any
		if err := json.Unmarshal([]byte(strings.TrimSpace(rest)), &names); err != nil {
			return nil, err
		}
		return names, nil
	}
	return nil, fmt.Errorf("prompt has no Ingredients line")
}

func jsonResult(v any, toolCalls int) (models.GenerateResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return models.GenerateResult{}, err
	}
	return models.GenerateResult{Text: string(b), Model: "mock-v1", ToolCalls: toolCalls}, nil
}

// Compile-time check that MockProvider implements AIProvider.
var _ models.AIProvider = (*MockProvider)(nil)
