package mock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kiranshivaraju/labelscan/internal/ai"
	"github.com/kiranshivaraju/labelscan/internal/ai/mock"
	"github.com/kiranshivaraju/labelscan/internal/knowledge"
	"github.com/kiranshivaraju/labelscan/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- NewMockProvider ---

func TestNewMockProvider_Name(t *testing.T) {
	p := mock.NewMockProvider()
	assert.Equal(t, "mock", p.Name())
}

func TestNewMockProvider_Extraction(t *testing.T) {
	p := mock.NewMockProvider()

	res, err := p.Generate(context.Background(), models.GenerateRequest{
		Tools: []models.Tool{ai.SynonymsTool(knowledge.Default())},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ingredients":["Water","Paraben","Fragrance"]}`, res.Text)
}

func TestNewMockProvider_Suggestion(t *testing.T) {
	p := mock.NewMockProvider()

	res, err := p.Generate(context.Background(), models.GenerateRequest{
		Prompt: "Ingredients: [\"Paraben\"]\nSuggest alternative products:",
		Tools:  []models.Tool{ai.AlternativeProductsTool()},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ToolCalls)
	assert.JSONEq(t, `{"alternativeProducts":[{
		"name":"Alternative to Paraben",
		"description":"This product is a safer alternative to products containing Paraben.",
		"reason":"Does not contain Paraben"}]}`, res.Text)
}

func TestNewMockProvider_SuggestionWithoutIngredientsLine(t *testing.T) {
	p := mock.NewMockProvider()

	_, err := p.Generate(context.Background(), models.GenerateRequest{
		Prompt: "no list here",
		Tools:  []models.Tool{ai.AlternativeProductsTool()},
	})
	assert.ErrorIs(t, err, ai.ErrInvalidResponse)
}

func TestNewMockProvider_OtherFlowsUnavailable(t *testing.T) {
	p := mock.NewMockProvider()

	_, err := p.Generate(context.Background(), models.GenerateRequest{Prompt: "analyze"})
	assert.ErrorIs(t, err, ai.ErrProviderUnavailable)
}

func TestMockProvider_RecordsCalls(t *testing.T) {
	p := mock.NewStaticProvider(`{}`)

	_, _ = p.Generate(context.Background(), models.GenerateRequest{Prompt: "one"})
	_, _ = p.Generate(context.Background(), models.GenerateRequest{Prompt: "two"})

	require.Equal(t, 2, p.CallCount())
	calls := p.Calls()
	assert.Equal(t, "one", calls[0].Prompt)
	assert.Equal(t, "two", calls[1].Prompt)
}

func TestMockProvider_NilFunc(t *testing.T) {
	p := &mock.MockProvider{Name_: "bare"}

	res, err := p.Generate(context.Background(), models.GenerateRequest{})
	require.NoError(t, err)
	assert.Empty(t, res.Text)
	assert.Equal(t, 1, p.CallCount())
}

// --- NewFailingProvider ---

func TestNewFailingProvider(t *testing.T) {
	sentinel := errors.New("boom")
	p := mock.NewFailingProvider(sentinel)

	_, err := p.Generate(context.Background(), models.GenerateRequest{})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, "mock-failing", p.Name())
}

// --- NewTimeoutProvider ---

func TestNewTimeoutProvider_BlocksUntilCancelled(t *testing.T) {
	p := mock.NewTimeoutProvider()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := p.Generate(ctx, models.GenerateRequest{})
	assert.ErrorIs(t, err, ai.ErrInferenceTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

// --- NewPanickingProvider ---

func TestNewPanickingProvider(t *testing.T) {
	p := mock.NewPanickingProvider()
	assert.Panics(t, func() {
		_, _ = p.Generate(context.Background(), models.GenerateRequest{})
	})
}
