package ai_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/kiranshivaraju/labelscan/internal/ai"
	"github.com/kiranshivaraju/labelscan/internal/ai/llm"
	"github.com/kiranshivaraju/labelscan/internal/ai/mock"
	"github.com/kiranshivaraju/labelscan/internal/knowledge"
	"github.com/kiranshivaraju/labelscan/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngURI = ai.EncodeDataURI("image/png", []byte("fake-png-bytes"))

func TestExtract_Success(t *testing.T) {
	p := mock.NewStaticProvider("```json\n{\"ingredients\": [\" Water \", \"\", \"Paraben\", \"  \", \"Fragrance\"]}\n```")
	ex := ai.NewExtractor(p, knowledge.Default(), time.Second)

	names, err := ex.Extract(context.Background(), pngURI)
	require.NoError(t, err)
	assert.Equal(t, []string{"Water", "Paraben", "Fragrance"}, names)

	require.Equal(t, 1, p.CallCount())
	req := p.Calls()[0]
	require.NotNil(t, req.Image)
	assert.Equal(t, "image/png", req.Image.MIMEType)
	assert.Equal(t, []byte("fake-png-bytes"), req.Image.Data)
	assert.True(t, req.JSON)
	require.Len(t, req.Tools, 1)
	assert.Equal(t, ai.ToolIngredientSynonyms, req.Tools[0].Name)
}

func TestExtract_EmptyListIsNotAnError(t *testing.T) {
	p := mock.NewStaticProvider(`{"ingredients": []}`)
	ex := ai.NewExtractor(p, knowledge.Default(), time.Second)

	names, err := ex.Extract(context.Background(), pngURI)
	require.NoError(t, err)
	assert.NotNil(t, names)
	assert.Empty(t, names)
}

func TestExtract_InvalidDataURI_NoCall(t *testing.T) {
	p := mock.NewMockProvider()
	ex := ai.NewExtractor(p, knowledge.Default(), time.Second)

	_, err := ex.Extract(context.Background(), "https://example.com/label.png")
	assert.ErrorIs(t, err, ai.ErrInvalidDataURI)
	assert.Zero(t, p.CallCount())
}

func TestExtract_ProviderError(t *testing.T) {
	p := mock.NewFailingProvider(ai.ErrProviderUnavailable)
	ex := ai.NewExtractor(p, knowledge.Default(), time.Second)

	_, err := ex.Extract(context.Background(), pngURI)
	assert.ErrorIs(t, err, ai.ErrProviderUnavailable)
}

func TestExtract_UnparseableAnswer(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"prose", "I see Water and Paraben."},
		{"missing field", `{"items": ["Water"]}`},
		{"wrong type", `{"ingredients": "Water"}`},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := ai.NewExtractor(mock.NewStaticProvider(tt.text), knowledge.Default(), time.Second)
			_, err := ex.Extract(context.Background(), pngURI)
			assert.ErrorIs(t, err, ai.ErrInvalidResponse)
		})
	}
}

func TestExtract_Timeout(t *testing.T) {
	ex := ai.NewExtractor(mock.NewTimeoutProvider(), knowledge.Default(), 20*time.Millisecond)

	_, err := ex.Extract(context.Background(), pngURI)
	assert.ErrorIs(t, err, ai.ErrInferenceTimeout)
}

func TestExtract_DeadlineWithUnclassifiedError(t *testing.T) {
	p := &mock.MockProvider{
		Name_: "slow",
		GenerateFunc: func(ctx context.Context, _ models.GenerateRequest) (models.GenerateResult, error) {
			<-ctx.Done()
			return models.GenerateResult{}, errors.New("connection reset")
		},
	}
	ex := ai.NewExtractor(p, knowledge.Default(), 20*time.Millisecond)

	_, err := ex.Extract(context.Background(), pngURI)
	assert.ErrorIs(t, err, ai.ErrInferenceTimeout)
}

func TestExtract_SynonymsToolServesKnowledgeBase(t *testing.T) {
	var toolOut string
	p := &mock.MockProvider{
		Name_: "tool-user",
		GenerateFunc: func(ctx context.Context, req models.GenerateRequest) (models.GenerateResult, error) {
			toolOut = llm.CallTool(ctx, req.Tools, ai.ToolIngredientSynonyms, map[string]any{"ingredient": "SLES"})
			return models.GenerateResult{Text: `{"ingredients": ["SLES"]}`, ToolCalls: 1}, nil
		},
	}
	ex := ai.NewExtractor(p, knowledge.Default(), time.Second)

	names, err := ex.Extract(context.Background(), pngURI)
	require.NoError(t, err)
	assert.Equal(t, []string{"SLES"}, names)

	var synonyms []string
	require.NoError(t, json.Unmarshal([]byte(toolOut), &synonyms))
	assert.Equal(t, []string{"Sodium Laureth Sulfate", "Sodium Lauryl Ether Sulfate"}, synonyms)
}

func TestSynonymsTool_BadArguments(t *testing.T) {
	tool := ai.SynonymsTool(knowledge.Default())

	_, err := tool.Call(context.Background(), map[string]any{})
	assert.Error(t, err)

	_, err = tool.Call(context.Background(), map[string]any{"ingredient": 42})
	assert.Error(t, err)
}

func TestAlternativeProductsTool(t *testing.T) {
	tool := ai.AlternativeProductsTool()

	out, err := tool.Call(context.Background(), map[string]any{"ingredients": []any{"Talc"}})
	require.NoError(t, err)
	products, ok := out.([]models.AlternativeProduct)
	require.True(t, ok)
	require.Len(t, products, 1)
	assert.Equal(t, "Alternative to Talc", products[0].Name)

	_, err = tool.Call(context.Background(), map[string]any{"ingredients": []any{1}})
	assert.Error(t, err)
	_, err = tool.Call(context.Background(), map[string]any{"ingredients": "Talc"})
	assert.Error(t, err)
}
