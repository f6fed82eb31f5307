package scan_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kiranshivaraju/labelscan/internal/ai"
	"github.com/kiranshivaraju/labelscan/internal/ai/mock"
	"github.com/kiranshivaraju/labelscan/internal/knowledge"
	"github.com/kiranshivaraju/labelscan/internal/scan"
	"github.com/kiranshivaraju/labelscan/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// --- helpers ---

func labelPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func pngFile(t *testing.T) scan.ImageFile {
	return scan.ImageFile{FileName: "label.png", ContentType: "image/png", Data: labelPNG(t)}
}

// recorder collects transitions.
type recorder struct {
	mu     sync.Mutex
	states []scan.State
}

func (r *recorder) OnTransition(_, to scan.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, to)
}

func (r *recorder) seen() []scan.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]scan.State(nil), r.states...)
}

func newHybridService(p models.AIProvider) *scan.Service {
	kb := knowledge.Default()
	return scan.NewService(
		ai.NewExtractor(p, kb, time.Second),
		ai.NewHybridAnalyzer(kb, ai.NewDescriber(p, time.Second), nil, time.Hour, 4),
		ai.NewSuggester(p, time.Second),
	)
}

func newBatchService(p models.AIProvider) *scan.Service {
	kb := knowledge.Default()
	return scan.NewService(
		ai.NewExtractor(p, kb, time.Second),
		ai.NewBatchAnalyzer(p, nil, time.Hour, time.Second),
		ai.NewSuggester(p, time.Second),
	)
}

func hasTool(req models.GenerateRequest, name string) bool {
	for _, tl := range req.Tools {
		if tl.Name == name {
			return true
		}
	}
	return false
}

// scripted answers each flow from the given texts. An empty text for a flow
// makes that flow fail.
func scripted(extract, analyze string) *mock.MockProvider {
	return &mock.MockProvider{
		Name_: "scripted",
		GenerateFunc: func(ctx context.Context, req models.GenerateRequest) (models.GenerateResult, error) {
			switch {
			case hasTool(req, ai.ToolIngredientSynonyms):
				if extract == "" {
					return models.GenerateResult{}, ai.ErrProviderUnavailable
				}
				return models.GenerateResult{Text: extract}, nil
			case hasTool(req, ai.ToolAlternativeProducts):
				return mock.NewMockProvider().GenerateFunc(ctx, req)
			default:
				if analyze == "" {
					return models.GenerateResult{}, ai.ErrProviderUnavailable
				}
				return models.GenerateResult{Text: analyze}, nil
			}
		},
	}
}

func suggestCalls(p *mock.MockProvider) []models.GenerateRequest {
	var out []models.GenerateRequest
	for _, c := range p.Calls() {
		if hasTool(c, ai.ToolAlternativeProducts) {
			out = append(out, c)
		}
	}
	return out
}

// --- end to end ---

func TestProcessImage_WaterParabenFragrance(t *testing.T) {
	p := mock.NewMockProvider()
	svc := newHybridService(p)
	rec := &recorder{}

	out := svc.ProcessImage(context.Background(), pngFile(t), rec)

	require.True(t, out.OK(), "error: %s", out.Error)
	assert.Empty(t, out.Error)
	assert.Equal(t, scan.KindNone, out.Kind)
	assert.Equal(t, scan.MsgSuccess, out.Message)

	ings := out.Data.DetailedIngredients
	require.Len(t, ings, 3)
	assert.Equal(t, "Water", ings[0].Name)
	assert.Equal(t, models.RiskLow, ings[0].RiskLevel)
	assert.Equal(t, models.RiskMedium, ings[1].RiskLevel)
	assert.Equal(t, models.RiskHigh, ings[2].RiskLevel)

	calls := suggestCalls(p)
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, `Ingredients: ["Paraben","Fragrance"]`)
	require.Len(t, out.Data.Alternatives, 2)
	assert.Equal(t, "Alternative to Paraben", out.Data.Alternatives[0].Name)

	assert.Equal(t, []scan.State{
		scan.StateValidating,
		scan.StateExtracting,
		scan.StateAnalyzing,
		scan.StateSuggestingAlternatives,
		scan.StateDone,
	}, rec.seen())
	require.NotNil(t, out.Image)
	assert.Equal(t, "image/png", out.Image.MIMEType)
}

func TestProcessImage_BatchMode(t *testing.T) {
	p := scripted(`{"ingredients": ["Aqua", "Butylparaben"]}`, `[
		{"ingredient": "Aqua", "description": "Water.", "purpose": "Solvent", "risk_level": "Low", "health_impact": "Safe."},
		{"ingredient": "Butylparaben", "description": "Preservative.", "purpose": "Preserve", "risk_level": "High", "health_impact": "Endocrine.", "safe_alternative": "Sorbic acid"}
	]`)
	svc := newBatchService(p)

	out := svc.ProcessImage(context.Background(), pngFile(t))

	require.True(t, out.OK())
	ings := out.Data.DetailedIngredients
	require.Len(t, ings, 2)
	assert.Equal(t, "Sorbic acid", ings[1].SafeAlternative)

	calls := suggestCalls(p)
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, `Ingredients: ["Butylparaben"]`)
}

func TestProcessImage_AllLowSkipsSuggester(t *testing.T) {
	p := mock.NewOfflineProvider([]string{"Water", "Glycerin", "Citric Acid"})
	svc := newHybridService(p)
	rec := &recorder{}

	out := svc.ProcessImage(context.Background(), pngFile(t), rec)

	require.True(t, out.OK())
	assert.NotNil(t, out.Data.Alternatives)
	assert.Empty(t, out.Data.Alternatives)
	assert.Empty(t, suggestCalls(p))
	assert.NotContains(t, rec.seen(), scan.StateSuggestingAlternatives)
}

func TestProcessImage_UnknownIngredientsDoNotTriggerSuggester(t *testing.T) {
	p := mock.NewOfflineProvider([]string{"Bakuchiol"})
	svc := newHybridService(p)

	out := svc.ProcessImage(context.Background(), pngFile(t))

	require.True(t, out.OK())
	require.Len(t, out.Data.DetailedIngredients, 1)
	assert.Equal(t, models.RiskUnknown, out.Data.DetailedIngredients[0].RiskLevel)
	assert.Empty(t, suggestCalls(p))
}

// --- validation ---

// hugePNGHeader is a PNG signature plus an IHDR chunk declaring a
// 10000x10000 RGBA image, with no pixel data.
func hugePNGHeader() []byte {
	chunk := []byte("IHDR\x00\x00\x27\x10\x00\x00\x27\x10\x08\x06\x00\x00\x00")
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(chunk)-4))
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestProcessImage_InvalidInputMakesNoProviderCalls(t *testing.T) {
	tests := []struct {
		name string
		file scan.ImageFile
		msg  string
	}{
		{"no file", scan.ImageFile{}, scan.MsgEmptyFile},
		{"empty file", scan.ImageFile{FileName: "a.png", ContentType: "image/png", Data: []byte{}}, scan.MsgEmptyFile},
		{"not an image type", scan.ImageFile{FileName: "a.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4")}, scan.MsgInvalidType},
		{"corrupt image", scan.ImageFile{FileName: "a.png", ContentType: "image/png", Data: []byte("\x89PNG\r\n\x1a\ncorrupt")}, scan.MsgCorruptImage},
		{"unsupported image", scan.ImageFile{FileName: "a.png", ContentType: "image/png", Data: []byte("plain text pretending")}, scan.MsgUnsupportedImage},
		{"oversized dimensions", scan.ImageFile{FileName: "a.png", ContentType: "image/png", Data: hugePNGHeader()}, scan.MsgImageTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mock.NewMockProvider()
			rec := &recorder{}

			out := newHybridService(p).ProcessImage(context.Background(), tt.file, rec)

			assert.False(t, out.OK())
			assert.Nil(t, out.Data)
			assert.Equal(t, scan.KindInvalidInput, out.Kind)
			assert.Equal(t, tt.msg, out.Error)
			assert.ErrorIs(t, out.Err, scan.ErrInvalidInput)
			assert.Zero(t, p.CallCount())
			assert.Equal(t, []scan.State{scan.StateValidating, scan.StateError}, rec.seen())
		})
	}
}

// --- extraction failures ---

func TestProcessImage_ExtractionError(t *testing.T) {
	p := scripted("", "")
	rec := &recorder{}

	out := newHybridService(p).ProcessImage(context.Background(), pngFile(t), rec)

	assert.Nil(t, out.Data)
	assert.Equal(t, scan.KindExtractionFailed, out.Kind)
	assert.Equal(t, scan.MsgUnexpected, out.Error)
	assert.ErrorIs(t, out.Err, scan.ErrExtractionFailed)
	assert.ErrorIs(t, out.Err, ai.ErrProviderUnavailable)
	assert.Equal(t, []scan.State{scan.StateValidating, scan.StateExtracting, scan.StateError}, rec.seen())
}

func TestProcessImage_ExtractionTimeout(t *testing.T) {
	kb := knowledge.Default()
	p := mock.NewTimeoutProvider()
	svc := scan.NewService(
		ai.NewExtractor(p, kb, 20*time.Millisecond),
		ai.NewHybridAnalyzer(kb, nil, nil, time.Hour, 1),
		ai.NewSuggester(p, 20*time.Millisecond),
	)

	out := svc.ProcessImage(context.Background(), pngFile(t))

	assert.Equal(t, scan.KindExtractionFailed, out.Kind)
	assert.Equal(t, scan.MsgUnexpected, out.Error)
	assert.ErrorIs(t, out.Err, ai.ErrInferenceTimeout)
}

func TestProcessImage_NoIngredients(t *testing.T) {
	p := scripted(`{"ingredients": []}`, "")

	out := newHybridService(p).ProcessImage(context.Background(), pngFile(t))

	assert.Nil(t, out.Data)
	assert.Equal(t, scan.KindNoIngredients, out.Kind)
	assert.Equal(t, scan.MsgNoIngredients, out.Error)
	assert.ErrorIs(t, out.Err, scan.ErrNoIngredients)
	assert.Equal(t, 1, p.CallCount())
}

// --- degradation ---

func TestProcessImage_AnalysisFailsEntirely(t *testing.T) {
	p := scripted(`{"ingredients": ["Water", "Paraben"]}`, "")

	out := newBatchService(p).ProcessImage(context.Background(), pngFile(t))

	require.True(t, out.OK())
	assert.Empty(t, out.Error)
	assert.NotNil(t, out.Data.DetailedIngredients)
	assert.Empty(t, out.Data.DetailedIngredients)
	assert.Empty(t, out.Data.Alternatives)
	assert.Empty(t, suggestCalls(p))

	b, err := json.Marshal(out.Data)
	require.NoError(t, err)
	assert.JSONEq(t, `{"detailedIngredients": [], "alternatives": []}`, string(b))
}

func TestProcessImage_BatchAnalysisPanicDegrades(t *testing.T) {
	p := scripted(`{"ingredients": ["Water", "Paraben"]}`, "")
	extract := p.GenerateFunc
	p.GenerateFunc = func(ctx context.Context, req models.GenerateRequest) (models.GenerateResult, error) {
		if hasTool(req, ai.ToolIngredientSynonyms) {
			return extract(ctx, req)
		}
		panic("analysis blew up")
	}
	rec := &recorder{}

	out := newBatchService(p).ProcessImage(context.Background(), pngFile(t), rec)

	require.True(t, out.OK())
	require.NotNil(t, out.Data)
	assert.NotNil(t, out.Data.DetailedIngredients)
	assert.Empty(t, out.Data.DetailedIngredients)
	assert.Empty(t, out.Data.Alternatives)
	assert.NotContains(t, rec.seen(), scan.StateError)
	assert.Equal(t, scan.StateDone, rec.seen()[len(rec.seen())-1])
}

type stubExtractor struct{ names []string }

func (s stubExtractor) Extract(_ context.Context, uri string) ([]string, error) {
	if !strings.HasPrefix(uri, "data:image/") {
		return nil, errors.New("bad uri")
	}
	return s.names, nil
}

type stubAnalyzer struct {
	fn func(names []string) []models.Ingredient
}

func (s stubAnalyzer) Analyze(_ context.Context, names []string) []models.Ingredient {
	return s.fn(names)
}

type stubSuggester struct {
	products []models.AlternativeProduct
	err      error
	panics   bool
	got      [][]string
}

func (s *stubSuggester) Suggest(_ context.Context, names []string) ([]models.AlternativeProduct, error) {
	s.got = append(s.got, names)
	if s.panics {
		panic("suggester exploded")
	}
	return s.products, s.err
}

func riskAnalyzer(levels ...models.RiskLevel) stubAnalyzer {
	return stubAnalyzer{fn: func(names []string) []models.Ingredient {
		out := make([]models.Ingredient, len(names))
		for i, n := range names {
			out[i] = models.Ingredient{Name: n, RiskLevel: levels[i]}
		}
		return out
	}}
}

func TestProcessImage_SuggesterReceivesOnlyFlaggedNames(t *testing.T) {
	sg := &stubSuggester{products: []models.AlternativeProduct{{Name: "n", Description: "d", Reason: "r"}}}
	svc := scan.NewService(
		stubExtractor{names: []string{"A", "B", "C", "D"}},
		riskAnalyzer(models.RiskLow, models.RiskHigh, models.RiskUnknown, models.RiskMedium),
		sg,
	)

	out := svc.ProcessImage(context.Background(), pngFile(t))

	require.True(t, out.OK())
	assert.Equal(t, [][]string{{"B", "D"}}, sg.got)
	assert.Len(t, out.Data.Alternatives, 1)
}

func TestProcessImage_SuggesterFailureIsAbsorbed(t *testing.T) {
	for _, sg := range []*stubSuggester{
		{err: ai.ErrProviderUnavailable},
		{panics: true},
		{products: nil},
	} {
		svc := scan.NewService(stubExtractor{names: []string{"A"}}, riskAnalyzer(models.RiskHigh), sg)

		out := svc.ProcessImage(context.Background(), pngFile(t))

		require.True(t, out.OK())
		assert.Empty(t, out.Error)
		assert.NotNil(t, out.Data.Alternatives)
		assert.Empty(t, out.Data.Alternatives)
	}
}

func TestProcessImage_NilAnalysisBecomesEmpty(t *testing.T) {
	svc := scan.NewService(
		stubExtractor{names: []string{"A"}},
		stubAnalyzer{fn: func([]string) []models.Ingredient { return nil }},
		&stubSuggester{},
	)

	out := svc.ProcessImage(context.Background(), pngFile(t))

	require.True(t, out.OK())
	assert.NotNil(t, out.Data.DetailedIngredients)
	assert.Empty(t, out.Data.DetailedIngredients)
}

// --- unexpected failures ---

func TestProcessImage_AnalyzerPanicIsRecovered(t *testing.T) {
	svc := scan.NewService(
		stubExtractor{names: []string{"A"}},
		stubAnalyzer{fn: func([]string) []models.Ingredient { panic("analyzer exploded") }},
		&stubSuggester{},
	)
	rec := &recorder{}

	var out scan.Outcome
	require.NotPanics(t, func() {
		out = svc.ProcessImage(context.Background(), pngFile(t), rec)
	})

	assert.Nil(t, out.Data)
	assert.Equal(t, scan.KindInternal, out.Kind)
	assert.Equal(t, scan.MsgUnexpected, out.Error)
	assert.ErrorIs(t, out.Err, scan.ErrInternal)
	seen := rec.seen()
	assert.Equal(t, scan.StateError, seen[len(seen)-1])
}

func TestProcessImage_ProviderPanicDuringExtraction(t *testing.T) {
	out := newHybridService(mock.NewPanickingProvider()).ProcessImage(context.Background(), pngFile(t))

	assert.Equal(t, scan.KindInternal, out.Kind)
	assert.Equal(t, scan.MsgUnexpected, out.Error)
}

func TestProcessImage_PanickingObserver(t *testing.T) {
	svc := newHybridService(mock.NewMockProvider())
	obs := scan.ObserverFunc(func(_, to scan.State) {
		if to == scan.StateAnalyzing {
			panic("observer exploded")
		}
	})

	out := svc.ProcessImage(context.Background(), pngFile(t), obs)

	assert.Equal(t, scan.KindInternal, out.Kind)
}

func TestProcessImage_ConcurrentRuns(t *testing.T) {
	svc := newHybridService(mock.NewMockProvider())
	file := pngFile(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := svc.ProcessImage(context.Background(), file)
			assert.True(t, out.OK())
			assert.Len(t, out.Data.DetailedIngredients, 3)
		}()
	}
	wg.Wait()
}

func TestOutcome_JSON(t *testing.T) {
	out := scan.Outcome{Error: scan.MsgNoIngredients, Kind: scan.KindNoIngredients, Err: scan.ErrNoIngredients}
	b, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"data": null, "error": "`+scan.MsgNoIngredients+`", "kind": "no_ingredients"}`, string(b))
}
