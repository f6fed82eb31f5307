package ai

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kiranshivaraju/labelscan/internal/cache"
	"github.com/kiranshivaraju/labelscan/internal/knowledge"
	"github.com/kiranshivaraju/labelscan/internal/metrics"
	"github.com/kiranshivaraju/labelscan/pkg/models"
)

const (
	ModeBatch  = "batch"
	ModeHybrid = "hybrid"
)

// Analyzer turns extracted ingredient names into risk-annotated records.
// Implementations never return an error; failures degrade the output instead.
type Analyzer interface {
	Analyze(ctx context.Context, names []string) []models.Ingredient
	Mode() string
}

// Fingerprint identifies an ordered list of ingredient names regardless of
// case and surrounding whitespace.
func Fingerprint(names []string) string {
	h := sha256.New()
	for _, n := range names {
		h.Write([]byte(knowledge.Normalize(n)))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

const batchSystem = `You are a health and cosmetic ingredient analyst.
Given a list of product ingredients, return a JSON array with one object per ingredient, in the same order, each containing:
- "ingredient": the name of the ingredient exactly as given
- "description": a concise description of what the ingredient is
- "purpose": what it is used for in the product
- "risk_level": "Low", "Medium" or "High"
- "health_impact": a short explanation of its health effect
- "safe_alternative": a safer alternative ingredient if one is commonly known, otherwise an empty string
Example element:
{"ingredient": "Parabens", "description": "A class of widely used preservatives.", "purpose": "Preservative to prevent growth of bacteria and mold.", "risk_level": "High", "health_impact": "May disrupt hormones and cause allergic reactions.", "safe_alternative": "Phenoxyethanol"}
Respond with JSON only.`

type batchItem struct {
	Ingredient      string `json:"ingredient"`
	Description     string `json:"description"`
	Purpose         string `json:"purpose"`
	RiskLevel       string `json:"risk_level"`
	HealthImpact    string `json:"health_impact"`
	SafeAlternative string `json:"safe_alternative"`
}

// BatchAnalyzer classifies every name with a single model call.
type BatchAnalyzer struct {
	run   runner
	cache cache.Cache
	ttl   time.Duration
}

// NewBatchAnalyzer creates a BatchAnalyzer. ca may be nil to disable caching.
func NewBatchAnalyzer(provider models.AIProvider, ca cache.Cache, ttl, timeout time.Duration) *BatchAnalyzer {
	return &BatchAnalyzer{
		run:   runner{provider: provider, timeout: timeout},
		cache: ca,
		ttl:   ttl,
	}
}

func (a *BatchAnalyzer) Mode() string { return ModeBatch }

// Analyze returns one record per name in input order, or an empty slice if
// the model call fails, panics or its answer cannot be trusted.
func (a *BatchAnalyzer) Analyze(ctx context.Context, names []string) (result []models.Ingredient) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic during batch analysis", "ingredients", len(names), "panic", r)
			metrics.AnalysisDegradedTotal.WithLabelValues(ModeBatch).Inc()
			result = []models.Ingredient{}
		}
	}()

	if len(names) == 0 {
		return []models.Ingredient{}
	}

	key := cache.AnalysisKey(Fingerprint(names))
	if a.cache != nil {
		var cached []models.Ingredient
		found, err := cache.GetJSON(ctx, a.cache, key, &cached)
		if err != nil {
			slog.Warn("reading analysis cache", "error", err)
		}
		if found && len(cached) == len(names) {
			for i := range cached {
				cached[i].Name = names[i]
			}
			return cached
		}
	}

	out, complete, err := a.analyze(ctx, names)
	if err != nil {
		slog.Error("batch analysis failed", "ingredients", len(names), "error", err)
		metrics.AnalysisDegradedTotal.WithLabelValues(ModeBatch).Inc()
		return []models.Ingredient{}
	}
	if !complete {
		metrics.AnalysisDegradedTotal.WithLabelValues(ModeBatch).Inc()
		return out
	}

	if a.cache != nil {
		if err := cache.SetJSON(ctx, a.cache, key, out, a.ttl); err != nil {
			slog.Warn("writing analysis cache", "error", err)
		}
	}
	return out
}

func (a *BatchAnalyzer) analyze(ctx context.Context, names []string) ([]models.Ingredient, bool, error) {
	var prompt strings.Builder
	prompt.WriteString("Ingredients to analyze:\n")
	for _, n := range names {
		prompt.WriteString("- ")
		prompt.WriteString(n)
		prompt.WriteString("\n")
	}

	res, err := a.run.generate(ctx, "analyze", models.GenerateRequest{
		System: batchSystem,
		Prompt: prompt.String(),
		JSON:   true,
	})
	if err != nil {
		return nil, false, err
	}

	items, err := decodeBatch(res.Text)
	if err != nil {
		return nil, false, err
	}
	risks := make([]models.RiskLevel, len(items))
	for i, it := range items {
		risk, ok := models.ParseRiskLevel(strings.TrimSpace(it.RiskLevel))
		if !ok || risk == models.RiskUnknown {
			return nil, false, fmt.Errorf("%w: ingredient %q has risk_level %q", ErrInvalidResponse, it.Ingredient, it.RiskLevel)
		}
		risks[i] = risk
	}

	matched := matchItems(names, items)
	out := make([]models.Ingredient, len(names))
	complete := true
	for i, name := range names {
		j := matched[i]
		if j < 0 {
			slog.Warn("batch analysis omitted ingredient", "ingredient", name)
			out[i] = knowledge.Unknown(name)
			complete = false
			continue
		}
		it := items[j]
		out[i] = models.Ingredient{
			Name:            name,
			Description:     truncateString(strings.TrimSpace(it.Description), maxFieldBytes),
			Purpose:         truncateString(strings.TrimSpace(it.Purpose), maxFieldBytes),
			HealthImpact:    truncateString(strings.TrimSpace(it.HealthImpact), maxFieldBytes),
			RiskLevel:       risks[j],
			SafeAlternative: truncateString(strings.TrimSpace(it.SafeAlternative), maxFieldBytes),
		}
	}
	return out, complete, nil
}

// matchItems maps each input position to an answer element, or -1. The
// element at the same position wins when its name agrees or is blank; the
// first unused element with the same normalized name comes next. When the
// answer has exactly as many elements as the input, position is trusted
// outright as a last resort.
func matchItems(names []string, items []batchItem) []int {
	byName := make(map[string][]int, len(items))
	for j, it := range items {
		n := knowledge.Normalize(it.Ingredient)
		byName[n] = append(byName[n], j)
	}

	used := make([]bool, len(items))
	out := make([]int, len(names))
	for i := range out {
		out[i] = -1
	}

	// Positional pass first so that name matches cannot steal a slot.
	for i, name := range names {
		if i >= len(items) {
			break
		}
		n := knowledge.Normalize(items[i].Ingredient)
		if n == "" || n == knowledge.Normalize(name) {
			out[i] = i
			used[i] = true
		}
	}

	for i, name := range names {
		if out[i] >= 0 {
			continue
		}
		for _, j := range byName[knowledge.Normalize(name)] {
			if !used[j] {
				out[i] = j
				used[j] = true
				break
			}
		}
	}

	if len(items) == len(names) {
		for i := range names {
			if out[i] < 0 && !used[i] {
				out[i] = i
				used[i] = true
			}
		}
	}
	return out
}

// decodeBatch accepts a bare JSON array or an object wrapping one, which is
// what JSON-object response modes produce.
func decodeBatch(text string) ([]batchItem, error) {
	cleaned := stripFences(text)
	if strings.HasPrefix(cleaned, "[") {
		var items []batchItem
		if err := decodeJSON(cleaned, &items); err != nil {
			return nil, err
		}
		return items, nil
	}

	var wrapper map[string]json.RawMessage
	if err := decodeJSON(cleaned, &wrapper); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(wrapper))
	for k := range wrapper {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	// Prefer the conventional key, then any array-valued field.
	keys = append([]string{"ingredients"}, keys...)
	for _, k := range keys {
		raw, ok := wrapper[k]
		if !ok || !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) {
			continue
		}
		var items []batchItem
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		return items, nil
	}
	return nil, fmt.Errorf("%w: answer holds no ingredient array", ErrInvalidResponse)
}

// HybridAnalyzer answers from the local table and asks the model only about
// names the table does not hold.
type HybridAnalyzer struct {
	kb          *knowledge.Base
	describer   *Describer
	cache       cache.Cache
	ttl         time.Duration
	concurrency int
}

// NewHybridAnalyzer creates a HybridAnalyzer running at most concurrency
// model lookups at once. ca may be nil to disable caching.
func NewHybridAnalyzer(kb *knowledge.Base, describer *Describer, ca cache.Cache, ttl time.Duration, concurrency int) *HybridAnalyzer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &HybridAnalyzer{
		kb:          kb,
		describer:   describer,
		cache:       ca,
		ttl:         ttl,
		concurrency: concurrency,
	}
}

func (a *HybridAnalyzer) Mode() string { return ModeHybrid }

// Analyze returns exactly one record per name in input order. Names missing
// from the table keep RiskLevel Unknown; a failed lookup leaves the local
// Unknown texts in place.
func (a *HybridAnalyzer) Analyze(ctx context.Context, names []string) []models.Ingredient {
	out := make([]models.Ingredient, len(names))
	var misses []int
	for i, name := range names {
		out[i] = a.kb.Lookup(name)
		if out[i].RiskLevel == models.RiskUnknown {
			misses = append(misses, i)
		}
	}
	if len(misses) == 0 || a.describer == nil {
		return out
	}

	var g errgroup.Group
	g.SetLimit(a.concurrency)
	failed := make([]bool, len(misses))
	for k, i := range misses {
		g.Go(func() error {
			info, ok := a.describe(ctx, names[i])
			if !ok {
				failed[k] = true
				return nil
			}
			out[i].Description = info.Description
			out[i].HealthImpact = info.HealthImpact
			return nil
		})
	}
	_ = g.Wait()

	for _, f := range failed {
		if f {
			metrics.AnalysisDegradedTotal.WithLabelValues(ModeHybrid).Inc()
			break
		}
	}
	return out
}

func (a *HybridAnalyzer) describe(ctx context.Context, name string) (info IngredientInfo, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic describing ingredient", "ingredient", name, "error", r)
			ok = false
		}
	}()

	norm := knowledge.Normalize(name)
	if norm == "" {
		return IngredientInfo{}, false
	}
	key := cache.DescriptionKey(norm)

	if a.cache != nil {
		found, err := cache.GetJSON(ctx, a.cache, key, &info)
		if err != nil {
			slog.Warn("reading description cache", "ingredient", name, "error", err)
		}
		if found {
			return info, true
		}
	}

	info, err := a.describer.DescribeUnknown(ctx, name)
	if err != nil {
		slog.Warn("describing unknown ingredient failed", "ingredient", name, "error", err)
		return IngredientInfo{}, false
	}

	if a.cache != nil {
		if err := cache.SetJSON(ctx, a.cache, key, info, a.ttl); err != nil {
			slog.Warn("writing description cache", "ingredient", name, "error", err)
		}
	}
	return info, true
}
