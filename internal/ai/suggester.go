package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kiranshivaraju/labelscan/pkg/models"
)

const suggestSystem = `Based on the identified ingredients, suggest safer alternative products.
Use the getAlternativeProducts tool to find the alternatives.
Respond with JSON only, in the form {"alternativeProducts": [{"name": "...", "description": "...", "reason": "..."}]}.`

// Suggester proposes whole products to use instead of the scanned one.
type Suggester struct {
	run runner
}

func NewSuggester(provider models.AIProvider, timeout time.Duration) *Suggester {
	return &Suggester{run: runner{provider: provider, timeout: timeout}}
}

type suggestAnswer struct {
	AlternativeProducts []models.AlternativeProduct `json:"alternativeProducts"`
}

// Suggest returns alternative products for the given ingredient names.
// Incomplete suggestions are discarded. An empty input makes no model call.
func (s *Suggester) Suggest(ctx context.Context, ingredients []string) ([]models.AlternativeProduct, error) {
	if len(ingredients) == 0 {
		return []models.AlternativeProduct{}, nil
	}

	list, err := json.Marshal(ingredients)
	if err != nil {
		return nil, fmt.Errorf("encoding ingredients: %w", err)
	}

	res, err := s.run.generate(ctx, "suggest", models.GenerateRequest{
		System: suggestSystem,
		Prompt: fmt.Sprintf("Ingredients: %s\nSuggest alternative products:", list),
		Tools:  []models.Tool{AlternativeProductsTool()},
		JSON:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("suggesting alternatives: %w", err)
	}

	var answer suggestAnswer
	if err := decodeJSON(res.Text, &answer); err != nil {
		return nil, fmt.Errorf("suggesting alternatives: %w", err)
	}

	out := make([]models.AlternativeProduct, 0, len(answer.AlternativeProducts))
	for _, p := range answer.AlternativeProducts {
		if !p.Complete() {
			continue
		}
		p.Name = truncateString(p.Name, maxFieldBytes)
		p.Description = truncateString(p.Description, maxFieldBytes)
		p.Reason = truncateString(p.Reason, maxFieldBytes)
		out = append(out, p)
	}
	return out, nil
}
