package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kiranshivaraju/labelscan/pkg/models"
)

const (
	fallbackDescription  = "Could not retrieve information for this ingredient."
	fallbackHealthImpact = "Unable to determine health impact via AI lookup."
)

const describeSystem = `You are a helpful assistant providing information about ingredients found in cosmetic or food products.
Be factual and neutral. If there are known controversies or significant safety concerns, mention them briefly.
Respond with JSON only, in the form {"description": "...", "healthImpact": "..."}.`

// IngredientInfo is the model's free-text description of one ingredient.
type IngredientInfo struct {
	Description  string `json:"description"`
	HealthImpact string `json:"healthImpact"`
}

// Describer asks the model about ingredients the local table does not know.
type Describer struct {
	run runner
}

func NewDescriber(provider models.AIProvider, timeout time.Duration) *Describer {
	return &Describer{run: runner{provider: provider, timeout: timeout}}
}

// DescribeUnknown returns a description and health impact for name. An empty
// answer yields fixed fallback texts rather than an error.
func (d *Describer) DescribeUnknown(ctx context.Context, name string) (IngredientInfo, error) {
	prompt := fmt.Sprintf(`For the ingredient %q:
1. Provide a concise description of what it is and its common uses in these products.
2. Explain its potential health effects or impacts when used in cosmetic or food products.`, name)

	res, err := d.run.generate(ctx, "describe", models.GenerateRequest{
		System: describeSystem,
		Prompt: prompt,
		JSON:   true,
	})
	if err != nil {
		return IngredientInfo{}, fmt.Errorf("describing %q: %w", name, err)
	}

	info := IngredientInfo{}
	if strings.TrimSpace(res.Text) != "" {
		if err := decodeJSON(res.Text, &info); err != nil {
			return IngredientInfo{}, fmt.Errorf("describing %q: %w", name, err)
		}
	}

	info.Description = strings.TrimSpace(info.Description)
	info.HealthImpact = strings.TrimSpace(info.HealthImpact)
	if info.Description == "" {
		info.Description = fallbackDescription
	}
	if info.HealthImpact == "" {
		info.HealthImpact = fallbackHealthImpact
	}
	info.Description = truncateString(info.Description, maxFieldBytes)
	info.HealthImpact = truncateString(info.HealthImpact, maxFieldBytes)

	return info, nil
}
