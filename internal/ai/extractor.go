package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kiranshivaraju/labelscan/internal/knowledge"
	"github.com/kiranshivaraju/labelscan/pkg/models"
)

const extractSystem = `You are an AI assistant that extracts ingredients from a product label image.
Analyze the image of the product label and extract the list of ingredients in the order they appear.
Use the ingredientSynonyms tool to improve ingredient recognition by finding common synonyms.
Respond with JSON only, in the form {"ingredients": ["<name>", ...]}.
If the image contains no ingredient list, respond with {"ingredients": []}.`

// Extractor reads ingredient names off a label photo.
type Extractor struct {
	run runner
	kb  *knowledge.Base
}

// NewExtractor creates an Extractor. Each call is bounded by timeout.
func NewExtractor(provider models.AIProvider, kb *knowledge.Base, timeout time.Duration) *Extractor {
	return &Extractor{run: runner{provider: provider, timeout: timeout}, kb: kb}
}

type extractAnswer struct {
	Ingredients *[]string `json:"ingredients"`
}

// Extract returns the ingredient names in label order. An image with no
// readable ingredients yields an empty slice and no error.
func (e *Extractor) Extract(ctx context.Context, photoDataURI string) ([]string, error) {
	img, err := ParseDataURI(photoDataURI)
	if err != nil {
		return nil, err
	}

	res, err := e.run.generate(ctx, "extract", models.GenerateRequest{
		System: extractSystem,
		Prompt: "Extract the ingredients from this product label.",
		Image:  img,
		Tools:  []models.Tool{SynonymsTool(e.kb)},
		JSON:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("extracting ingredients: %w", err)
	}

	var answer extractAnswer
	if err := decodeJSON(res.Text, &answer); err != nil {
		return nil, fmt.Errorf("extracting ingredients: %w", err)
	}
	if answer.Ingredients == nil {
		return nil, fmt.Errorf("extracting ingredients: %w: missing ingredients field", ErrInvalidResponse)
	}

	names := make([]string, 0, len(*answer.Ingredients))
	for _, n := range *answer.Ingredients {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		names = append(names, truncateString(n, maxFieldBytes))
	}
	return names, nil
}
