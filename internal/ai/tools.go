package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/kiranshivaraju/labelscan/internal/knowledge"
	"github.com/kiranshivaraju/labelscan/pkg/models"
)

// Tool names offered to the model.
const (
	ToolIngredientSynonyms  = "ingredientSynonyms"
	ToolAlternativeProducts = "getAlternativeProducts"
)

// SynonymsTool looks up other names for an ingredient in kb.
func SynonymsTool(kb *knowledge.Base) models.Tool {
	return models.Tool{
		Name:        ToolIngredientSynonyms,
		Description: "Looks up common synonyms for an ingredient to improve recognition accuracy.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"ingredient": map[string]any{
					"type":        "string",
					"description": "The ingredient to find synonyms for.",
				},
			},
			"required": []string{"ingredient"},
		},
		Call: func(_ context.Context, args map[string]any) (any, error) {
			name, err := stringArg(args, "ingredient")
			if err != nil {
				return nil, err
			}
			return kb.Synonyms(name), nil
		},
	}
}

// AlternativeProductsTool builds alternative products for flagged ingredients.
func AlternativeProductsTool() models.Tool {
	return models.Tool{
		Name:        ToolAlternativeProducts,
		Description: "Suggests safer alternative products based on a list of harmful ingredients.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"ingredients": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "A list of harmful ingredients to find alternatives for.",
				},
			},
			"required": []string{"ingredients"},
		},
		Call: func(_ context.Context, args map[string]any) (any, error) {
			names, err := stringsArg(args, "ingredients")
			if err != nil {
				return nil, err
			}
			return knowledge.AlternativeProducts(names), nil
		},
	}
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("argument %q must be a non-empty string", key)
	}
	return v, nil
}

func stringsArg(args map[string]any, key string) ([]string, error) {
	raw, ok := args[key].([]any)
	if !ok {
		return nil, fmt.Errorf("argument %q must be an array of strings", key)
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("argument %q must be an array of strings", key)
		}
		out = append(out, s)
	}
	return out, nil
}
