package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kiranshivaraju/labelscan/internal/api/response"
	"github.com/kiranshivaraju/labelscan/internal/knowledge"
	"github.com/kiranshivaraju/labelscan/pkg/models"
)

type ingredientResponse struct {
	Ingredient models.Ingredient `json:"ingredient"`
	Known      bool              `json:"known"`
	Synonyms   []string          `json:"synonyms"`
}

// NewIngredientHandler returns an http.HandlerFunc for
// GET /api/v1/ingredients/{name}. Unknown names return the Unknown record
// with known=false rather than 404.
func NewIngredientHandler(kb *knowledge.Base) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimSpace(chi.URLParam(r, "name"))
		if name == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "name is required", nil)
			return
		}
		response.JSON(w, ingredientResponse{
			Ingredient: kb.Lookup(name),
			Known:      kb.Known(name),
			Synonyms:   kb.Synonyms(name),
		})
	}
}
