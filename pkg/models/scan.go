package models

import (
	"time"

	"github.com/google/uuid"
)

// ProcessedScanData is the result of one orchestration run.
type ProcessedScanData struct {
	DetailedIngredients []Ingredient         `json:"detailedIngredients"`
	Alternatives        []AlternativeProduct `json:"alternatives"`
}

// ScanResult is a persisted history entry. IDs are UUIDv7 so they sort by
// creation time.
type ScanResult struct {
	ID                    uuid.UUID            `json:"id"`
	Timestamp             time.Time            `json:"timestamp"`
	ImageURL              string               `json:"imageUrl,omitempty"`
	OriginalImageFileName string               `json:"originalImageFileName,omitempty"`
	ExtractedIngredients  []Ingredient         `json:"extractedIngredients"`
	SuggestedAlternatives []AlternativeProduct `json:"suggestedAlternatives"`
}

// NewScanResult stamps a history record for a successful run.
func NewScanResult(data ProcessedScanData, fileName, imageURL string, now time.Time) (*ScanResult, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	return &ScanResult{
		ID:                    id,
		Timestamp:             now.UTC(),
		ImageURL:              imageURL,
		OriginalImageFileName: fileName,
		ExtractedIngredients:  data.DetailedIngredients,
		SuggestedAlternatives: data.Alternatives,
	}, nil
}
