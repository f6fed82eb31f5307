package models

import "strings"

// RiskLevel is the ordinal health-concern classification of an ingredient.
type RiskLevel string

const (
	RiskLow     RiskLevel = "Low"
	RiskMedium  RiskLevel = "Medium"
	RiskHigh    RiskLevel = "High"
	RiskUnknown RiskLevel = "Unknown"
)

// ParseRiskLevel maps a model- or file-supplied label onto a RiskLevel.
// Matching is case-insensitive; ok is false for anything else.
func ParseRiskLevel(s string) (RiskLevel, bool) {
	switch {
	case strings.EqualFold(s, "low"):
		return RiskLow, true
	case strings.EqualFold(s, "medium"):
		return RiskMedium, true
	case strings.EqualFold(s, "high"):
		return RiskHigh, true
	case strings.EqualFold(s, "unknown"):
		return RiskUnknown, true
	}
	return "", false
}

// Flagged reports whether the level should trigger product alternatives.
func (r RiskLevel) Flagged() bool {
	return r == RiskMedium || r == RiskHigh
}

// Ingredient is one named substance found on a label with its risk metadata.
type Ingredient struct {
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	Purpose         string    `json:"purpose,omitempty"`
	HealthImpact    string    `json:"healthImpact"`
	RiskLevel       RiskLevel `json:"riskLevel"`
	Alternatives    []string  `json:"alternatives,omitempty"`
	SafeAlternative string    `json:"safe_alternative,omitempty"`
}

// AlternativeProduct is a whole product suggested in place of the scanned one.
type AlternativeProduct struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Reason      string `json:"reason"`
}

// Complete reports whether all required fields are populated.
func (p AlternativeProduct) Complete() bool {
	return p.Name != "" && p.Description != "" && p.Reason != ""
}
