package cache

import (
	"fmt"

	"github.com/google/uuid"
)

// AnalysisKey caches a batch analysis by the fingerprint of its name list.
func AnalysisKey(fingerprint string) string {
	return fmt.Sprintf("analysis:batch:%s", fingerprint)
}

// DescriptionKey caches an AI description of one normalized ingredient name.
func DescriptionKey(normalizedName string) string {
	return fmt.Sprintf("analysis:describe:%s", normalizedName)
}

func RateLimitKey(userID uuid.UUID) string {
	return fmt.Sprintf("ratelimit:%s", userID)
}

// HistoryKey holds one owner's scan history list, most recent first.
func HistoryKey(owner string) string {
	return fmt.Sprintf("scanHistory:%s", owner)
}
