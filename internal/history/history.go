// Package history keeps each owner's most recent scan results, newest first,
// capped at a fixed number of entries.
package history

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/labelscan/pkg/models"
)

// DefaultLimit is the number of scans kept per owner.
const DefaultLimit = 10

var ErrNotFound = errors.New("scan not found in history")

// Store is a bounded per-owner scan history. Append prepends and evicts the
// oldest entries beyond the limit. Implementations must be safe for
// concurrent use.
type Store interface {
	List(ctx context.Context, owner string) ([]models.ScanResult, error)
	Append(ctx context.Context, owner string, result models.ScanResult) error
	RemoveByID(ctx context.Context, owner string, id uuid.UUID) error
	Clear(ctx context.Context, owner string) error
}

func normalizeLimit(limit int) int {
	if limit < 1 {
		return DefaultLimit
	}
	return limit
}
