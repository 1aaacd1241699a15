// Package compute provides Compute Provider implementations.
package compute

import (
	"context"

	"github.com/okian/boxboard/internal/domain/normalize"
)

// Func adapts a plain function to freshness.Provider.
type Func func(ctx context.Context, seasonID int, statKey string) (*normalize.ComputeResult, error)

// Compute calls f.
func (f Func) Compute(ctx context.Context, seasonID int, statKey string) (*normalize.ComputeResult, error) {
	return f(ctx, seasonID, statKey)
}
