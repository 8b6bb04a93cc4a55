package middleware

import (
	"context"

	"voxd/internal/license"
)

// VerdictSource supplies the current license verdict. *license.Cache is
// the production implementation; tests substitute canned verdicts.
type VerdictSource interface {
	Status(ctx context.Context) *license.Verdict
}
