// Package guide is a narrow seam for the trip-narration companion. The
// narration feature itself lives outside this engine; Companion gives the
// LLM timeout (default 25s) and the surrounding config knobs a home so a
// real implementation can land here without touching the orchestrator.
package guide

import (
	"context"
	"time"

	"github.com/ecodiatate/roam-bundle-engine/internal/bundleerr"
	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
)

// Companion narrates a leg of a trip. The only production implementation
// in scope here is NoOp; a real LLM-backed implementation would satisfy
// this same interface.
type Companion interface {
	Narrate(ctx context.Context, route domain.NavRoute, legIdx int) (string, error)
}

// NoOp is the default Companion: it always reports unavailable rather
// than fabricating narration, so callers can distinguish "not configured"
// from "configured but failed".
type NoOp struct {
	Timeout time.Duration
}

func NewNoOp(timeoutS float64) *NoOp {
	return &NoOp{Timeout: time.Duration(timeoutS * float64(time.Second))}
}

func (n *NoOp) Narrate(ctx context.Context, route domain.NavRoute, legIdx int) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	return "", bundleerr.ServiceUnavailable("guide companion not configured")
}
