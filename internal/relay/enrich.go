package relay

import (
	"context"

	"github.com/devblac/bridge-relay/internal/chain"
)

// Enrichment maps an event-derived key (an address, a tx hash) to the result of an
// auxiliary read. It lives for a single relay cycle.
type Enrichment map[string]any

// Enricher performs read-only calls for the front-of-queue batch before it is relayed.
type Enricher interface {
	Enrich(ctx context.Context, batch []chain.Event) (Enrichment, error)
}

// EnricherFunc adapts a function to Enricher.
type EnricherFunc func(ctx context.Context, batch []chain.Event) (Enrichment, error)

func (f EnricherFunc) Enrich(ctx context.Context, batch []chain.Event) (Enrichment, error) {
	return f(ctx, batch)
}
