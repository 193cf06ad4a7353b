package lookup

import (
	"context"

	"github.com/star/skywatch/internal/catalog"
)

// Prior is a read-only view of the records a run started from.
type Prior interface {
	Get(id catalog.ID) (catalog.Record, bool)
}

type priorKey struct{}

// WithPrior attaches the starting records to ctx so sources can skip work
// that is already cached.
func WithPrior(ctx context.Context, p Prior) context.Context {
	return context.WithValue(ctx, priorKey{}, p)
}

// PriorRecord returns the starting record for id, if ctx carries one.
func PriorRecord(ctx context.Context, id catalog.ID) (catalog.Record, bool) {
	p, ok := ctx.Value(priorKey{}).(Prior)
	if !ok || p == nil {
		return catalog.Record{}, false
	}
	return p.Get(id)
}
