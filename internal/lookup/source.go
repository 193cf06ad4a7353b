// Package lookup holds the remote sources that resolve an object identifier
// into a partial record: solar-system ephemerides, stellar metadata, survey
// imagery and Earth-orbiting satellites.
package lookup

import (
	"context"
	"errors"

	"github.com/star/skywatch/internal/catalog"
)

// ErrNotFound is returned by a Source that does not know the identifier.
// It is an expected outcome, not a fault.
var ErrNotFound = errors.New("object not found")

// Source resolves identifiers against one remote service.
// Implementations must be safe for concurrent use and honor ctx.
type Source interface {
	Name() string
	Fetch(ctx context.Context, id catalog.ID) (catalog.PartialRecord, error)
}

// Class is an ordered group of sources tried together.
type Class []Source

// Names returns the source names in order.
func (c Class) Names() []string {
	names := make([]string, len(c))
	for i, s := range c {
		names[i] = s.Name()
	}
	return names
}
