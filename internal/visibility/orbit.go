package visibility

import (
	"fmt"
	"time"

	"github.com/star/skywatch/internal/catalog"
	"github.com/star/skywatch/internal/propagation"
	"github.com/star/skywatch/internal/transform"
)

// ComputeOrbitWindow propagates orbit to the site's start and end times and
// evaluates each endpoint from the site's own position. An endpoint the
// propagator cannot reach gets the "not visible" marker.
func ComputeOrbitWindow(orbit catalog.Orbit, site Site) (Window, error) {
	if err := orbit.Validate(); err != nil {
		return Window{}, fmt.Errorf("%w: %v", ErrInvalidGeometryInput, err)
	}
	if err := site.Validate(); err != nil {
		return Window{}, err
	}
	prop, err := propagation.NewSGP4Propagator(orbit.Line1, orbit.Line2, orbit.NORADID)
	if err != nil {
		return Window{}, fmt.Errorf("%w: %v", ErrInvalidGeometryInput, err)
	}

	obs := transform.NewObserverPosition(site.LatitudeDeg, site.LongitudeDeg, site.ElevationM)
	limit := site.seczMax()
	at := func(t time.Time) Endpoint {
		app, err := propagation.ApparentPosition(prop, obs, t)
		if err != nil {
			return Endpoint{Time: t.UTC()}
		}
		return evaluate(t, app.Horizontal, limit)
	}

	return Window{
		Start: at(site.Start),
		End:   at(site.End),
	}, nil
}
