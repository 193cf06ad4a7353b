package lookup

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/star/skywatch/internal/catalog"
)

// EphemerisConfig configures the solar-system ephemeris source.
type EphemerisConfig struct {
	BaseURL string
	// Epoch is the instant positions are requested for, normally the
	// start of the observation window.
	Epoch      time.Time
	HTTPClient *http.Client
}

// Ephemeris resolves solar-system bodies to their astrometric J2000
// position at a fixed epoch.
//
//	GET {base}/bodies/{id}?epoch=RFC3339
type Ephemeris struct {
	c      *client
	epoch  time.Time
	logger *slog.Logger
}

type ephemerisBody struct {
	Name          string   `json:"name"`
	Type          string   `json:"type"`
	RADeg         *float64 `json:"ra_deg"`
	DecDeg        *float64 `json:"dec_deg"`
	Magnitude     *float64 `json:"magnitude"`
	DistanceAU    *float64 `json:"distance_au"`
	Constellation *string  `json:"constellation"`
}

// NewEphemeris creates the ephemeris source.
func NewEphemeris(cfg EphemerisConfig, logger *slog.Logger) (*Ephemeris, error) {
	c, err := newClient(cfg.BaseURL, cfg.HTTPClient)
	if err != nil {
		return nil, fmt.Errorf("ephemeris source: %w", err)
	}
	if cfg.Epoch.IsZero() {
		return nil, fmt.Errorf("ephemeris source: epoch is required")
	}
	return &Ephemeris{c: c, epoch: cfg.Epoch.UTC(), logger: logger.With("source", "ephemeris")}, nil
}

func (e *Ephemeris) Name() string { return "ephemeris" }

func (e *Ephemeris) Fetch(ctx context.Context, id catalog.ID) (catalog.PartialRecord, error) {
	u := e.c.endpoint(url.Values{"epoch": {e.epoch.Format(time.RFC3339)}}, "bodies", id.String())

	var body ephemerisBody
	if err := e.c.getJSON(ctx, u, &body); err != nil {
		return catalog.PartialRecord{}, err
	}

	p := catalog.PartialRecord{
		Source:        e.Name(),
		Name:          body.Name,
		Brightness:    body.Magnitude,
		Distance:      body.DistanceAU,
		Constellation: body.Constellation,
	}

	kind := catalog.ParseKind(body.Type)
	if kind == catalog.KindUnknown {
		kind = catalog.KindSolarSystemBody
	}
	p.Kind = &kind

	if body.RADeg != nil && body.DecDeg != nil {
		eq, err := catalog.Decimal(*body.RADeg, *body.DecDeg)
		if err != nil {
			return catalog.PartialRecord{}, fmt.Errorf("ephemeris %s: %w", id, err)
		}
		p.Coordinates = &eq
	}

	e.logger.Debug("ephemeris resolved", "object_id", id, "epoch", e.epoch)
	return p, nil
}
