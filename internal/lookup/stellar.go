package lookup

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/star/skywatch/internal/catalog"
)

// StellarConfig configures the stellar metadata source.
type StellarConfig struct {
	BaseURL    string
	HTTPClient *http.Client
}

// Stellar resolves stars and deep-sky objects from a catalog service that
// reports positions in sexagesimal form.
//
//	GET {base}/objects/{id}
type Stellar struct {
	c      *client
	logger *slog.Logger
}

type stellarBody struct {
	Name string `json:"name"`
	Type string `json:"type"`
	RA   *struct {
		H float64 `json:"h"`
		M float64 `json:"m"`
		S float64 `json:"s"`
	} `json:"ra"`
	Dec *struct {
		Sign string  `json:"sign"`
		D    float64 `json:"d"`
		M    float64 `json:"m"`
		S    float64 `json:"s"`
	} `json:"dec"`
	Magnitude     *float64 `json:"magnitude"`
	Constellation *string  `json:"constellation"`
	DistancePC    *float64 `json:"distance_pc"`
}

// NewStellar creates the stellar metadata source.
func NewStellar(cfg StellarConfig, logger *slog.Logger) (*Stellar, error) {
	c, err := newClient(cfg.BaseURL, cfg.HTTPClient)
	if err != nil {
		return nil, fmt.Errorf("stellar source: %w", err)
	}
	return &Stellar{c: c, logger: logger.With("source", "stellar")}, nil
}

func (s *Stellar) Name() string { return "stellar" }

func (s *Stellar) Fetch(ctx context.Context, id catalog.ID) (catalog.PartialRecord, error) {
	var body stellarBody
	if err := s.c.getJSON(ctx, s.c.endpoint(nil, "objects", id.String()), &body); err != nil {
		return catalog.PartialRecord{}, err
	}

	p := catalog.PartialRecord{
		Source:        s.Name(),
		Name:          body.Name,
		Brightness:    body.Magnitude,
		Constellation: body.Constellation,
		Distance:      body.DistancePC,
	}
	if body.Type != "" {
		kind := catalog.ParseKind(body.Type)
		p.Kind = &kind
	}

	if body.RA != nil && body.Dec != nil {
		sign := body.Dec.Sign
		if sign != "" && sign != "+" && sign != "-" {
			return catalog.PartialRecord{}, fmt.Errorf("stellar %s: %w: declination sign %q", id, catalog.ErrInvalidCoordinates, sign)
		}
		eq, err := catalog.Sexagesimal(
			catalog.HMS{Hours: body.RA.H, Minutes: body.RA.M, Seconds: body.RA.S},
			catalog.DMS{Negative: sign == "-", Degrees: body.Dec.D, Minutes: body.Dec.M, Seconds: body.Dec.S},
		)
		if err != nil {
			return catalog.PartialRecord{}, fmt.Errorf("stellar %s: %w", id, err)
		}
		p.Coordinates = &eq
	}

	s.logger.Debug("stellar metadata resolved", "object_id", id, "has_coordinates", p.Coordinates != nil)
	return p, nil
}
