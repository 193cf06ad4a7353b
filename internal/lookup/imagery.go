package lookup

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/star/skywatch/internal/catalog"
)

// maxImageBytes caps a single image download.
const maxImageBytes = 32 << 20

// ImageryParams are the survey cutout parameters requested for every object.
type ImageryParams struct {
	Width    int
	Height   int
	FieldDeg float64
	Scaling  string
}

// ImageryConfig configures the survey imagery source.
type ImageryConfig struct {
	BaseURL     string
	ArtifactDir string
	Params      ImageryParams
	HTTPClient  *http.Client
}

// Imagery fetches a survey cutout for each object and stores it under
// ArtifactDir. The download is skipped when the run's prior record already
// references an image made with the same params and that file still exists.
//
//	GET {base}/cutouts/{id}?width=&height=&fov=&scaling=  ->  {"image_url": "...", "format": "jpg"}
//	GET {image_url}
type Imagery struct {
	c      *client
	dir    string
	params ImageryParams
	logger *slog.Logger
}

type cutoutBody struct {
	ImageURL string `json:"image_url"`
	Format   string `json:"format"`
}

// NewImagery creates the imagery source.
func NewImagery(cfg ImageryConfig, logger *slog.Logger) (*Imagery, error) {
	c, err := newClient(cfg.BaseURL, cfg.HTTPClient)
	if err != nil {
		return nil, fmt.Errorf("imagery source: %w", err)
	}
	if cfg.ArtifactDir == "" {
		return nil, fmt.Errorf("imagery source: artifact dir is required")
	}
	p := cfg.Params
	if p.Width <= 0 || p.Height <= 0 || p.FieldDeg <= 0 {
		return nil, fmt.Errorf("imagery source: invalid cutout params %+v", p)
	}
	if p.Scaling == "" {
		p.Scaling = "linear"
	}
	return &Imagery{c: c, dir: cfg.ArtifactDir, params: p, logger: logger.With("source", "imagery")}, nil
}

func (im *Imagery) Name() string { return "imagery" }

func (im *Imagery) wanted() catalog.Imagery {
	return catalog.Imagery{
		Width:    im.params.Width,
		Height:   im.params.Height,
		FieldDeg: im.params.FieldDeg,
		Scaling:  im.params.Scaling,
	}
}

func (im *Imagery) Fetch(ctx context.Context, id catalog.ID) (catalog.PartialRecord, error) {
	want := im.wanted()

	if prev, ok := PriorRecord(ctx, id); ok && prev.Imagery != nil && prev.Imagery.SameParams(want) {
		if _, err := os.Stat(filepath.Join(im.dir, prev.Imagery.Handle)); err == nil {
			im.logger.Debug("imagery already cached", "object_id", id, "handle", prev.Imagery.Handle)
			cached := *prev.Imagery
			return catalog.PartialRecord{Source: im.Name(), Imagery: &cached}, nil
		}
	}

	q := url.Values{
		"width":   {strconv.Itoa(want.Width)},
		"height":  {strconv.Itoa(want.Height)},
		"fov":     {strconv.FormatFloat(want.FieldDeg, 'f', -1, 64)},
		"scaling": {want.Scaling},
	}
	var body cutoutBody
	if err := im.c.getJSON(ctx, im.c.endpoint(q, "cutouts", id.String()), &body); err != nil {
		return catalog.PartialRecord{}, err
	}
	if body.ImageURL == "" {
		return catalog.PartialRecord{}, ErrNotFound
	}

	imgURL, err := im.c.resolve(body.ImageURL)
	if err != nil {
		return catalog.PartialRecord{}, err
	}
	data, err := im.c.get(ctx, imgURL, maxImageBytes)
	if err != nil {
		return catalog.PartialRecord{}, fmt.Errorf("downloading cutout for %s: %w", id, err)
	}

	want.Handle = artifactName(id, body.Format)
	if err := im.writeArtifact(want.Handle, data); err != nil {
		return catalog.PartialRecord{}, err
	}

	im.logger.Debug("imagery downloaded", "object_id", id, "handle", want.Handle, "bytes", len(data))
	return catalog.PartialRecord{Source: im.Name(), Imagery: &want}, nil
}

func (im *Imagery) writeArtifact(name string, data []byte) error {
	if err := os.MkdirAll(im.dir, 0o755); err != nil {
		return fmt.Errorf("creating artifact dir: %w", err)
	}
	path := filepath.Join(im.dir, name)
	tmp, err := os.CreateTemp(im.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating artifact: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("renaming artifact: %w", err)
	}
	return nil
}

// artifactName maps an identifier to a file name safe on any filesystem.
// The readable slug is lossy, so a hash of the full identifier keeps
// distinct objects in distinct files.
func artifactName(id catalog.ID, format string) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '_'
		}
	}, id.String())

	ext := strings.ToLower(strings.TrimPrefix(format, "."))
	switch ext {
	case "jpg", "jpeg", "png", "gif", "fits":
	default:
		ext = "jpg"
	}
	return fmt.Sprintf("%s-%08x.%s", slug, uint32(xxhash.Sum64String(id.String())), ext)
}
