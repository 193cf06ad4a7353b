package lookup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/star/skywatch/internal/catalog"
	"github.com/star/skywatch/internal/tle"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

const issTLE = "ISS (ZARYA)\n1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005\n2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09\n"

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, body)
}

func TestEphemerisFetch(t *testing.T) {
	epoch := time.Date(2026, 1, 15, 3, 0, 0, 0, time.UTC)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /bodies/{id}", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("epoch"); got != "2026-01-15T03:00:00Z" {
			t.Errorf("epoch query = %q", got)
		}
		switch r.PathValue("id") {
		case "mars":
			writeJSON(w, `{"name":"Mars","type":"planet","ra_deg":123.25,"dec_deg":20.5,"magnitude":-1.2,"distance_au":0.71}`)
		case "jupiter barycenter":
			writeJSON(w, `{"name":"Jupiter Barycenter","type":"barycenter"}`)
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	src, err := NewEphemeris(EphemerisConfig{BaseURL: srv.URL, Epoch: epoch}, testLogger)
	if err != nil {
		t.Fatalf("NewEphemeris: %v", err)
	}

	p, err := src.Fetch(context.Background(), catalog.MustID("Mars"))
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if p.Source != "ephemeris" || p.Name != "Mars" {
		t.Errorf("identity = %q/%q", p.Source, p.Name)
	}
	if p.Kind == nil || *p.Kind != catalog.KindSolarSystemBody {
		t.Errorf("kind = %v", p.Kind)
	}
	if p.Coordinates == nil || p.Coordinates.RADeg != 123.25 || p.Coordinates.DecDeg != 20.5 {
		t.Errorf("coordinates = %+v", p.Coordinates)
	}
	if p.Brightness == nil || *p.Brightness != -1.2 || p.Distance == nil || *p.Distance != 0.71 {
		t.Errorf("brightness/distance = %v/%v", p.Brightness, p.Distance)
	}

	// Unknown type strings still mean a solar-system body here.
	p, err = src.Fetch(context.Background(), catalog.MustID("Jupiter Barycenter"))
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if *p.Kind != catalog.KindSolarSystemBody || p.Coordinates != nil {
		t.Errorf("partial = %+v", p)
	}

	if _, err := src.Fetch(context.Background(), catalog.MustID("vega")); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown body err = %v, want ErrNotFound", err)
	}
}

func TestNewEphemerisValidation(t *testing.T) {
	if _, err := NewEphemeris(EphemerisConfig{BaseURL: "ftp://example.com", Epoch: time.Now()}, testLogger); err == nil {
		t.Error("expected error for non-http base url")
	}
	if _, err := NewEphemeris(EphemerisConfig{BaseURL: "http://example.com"}, testLogger); err == nil {
		t.Error("expected error for missing epoch")
	}
}

func TestStellarFetch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /objects/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("id") {
		case "vega":
			writeJSON(w, `{"name":"Vega","type":"star","ra":{"h":18,"m":36,"s":56.336},"dec":{"sign":"+","d":38,"m":47,"s":1.28},"magnitude":0.03,"constellation":"Lyra","distance_pc":7.68}`)
		case "south":
			writeJSON(w, `{"name":"South","type":"star","ra":{"h":0,"m":0,"s":0},"dec":{"sign":"-","d":0,"m":30,"s":0}}`)
		case "broken":
			writeJSON(w, `{"name":"Broken","ra":{"h":1,"m":0,"s":0},"dec":{"sign":"+","d":95,"m":0,"s":0}}`)
		case "flaky":
			w.WriteHeader(http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	src, err := NewStellar(StellarConfig{BaseURL: srv.URL}, testLogger)
	if err != nil {
		t.Fatalf("NewStellar: %v", err)
	}
	ctx := context.Background()

	p, err := src.Fetch(ctx, "vega")
	if err != nil {
		t.Fatalf("Fetch vega: %v", err)
	}
	if p.Coordinates == nil ||
		math.Abs(p.Coordinates.RADeg-279.23473) > 1e-4 ||
		math.Abs(p.Coordinates.DecDeg-38.78369) > 1e-4 {
		t.Errorf("vega coordinates = %+v", p.Coordinates)
	}
	if p.Kind == nil || *p.Kind != catalog.KindStar || *p.Constellation != "Lyra" || *p.Distance != 7.68 {
		t.Errorf("vega partial = %+v", p)
	}

	p, err = src.Fetch(ctx, "south")
	if err != nil {
		t.Fatalf("Fetch south: %v", err)
	}
	if p.Coordinates.DecDeg != -0.5 {
		t.Errorf("-00° 30' decoded as %v", p.Coordinates.DecDeg)
	}
	if p.Brightness != nil {
		t.Errorf("absent magnitude decoded as %v", *p.Brightness)
	}

	if _, err := src.Fetch(ctx, "broken"); !errors.Is(err, catalog.ErrInvalidCoordinates) {
		t.Errorf("broken err = %v, want ErrInvalidCoordinates", err)
	}
	if _, err := src.Fetch(ctx, "flaky"); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("flaky err = %v, want a non-not-found error", err)
	}
	if _, err := src.Fetch(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("nope err = %v, want ErrNotFound", err)
	}
}

func TestClientBodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, strings.Repeat("A", 64))
	}))
	defer srv.Close()

	c, err := newClient(srv.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.get(context.Background(), srv.URL, 16); err == nil || !strings.Contains(err.Error(), "byte limit") {
		t.Errorf("err = %v, want byte limit error", err)
	}
	if body, err := c.get(context.Background(), srv.URL, 64); err != nil || len(body) != 64 {
		t.Errorf("get = %d bytes, %v", len(body), err)
	}
}

func TestClientEndpointEscapes(t *testing.T) {
	c, err := newClient("http://example.com/api/", nil)
	if err != nil {
		t.Fatal(err)
	}
	got := c.endpoint(nil, "objects", "ngc 1234/5")
	if got != "http://example.com/api/objects/ngc%201234%2F5" {
		t.Errorf("endpoint = %q", got)
	}
}

type priorMap map[catalog.ID]catalog.Record

func (m priorMap) Get(id catalog.ID) (catalog.Record, bool) {
	r, ok := m[id]
	return r, ok
}

func TestImageryDownloadAndSkip(t *testing.T) {
	var cutouts atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /cutouts/{id}", func(w http.ResponseWriter, r *http.Request) {
		cutouts.Add(1)
		q := r.URL.Query()
		if q.Get("width") != "300" || q.Get("height") != "200" || q.Get("fov") != "0.5" || q.Get("scaling") != "log" {
			t.Errorf("cutout query = %v", q)
		}
		writeJSON(w, `{"image_url":"/files/cutout.png","format":"png"}`)
	})
	mux.HandleFunc("GET /files/{name}", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "PNGDATA")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dir := t.TempDir()
	params := ImageryParams{Width: 300, Height: 200, FieldDeg: 0.5, Scaling: "log"}
	src, err := NewImagery(ImageryConfig{BaseURL: srv.URL, ArtifactDir: dir, Params: params}, testLogger)
	if err != nil {
		t.Fatalf("NewImagery: %v", err)
	}

	id := catalog.MustID("M 31")
	p, err := src.Fetch(context.Background(), id)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if p.Imagery == nil || !strings.HasPrefix(p.Imagery.Handle, "m_31-") || !strings.HasSuffix(p.Imagery.Handle, ".png") || p.Imagery.Width != 300 || p.Imagery.Scaling != "log" {
		t.Fatalf("imagery = %+v", p.Imagery)
	}
	data, err := os.ReadFile(filepath.Join(dir, p.Imagery.Handle))
	if err != nil || string(data) != "PNGDATA" {
		t.Fatalf("artifact = %q, %v", data, err)
	}

	// Same params and the file is there: no request.
	ctx := WithPrior(context.Background(), priorMap{id: {ID: id, Imagery: p.Imagery}})
	again, err := src.Fetch(ctx, id)
	if err != nil {
		t.Fatalf("cached Fetch: %v", err)
	}
	if cutouts.Load() != 1 {
		t.Errorf("cutout requests = %d, want 1", cutouts.Load())
	}
	if *again.Imagery != *p.Imagery {
		t.Errorf("cached imagery = %+v, want %+v", again.Imagery, p.Imagery)
	}

	// Different params: refetch.
	old := *p.Imagery
	old.Width = 100
	ctx = WithPrior(context.Background(), priorMap{id: {ID: id, Imagery: &old}})
	if _, err := src.Fetch(ctx, id); err != nil {
		t.Fatal(err)
	}
	if cutouts.Load() != 2 {
		t.Errorf("cutout requests = %d, want 2 after a params change", cutouts.Load())
	}

	// Artifact gone: refetch.
	os.Remove(filepath.Join(dir, p.Imagery.Handle))
	ctx = WithPrior(context.Background(), priorMap{id: {ID: id, Imagery: p.Imagery}})
	if _, err := src.Fetch(ctx, id); err != nil {
		t.Fatal(err)
	}
	if cutouts.Load() != 3 {
		t.Errorf("cutout requests = %d, want 3 after the artifact was removed", cutouts.Load())
	}
}

func TestArtifactName(t *testing.T) {
	tests := []struct {
		id     catalog.ID
		format string
		slug   string
		ext    string
	}{
		{"m 31", "jpg", "m_31-", ".jpg"},
		{"ngc 1234/5", ".PNG", "ngc_1234_5-", ".png"},
		{"alpha centauri", "exe", "alpha_centauri-", ".jpg"},
	}
	for _, tt := range tests {
		got := artifactName(tt.id, tt.format)
		if !strings.HasPrefix(got, tt.slug) || !strings.HasSuffix(got, tt.ext) || strings.ContainsAny(got, " /") {
			t.Errorf("artifactName(%q, %q) = %q, want %s<hash>%s", tt.id, tt.format, got, tt.slug, tt.ext)
		}
		if again := artifactName(tt.id, tt.format); again != got {
			t.Errorf("artifactName(%q) not stable: %q then %q", tt.id, got, again)
		}
	}

	// Identifiers that reduce to the same slug.
	for _, pair := range [][2]catalog.ID{
		{"α centauri", "β centauri"},
		{"m 31", "m_31"},
		{"ngc 224", "ngc.224"},
	} {
		a, b := artifactName(pair[0], "jpg"), artifactName(pair[1], "jpg")
		if a == b {
			t.Errorf("%q and %q share artifact %q", pair[0], pair[1], a)
		}
	}
}

func TestOrbitalFromCache(t *testing.T) {
	cache := tle.NewCache(t.TempDir(), 3)
	if err := cache.Write([]byte(issTLE), time.Now()); err != nil {
		t.Fatal(err)
	}

	src, err := NewOrbital(OrbitalConfig{
		Cache: cache,
		At:    time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC),
	}, testLogger)
	if err != nil {
		t.Fatalf("NewOrbital: %v", err)
	}

	p, err := src.Fetch(context.Background(), catalog.MustID("ISS (ZARYA)"))
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if p.Name != "ISS (ZARYA)" || p.Kind == nil || *p.Kind != catalog.KindSolarSystemBody {
		t.Errorf("partial = %+v", p)
	}
	// The position depends on the site and the instant, so only the
	// elements are supplied.
	if p.Orbit == nil || p.Orbit.NORADID != 25544 || p.Orbit.Validate() != nil {
		t.Errorf("orbit = %+v", p.Orbit)
	}
	if p.Coordinates != nil || p.Distance != nil {
		t.Errorf("site-dependent fields supplied: coordinates %+v distance %v", p.Coordinates, p.Distance)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	if _, err := src.Fetch(context.Background(), "25544"); err != nil {
		t.Errorf("lookup by NORAD number: %v", err)
	}
	if _, err := src.Fetch(context.Background(), "vega"); !errors.Is(err, ErrNotFound) {
		t.Errorf("vega err = %v, want ErrNotFound", err)
	}
}

func TestOrbitalFetchesAndCaches(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		io.WriteString(w, issTLE)
	}))
	defer srv.Close()

	dir := t.TempDir()
	cfg := OrbitalConfig{
		Fetcher: tle.NewFetcher(srv.URL, testLogger),
		Cache:   tle.NewCache(dir, 3),
		At:      time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC),
	}
	src, err := NewOrbital(cfg, testLogger)
	if err != nil {
		t.Fatal(err)
	}

	for range 3 {
		if _, err := src.Fetch(context.Background(), "iss (zarya)"); err != nil {
			t.Fatalf("Fetch: %v", err)
		}
	}
	if hits.Load() != 1 {
		t.Errorf("TLE downloads = %d, want 1", hits.Load())
	}
	if _, _, err := cfg.Cache.LoadLatest(); err != nil {
		t.Errorf("download not cached: %v", err)
	}

	// A second run with a fresh cache does not touch the network.
	src2, _ := NewOrbital(cfg, testLogger)
	if _, err := src2.Fetch(context.Background(), "iss (zarya)"); err != nil {
		t.Fatal(err)
	}
	if hits.Load() != 1 {
		t.Errorf("TLE downloads = %d, want 1 with a fresh cache", hits.Load())
	}
}

func TestOrbitalRemembersLoadFailure(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	src, err := NewOrbital(OrbitalConfig{
		Fetcher: tle.NewFetcher(srv.URL, testLogger),
		At:      time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC),
	}, testLogger)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := src.Fetch(context.Background(), "iss (zarya)"); err == nil || errors.Is(err, ErrNotFound) {
				t.Errorf("err = %v, want a load error", err)
			}
		}()
	}
	wg.Wait()
	if hits.Load() != 1 {
		t.Errorf("TLE downloads = %d, want 1 after a failed load", hits.Load())
	}
}

func TestOrbitalNoData(t *testing.T) {
	src, err := NewOrbital(OrbitalConfig{Cache: tle.NewCache(t.TempDir(), 1), At: time.Now()}, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := src.Fetch(context.Background(), "iss"); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want a load error", err)
	}
}
