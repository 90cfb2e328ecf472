package topo

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/seantiz/tsunami/internal/grid"
	"github.com/seantiz/tsunami/internal/model"
)

// DefaultERDDAPURL is the public NOAA CoastWatch ERDDAP server.
const DefaultERDDAPURL = "https://coastwatch.pfeg.noaa.gov/erddap"

// maxResponseBytes bounds the CSV body read from the server.
const maxResponseBytes = 512 << 20

// Dataset maps a bathymetry dataset key to an ERDDAP griddap dataset.
type Dataset struct {
	ID       string
	Variable string
}

// DefaultDatasets are the dataset keys templates may reference.
var DefaultDatasets = map[string]Dataset{
	"etopo1": {ID: "etopo180", Variable: "altitude"},
}

// ERDDAPSource fetches elevation grids from an ERDDAP griddap endpoint as CSV.
type ERDDAPSource struct {
	baseURL  string
	client   *http.Client
	datasets map[string]Dataset
}

// NewERDDAPSource creates a source for the server at baseURL.
func NewERDDAPSource(baseURL string, client *http.Client, datasets map[string]Dataset) *ERDDAPSource {
	if client == nil {
		client = http.DefaultClient
	}
	if datasets == nil {
		datasets = DefaultDatasets
	}
	return &ERDDAPSource{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   client,
		datasets: datasets,
	}
}

// QueryURL returns the griddap request for an extent. The coarsening factor
// is used as the index stride on both axes.
func (s *ERDDAPSource) QueryURL(extent model.Extent, dataset string, coarsen int) (string, error) {
	ds, ok := s.datasets[dataset]
	if !ok {
		return "", fmt.Errorf("%w: unknown bathymetry dataset %q", model.ErrDataSource, dataset)
	}
	if coarsen < 1 {
		coarsen = 1
	}
	query := fmt.Sprintf("%s[(%g):%d:(%g)][(%g):%d:(%g)]",
		ds.Variable,
		extent.South, coarsen, extent.North,
		extent.West, coarsen, extent.East,
	)
	return s.baseURL + "/griddap/" + url.PathEscape(ds.ID) + ".csv?" + url.QueryEscape(query), nil
}

// Fetch downloads and parses the grid for extent.
func (s *ERDDAPSource) Fetch(ctx context.Context, extent model.Extent, dataset string, coarsen int) (*grid.Topography, error) {
	u, err := s.QueryURL(extent, dataset, coarsen)
	if err != nil {
		return nil, err
	}
	ds := s.datasets[dataset]

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", model.ErrDataSource, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request %s: %v", model.ErrDataSource, ds.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %s returned %d: %s", model.ErrDataSource, ds.ID, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	topo, err := parseGriddapCSV(io.LimitReader(resp.Body, maxResponseBytes), ds.Variable)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", model.ErrDataSource, ds.ID, err)
	}
	return topo, nil
}

// parseGriddapCSV reads a griddap CSV response: a row of column names, a row
// of units, then one row per sample.
func parseGriddapCSV(r io.Reader, variable string) (*grid.Topography, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	latCol, lonCol, valCol := -1, -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case "latitude":
			latCol = i
		case "longitude":
			lonCol = i
		case variable:
			valCol = i
		}
	}
	if latCol < 0 || lonCol < 0 || valCol < 0 {
		return nil, fmt.Errorf("missing latitude, longitude or %s column in %v", variable, header)
	}
	if _, err := cr.Read(); err != nil {
		return nil, fmt.Errorf("read units row: %w", err)
	}

	type sample struct{ lat, lon, z float64 }
	var samples []sample
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		var vals [3]float64
		for k, col := range []int{latCol, lonCol, valCol} {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[col]), 64)
			if err != nil {
				return nil, fmt.Errorf("parse %q: %w", rec[col], err)
			}
			vals[k] = v
		}
		samples = append(samples, sample{lat: vals[0], lon: vals[1], z: vals[2]})
	}
	if len(samples) == 0 {
		return nil, errors.New("no samples for extent")
	}

	lats := make([]float64, 0, len(samples))
	lons := make([]float64, 0, len(samples))
	for _, s := range samples {
		lats = append(lats, s.lat)
		lons = append(lons, s.lon)
	}
	slices.Sort(lats)
	slices.Sort(lons)
	lats = slices.Compact(lats)
	lons = slices.Compact(lons)
	if len(lats)*len(lons) != len(samples) {
		return nil, fmt.Errorf("irregular grid: %d samples for %d latitudes x %d longitudes", len(samples), len(lats), len(lons))
	}

	z := make([][]float64, len(lats))
	for j := range z {
		z[j] = make([]float64, len(lons))
		for i := range z[j] {
			z[j][i] = math.NaN()
		}
	}
	for _, s := range samples {
		j, _ := slices.BinarySearch(lats, s.lat)
		i, _ := slices.BinarySearch(lons, s.lon)
		z[j][i] = s.z
	}

	topo := &grid.Topography{X: lons, Y: lats, Z: z}
	if err := topo.Validate(); err != nil {
		return nil, err
	}
	return topo, nil
}
