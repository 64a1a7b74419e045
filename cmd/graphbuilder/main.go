// graphbuilder precomputes the location proximity graph. It reads a YAML
// list of named campus-area coordinates, measures every pair (road distance
// via OSRM when configured, great-circle otherwise), keeps pairs within the
// radius and replaces the edges table the API loads at startup.
package main

import (
	"flag"
	"os"

	_ "github.com/lib/pq"
	"gopkg.in/yaml.v3"

	"github.com/example/uniride/internal/logging"
	"github.com/example/uniride/internal/models"
	"github.com/example/uniride/internal/proximity"
	"github.com/example/uniride/internal/storage"
)

type location struct {
	Name string  `yaml:"name"`
	Lat  float64 `yaml:"lat"`
	Lon  float64 `yaml:"lon"`
}

type edgeWriter interface {
	ReplaceLocationEdges(edges []models.LocationEdge) error
}

func main() {
	var (
		locationsPath string
		radiusKm      float64
		osrmEndpoint  string
	)
	flag.StringVar(&locationsPath, "locations", "locations.yaml", "YAML file of named areas with coordinates")
	flag.Float64Var(&radiusKm, "radius-km", 3.0, "maximum distance for two areas to count as nearby")
	flag.StringVar(&osrmEndpoint, "osrm", os.Getenv("OSRM_ENDPOINT"), "optional OSRM server for road distances")
	flag.Parse()

	logger := logging.New(os.Getenv("LOG_LEVEL"))

	raw, err := os.ReadFile(locationsPath)
	if err != nil {
		logger.Error("read locations", "path", locationsPath, "error", err)
		os.Exit(1)
	}
	var locs []location
	if err := yaml.Unmarshal(raw, &locs); err != nil {
		logger.Error("parse locations", "path", locationsPath, "error", err)
		os.Exit(1)
	}
	if len(locs) < 2 {
		logger.Error("need at least two locations", "count", len(locs))
		os.Exit(1)
	}

	var measure distanceFunc = haversineDistance
	if osrmEndpoint != "" {
		osrm := newOSRMClient(osrmEndpoint)
		measure = func(a, b location) (float64, bool) {
			if km, err := osrm.RouteKm(a.Lat, a.Lon, b.Lat, b.Lon); err == nil {
				return km, true
			} else {
				logger.Warn("osrm lookup failed, falling back to great-circle", "from", a.Name, "to", b.Name, "error", err)
			}
			return haversineDistance(a, b)
		}
	}

	edges := buildEdges(locs, radiusKm, measure)
	logger.Info("graph built", "locations", len(locs), "edges", len(edges), "radius_km", radiusKm)

	writer, closeFn, err := openWriter()
	if err != nil {
		logger.Error("open storage", "error", err)
		os.Exit(1)
	}
	defer closeFn()

	if err := writer.ReplaceLocationEdges(edges); err != nil {
		logger.Error("write edges", "error", err)
		os.Exit(1)
	}
	logger.Info("edges replaced")
}

type distanceFunc func(a, b location) (km float64, ok bool)

func haversineDistance(a, b location) (float64, bool) {
	return proximity.HaversineKm(a.Lat, a.Lon, b.Lat, b.Lon), true
}

// buildEdges measures every unordered pair once and keeps those inside the
// radius. Edge direction does not matter; the graph loader mirrors them.
func buildEdges(locs []location, radiusKm float64, measure distanceFunc) []models.LocationEdge {
	var edges []models.LocationEdge
	for i := 0; i < len(locs); i++ {
		for j := i + 1; j < len(locs); j++ {
			km, ok := measure(locs[i], locs[j])
			if !ok || km > radiusKm {
				continue
			}
			edges = append(edges, models.LocationEdge{
				Area1:      locs[i].Name,
				Area2:      locs[j].Name,
				DistanceKm: km,
			})
		}
	}
	return edges
}

func openWriter() (edgeWriter, func(), error) {
	if dsn := os.Getenv("PG_DSN"); dsn != "" {
		ps, err := storage.NewPostgresStore(dsn)
		if err != nil {
			return nil, nil, err
		}
		return ps, func() { ps.Close() }, nil
	}
	path := os.Getenv("SQLITE_PATH")
	if path == "" {
		path = "uniride.db"
	}
	ss, err := storage.NewSQLiteStore(path)
	if err != nil {
		return nil, nil, err
	}
	return ss, func() { ss.Close() }, nil
}
