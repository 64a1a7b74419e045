package proximity

import (
	"math"
	"sync"

	"github.com/example/uniride/internal/models"
)

// Graph answers "are these two named areas near enough to match?" from a
// precomputed edge list. Edges are loaded once at startup and treated as
// immutable afterwards; Connected is a pure lookup on the hot path.
type Graph struct {
	mu    sync.RWMutex
	adj   map[string]map[string]float64
	ready bool
}

func NewGraph() *Graph {
	return &Graph{adj: make(map[string]map[string]float64)}
}

// Load replaces the adjacency map with the given edges, inserting both
// directions for every source edge.
func (g *Graph) Load(edges []models.LocationEdge) {
	adj := make(map[string]map[string]float64, len(edges)*2)
	add := func(a, b string, d float64) {
		m, ok := adj[a]
		if !ok {
			m = make(map[string]float64)
			adj[a] = m
		}
		m[b] = d
	}
	for _, e := range edges {
		add(e.Area1, e.Area2, e.DistanceKm)
		add(e.Area2, e.Area1, e.DistanceKm)
	}
	g.mu.Lock()
	g.adj = adj
	g.ready = true
	g.mu.Unlock()
}

// Connected reports whether two areas are within matching range. Identical
// names are always connected. An unloaded graph answers true for everything
// so matching degrades to type/capacity/eligibility filtering instead of
// failing closed.
func (g *Graph) Connected(a, b string) bool {
	if a == b {
		return true
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.ready {
		return true
	}
	_, ok := g.adj[a][b]
	return ok
}

// Initialized reports whether an edge list has been loaded.
func (g *Graph) Initialized() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.ready
}

// Locations returns the number of distinct areas in the graph.
func (g *Graph) Locations() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.adj)
}

// HaversineKm is the great-circle distance between two coordinates in
// kilometers. The graph builder uses it to precompute the edge list.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const r = 6371.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return r * c
}
