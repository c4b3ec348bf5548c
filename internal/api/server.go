// Package api serves workflow progress and classified cells over HTTP.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/hexgrid/internal/engine"
	"github.com/talgya/hexgrid/internal/fault"
	"github.com/talgya/hexgrid/internal/world"
)

// Runner is the workflow driver as seen by the API.
type Runner interface {
	Status() engine.Status
	Grid() *world.Grid
	Restart()
}

// RunHistory reads persisted run summaries.
type RunHistory interface {
	LatestRun() (engine.Run, error)
}

// Server serves the workflow state over HTTP.
type Server struct {
	Runner   Runner
	Runs     RunHistory // optional
	Addr     string
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	// MapRate is the number of bulk map requests a client may make per minute.
	MapRate int
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mapRate := s.MapRate
	if mapRate <= 0 {
		mapRate = 60
	}
	mapLimiter := NewRateLimiter(mapRate, time.Minute)

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/runs/latest", s.handleLatestRun)
	mux.HandleFunc("/api/v1/map", RateLimitMiddleware(mapLimiter, s.handleBulkMap))
	mux.HandleFunc("/api/v1/map/", s.handleCellDetail)

	// Admin endpoints (POST, bearer token).
	mux.HandleFunc("/api/v1/restart", s.adminOnly(s.handleRestart))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine and returns the server
// so the caller can shut it down.
func (s *Server) Start() *http.Server {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", s.Addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	return srv
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS env var to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require POST with bearer token auth.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no HEXGRID_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Runner.Status())
}

func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	if s.Runs == nil {
		http.Error(w, "no run history configured", http.StatusNotFound)
		return
	}
	run, err := s.Runs.LatestRun()
	if errors.Is(err, fault.ErrMissingResource) {
		http.Error(w, "no recorded run", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("latest run", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, run)
}

// finishedGrid writes 503 and returns nil while no run has completed.
func (s *Server) finishedGrid(w http.ResponseWriter) *world.Grid {
	g := s.Runner.Grid()
	if g == nil {
		w.Header().Set("Retry-After", "5")
		http.Error(w, "classification in progress", http.StatusServiceUnavailable)
	}
	return g
}

// handleBulkMap returns every classified cell for the map renderer.
func (s *Server) handleBulkMap(w http.ResponseWriter, r *http.Request) {
	type cellEntry struct {
		Q             int     `json:"q"`
		R             int     `json:"r"`
		X             float64 `json:"x"`
		Y             float64 `json:"y"`
		AreaLevel     int     `json:"area_level"`
		BuildingLevel int     `json:"building_level"`
		IsLand        bool    `json:"is_land,omitempty"`
		Connected     bool    `json:"connected"`
	}

	g := s.finishedGrid(w)
	if g == nil {
		return
	}

	cells := make([]cellEntry, 0, g.Len())
	for _, c := range g.Cells {
		cells = append(cells, cellEntry{
			Q:             c.Coord.Q,
			R:             c.Coord.R,
			X:             c.Position.X(),
			Y:             c.Position.Y(),
			AreaLevel:     c.AreaBlockLevel,
			BuildingLevel: c.BuildingBlockLevel,
			IsLand:        c.IsLand,
			Connected:     c.Connected,
		})
	}

	writeJSON(w, map[string]any{
		"cell_size":      g.Params.CellSize,
		"grid_range":     g.Params.GridRange,
		"neighbor_range": g.Params.NeighborRange,
		"cells":          cells,
	})
}

// handleCellDetail returns one cell: GET /api/v1/map/:q/:r.
func (s *Server) handleCellDetail(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	// api/v1/map/:q/:r → [0]="api" [1]="v1" [2]="map" [3]=q [4]=r
	if len(parts) != 5 {
		http.Error(w, "usage: /api/v1/map/:q/:r", http.StatusBadRequest)
		return
	}
	q, err1 := strconv.Atoi(parts[3])
	rr, err2 := strconv.Atoi(parts[4])
	if err1 != nil || err2 != nil {
		http.Error(w, "invalid coordinates", http.StatusBadRequest)
		return
	}

	g := s.finishedGrid(w)
	if g == nil {
		return
	}
	coord := world.HexCoord{Q: q, R: rr}
	id, ok := g.Index.Lookup(coord)
	if !ok {
		http.Error(w, "cell not found", http.StatusNotFound)
		return
	}
	c := g.At(id)

	neighbors := make(map[string]int, len(c.Neighbors))
	for _, set := range c.Neighbors {
		neighbors[strconv.Itoa(set.Radius)] = len(set.Coords)
	}

	writeJSON(w, map[string]any{
		"index":          id,
		"q":              c.Coord.Q,
		"r":              c.Coord.R,
		"position":       c.Position,
		"vertices":       c.Vertices,
		"vertex_heights": c.VertexHeights,
		"center_height":  c.CenterHeight,
		"avg_height":     c.AvgHeight,
		"normal":         c.Normal,
		"angle_to_up":    c.AngleToUp,
		"area_level":     c.AreaBlockLevel,
		"building_level": c.BuildingBlockLevel,
		"is_land":        c.IsLand,
		"connected":      c.Connected,
		"neighbors":      neighbors,
	})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	s.Runner.Restart()
	slog.Info("restart requested", "remote", clientAddr(r))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{"restarting": true})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
