package server

import (
	"net/http"

	"github.com/haolin-w/pulse/internal/common"
)

// registerRoutes sets up all REST API routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)

	// Market data
	mux.HandleFunc("/api/market-data", s.handleMarketData)
	mux.HandleFunc("/api/stock-history/", s.handleStockHistory)

	// Ratios
	mux.HandleFunc("/api/ratios", s.handleRatios)
	mux.HandleFunc("/api/ratios/", s.routeRatios)

	// Institutional flows
	mux.HandleFunc("/api/institutional-net", s.handleInstitutionalNet)
	mux.HandleFunc("/api/institutional-net/dates", s.handleInstitutionalDates)
	mux.HandleFunc("/api/institutional-net/upload", s.handleInstitutionalUpload)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
		"commit":  common.GetGitCommit(),
	})
}
