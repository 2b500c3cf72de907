package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/haolin-w/pulse/internal/interfaces"
)

// maxUploadBytes bounds institutional CSV uploads. Real reports are a
// few kilobytes.
const maxUploadBytes = 2 << 20

// handleMarketData handles GET /api/market-data?sections=a,b&refresh=1.
func (s *Server) handleMarketData(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	if boolParam(r, "refresh") {
		s.app.MarketService.ClearCaches()
	}

	var sections []string
	if raw := r.URL.Query().Get("sections"); raw != "" {
		for _, section := range strings.Split(raw, ",") {
			if section = strings.TrimSpace(section); section != "" {
				sections = append(sections, section)
			}
		}
	}

	summary, err := s.app.MarketService.GetMarketSummary(r.Context(), sections)
	if err != nil {
		s.logger.Error().Err(err).Msg("market summary failed")
		WriteError(w, http.StatusInternalServerError, "Failed to build market summary")
		return
	}
	WriteJSON(w, http.StatusOK, summary)
}

// handleStockHistory handles GET /api/stock-history/{symbol}?period=6mo.
func (s *Server) handleStockHistory(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	symbol := pathSuffix(r, "/api/stock-history/")
	if symbol == "" {
		WriteError(w, http.StatusBadRequest, "Symbol is required")
		return
	}

	series, err := s.app.MarketService.GetStockHistory(r.Context(), symbol, r.URL.Query().Get("period"))
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "No history for symbol "+symbol)
			return
		}
		if strings.Contains(err.Error(), "invalid period") {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error().Err(err).Str("symbol", symbol).Msg("stock history failed")
		WriteError(w, http.StatusBadGateway, "Failed to fetch history")
		return
	}
	WriteJSON(w, http.StatusOK, series)
}

// handleRatios handles GET /api/ratios?refresh=1.
func (s *Server) handleRatios(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	summary, err := s.app.RatioService.GetRatiosSummary(r.Context(), boolParam(r, "refresh"))
	if err != nil {
		s.logger.Error().Err(err).Msg("ratios summary failed")
		WriteError(w, http.StatusInternalServerError, "Failed to compute ratios")
		return
	}
	WriteJSON(w, http.StatusOK, summary)
}

// routeRatios dispatches /api/ratios/{id}/history and
// /api/ratios/{id}/chart.png.
func (s *Server) routeRatios(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	parts := strings.Split(pathSuffix(r, "/api/ratios/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		WriteError(w, http.StatusNotFound, "Not found")
		return
	}
	id, action := parts[0], parts[1]
	resample := r.URL.Query().Get("resample")

	switch action {
	case "history":
		history, err := s.app.RatioService.GetRatioHistory(r.Context(), id, resample)
		if err != nil {
			s.writeRatioError(w, id, err)
			return
		}
		WriteJSON(w, http.StatusOK, history)
	case "chart.png":
		png, err := s.app.RatioService.RenderHistoryChart(r.Context(), id, resample)
		if err != nil {
			s.writeRatioError(w, id, err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=60")
		w.WriteHeader(http.StatusOK)
		w.Write(png)
	default:
		WriteError(w, http.StatusNotFound, "Not found")
	}
}

func (s *Server) writeRatioError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, interfaces.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "Unknown ratio "+id)
		return
	}
	s.logger.Error().Err(err).Str("ratio", id).Msg("ratio history failed")
	WriteError(w, http.StatusBadGateway, err.Error())
}

// handleInstitutionalNet handles GET /api/institutional-net?refresh=1.
func (s *Server) handleInstitutionalNet(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	ytd, err := s.app.InstitutionalService.GetYearToDate(r.Context(), boolParam(r, "refresh"))
	if err != nil {
		s.logger.Error().Err(err).Msg("institutional YTD failed")
		WriteError(w, http.StatusInternalServerError, "Failed to aggregate institutional flows")
		return
	}
	WriteJSON(w, http.StatusOK, ytd)
}

// handleInstitutionalDates handles GET /api/institutional-net/dates.
func (s *Server) handleInstitutionalDates(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"dates": s.app.InstitutionalService.UploadedDates(),
	})
}

// handleInstitutionalUpload handles POST /api/institutional-net/upload.
// Accepts multipart form data with a "file" part and an optional "date"
// field (YYYYMMDD).
func (s *Server) handleInstitutionalUpload(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "A 'file' part is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Failed to read upload: "+err.Error())
		return
	}

	date, err := s.app.InstitutionalService.SaveUpload(r.FormValue("date"), header.Filename, content)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"date": date})
}
