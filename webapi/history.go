package webapi

import (
	"net/http"
	"strconv"

	"sdserve/db"

	"go.uber.org/zap"
)

// HistoryResponse represents the JSON response for /history.
type HistoryResponse struct {
	Generations []db.GenerationRecord `json:"generations"`
	Count       int                   `json:"count"`
	Limit       int                   `json:"limit"`
}

// handleHistory handles GET /history requests.
// Query parameters:
// - limit: number of records to return (default: 50, max: 200)
// - request_id: return only the records for one request
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}

	limit := s.config.HistoryDefaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > s.config.HistoryMaxLimit {
		limit = s.config.HistoryMaxLimit
	}

	var (
		records []db.GenerationRecord
		err     error
	)
	if requestID := r.URL.Query().Get("request_id"); requestID != "" {
		records, err = s.history.GenerationsByRequestID(r.Context(), requestID)
	} else {
		records, err = s.history.RecentGenerations(r.Context(), limit)
	}
	if err != nil {
		s.logger.Error("history query failed", zap.Error(err))
		writeAPIError(w, err)
		return
	}

	if records == nil {
		records = []db.GenerationRecord{}
	}

	writeJSON(w, http.StatusOK, HistoryResponse{
		Generations: records,
		Count:       len(records),
		Limit:       limit,
	})
}
