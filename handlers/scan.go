package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Chinzzii/wpvulscan/scan"
	"github.com/Chinzzii/wpvulscan/scoring"
)

// ScanRequest defines the optional request body of the /scan endpoint
type ScanRequest struct {
	Scope string `json:"scope"` // Free-form scope label, "full" when empty
}

// ScanResponse defines the response structure for /scan endpoint
type ScanResponse struct {
	ScanID    int64              `json:"scan_id"`              // Scan run row id
	RunID     string             `json:"run_id"`               // Run uuid used in logs
	ScoreData *scoring.ScoreData `json:"score_data,omitempty"` // Score, risk tier and breakdown
	Results   *scoring.Results   `json:"results,omitempty"`    // Issue lists keyed by category label
	Error     string             `json:"error,omitempty"`      // Failure reason of a failed run
}

// ScanHandler runs a full scan synchronously
func (a *API) ScanHandler(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Scope == "" {
		req.Scope = "full"
	}

	res := a.Scanner.RunFullScan(r.Context(), req.Scope)
	if errors.Is(res.Err, scan.ErrScanInProgress) {
		http.Error(w, "Scan already in progress", http.StatusConflict)
		return
	}
	if res.Err != nil {
		a.logger().Errorw("Scan request failed", "scan_id", res.ScanID, "error", res.Err)
		writeJSON(w, http.StatusInternalServerError, ScanResponse{
			ScanID: res.ScanID,
			RunID:  res.RunID,
			Error:  res.Err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, ScanResponse{
		ScanID:    res.ScanID,
		RunID:     res.RunID,
		ScoreData: &res.ScoreData,
		Results:   &res.Results,
	})
}
