package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/Chinzzii/wpvulscan/logging"
	"github.com/Chinzzii/wpvulscan/models"
	"github.com/Chinzzii/wpvulscan/scan"
	"github.com/Chinzzii/wpvulscan/scoring"
)

// Scanner runs scans and exposes their history.
type Scanner interface {
	RunFullScan(ctx context.Context, scope string) scan.RunResult
	History(ctx context.Context) ([]models.HistoryEntry, error)
	LastResults(ctx context.Context) (scoring.Results, scoring.ScoreData, error)
}

// FindingStore queries the finding log.
type FindingStore interface {
	QueryFindings(ctx context.Context, severity string) ([]models.Finding, error)
}

// RuleCatalog exposes the loaded detection rules.
type RuleCatalog interface {
	Get(forceReload bool) map[string]models.Rule
	Enabled(forceReload bool) map[string]models.Rule
	LoadErrors() []string
	Files() []string
}

// API serves the scan, query, history and rules endpoints.
type API struct {
	Scanner  Scanner
	Findings FindingStore
	Rules    RuleCatalog
	Log      *zap.SugaredLogger
}

// Routes registers every endpoint on a new mux.
func (a *API) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /scan", a.ScanHandler)      // Full scan
	mux.HandleFunc("POST /query", a.QueryHandler)    // Finding query
	mux.HandleFunc("GET /history", a.HistoryHandler) // Score history
	mux.HandleFunc("GET /results", a.ResultsHandler) // Last completed run
	mux.HandleFunc("GET /rules", a.RulesHandler)     // Rule catalog
	return mux
}

func (a *API) logger() *zap.SugaredLogger {
	return logging.OrNop(a.Log).With("component", "api")
}

// writeJSON encodes v with the given status code
func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
