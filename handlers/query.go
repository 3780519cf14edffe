package handlers

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/Chinzzii/wpvulscan/models"
	"github.com/Chinzzii/wpvulscan/scoring"
)

type QueryRequest struct {
	Filters struct {
		Severity string `json:"severity"`
	} `json:"filters"`
}

func (a *API) QueryHandler(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Filters.Severity == "" {
		http.Error(w, "Severity filter is required", http.StatusBadRequest)
		return
	}

	findings, err := a.Findings.QueryFindings(r.Context(), string(models.ParseSeverity(req.Filters.Severity)))
	if err != nil {
		http.Error(w, "Query failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, findings)
}

func (a *API) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	history, err := a.Scanner.History(r.Context())
	if err != nil {
		http.Error(w, "History failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// ResultsResponse is the last completed run as kept in the state store
type ResultsResponse struct {
	ScoreData scoring.ScoreData `json:"score_data"`
	Results   scoring.Results   `json:"results"`
}

func (a *API) ResultsHandler(w http.ResponseWriter, r *http.Request) {
	results, data, err := a.Scanner.LastResults(r.Context())
	if err != nil {
		http.Error(w, "Results failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, ResultsResponse{ScoreData: data, Results: results})
}

// RulesResponse lists the catalog ordered by rule id
type RulesResponse struct {
	Rules  []models.Rule `json:"rules"`
	Errors []string      `json:"errors"`
	Files  []string      `json:"files"`
}

// RulesHandler lists the rules; ?reload=1 forces a reload and ?enabled=1
// hides disabled rules
func (a *API) RulesHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	reload := q.Get("reload") == "1"

	var set map[string]models.Rule
	if q.Get("enabled") == "1" {
		set = a.Rules.Enabled(reload)
	} else {
		set = a.Rules.Get(reload)
	}

	resp := RulesResponse{
		Rules:  make([]models.Rule, 0, len(set)),
		Errors: append([]string{}, a.Rules.LoadErrors()...),
		Files:  append([]string{}, a.Rules.Files()...),
	}
	for _, rule := range set {
		resp.Rules = append(resp.Rules, rule)
	}
	sort.Slice(resp.Rules, func(i, j int) bool { return resp.Rules[i].ID < resp.Rules[j].ID })

	writeJSON(w, http.StatusOK, resp)
}
