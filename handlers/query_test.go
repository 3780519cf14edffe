package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chinzzii/wpvulscan/models"
	"github.com/Chinzzii/wpvulscan/rules"
	"github.com/Chinzzii/wpvulscan/storage"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *storage.SQLStore {
	t.Helper()

	db, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	require.NoError(t, storage.Migrate(db))

	t.Cleanup(func() { db.Close() })
	return storage.NewSQLStore(db, nil)
}

// insertTestData seeds the finding log
func insertTestData(t *testing.T, store *storage.SQLStore) {
	t.Helper()

	created := time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC)
	for _, f := range []models.Finding{
		{RuleID: "rule_insecure_form", Severity: models.SeverityHigh, Confidence: models.ConfidenceHigh, Path: "http://blog.example.com/contacto"},
		{RuleID: "rule_readme_version_leak", Severity: models.SeverityMedium, Confidence: models.ConfidenceHigh, Path: "http://blog.example.com/readme.html"},
		{RuleID: "rule_plugin_vulnerable", CVEID: "CVE-2020-35489", Severity: models.SeverityHigh, Confidence: models.ConfidenceHigh, Path: "contact-form-7"},
	} {
		f.CreatedAt = created
		_, err := store.InsertFinding(context.Background(), &f)
		require.NoError(t, err)
	}
}

// TestQueryHandler tests the QueryHandler with test data in the database
func TestQueryHandler(t *testing.T) {
	store := setupTestStore(t)
	insertTestData(t, store)
	api := &API{Findings: store}

	tests := []struct {
		name          string
		body          string
		expectedCode  int
		expectedRules []string
	}{
		{
			name:          "Filter high severity - exact match",
			body:          `{"filters": {"severity": "high"}}`,
			expectedCode:  http.StatusOK,
			expectedRules: []string{"rule_insecure_form", "rule_plugin_vulnerable"},
		},
		{
			name:          "Severity is normalized",
			body:          `{"filters": {"severity": " MEDIUM "}}`,
			expectedCode:  http.StatusOK,
			expectedRules: []string{"rule_readme_version_leak"},
		},
		{
			name:          "No matching severity",
			body:          `{"filters": {"severity": "critical"}}`,
			expectedCode:  http.StatusOK,
			expectedRules: []string{},
		},
		{
			name:         "Missing severity filter",
			body:         `{"filters": {}}`,
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "Invalid request body",
			body:         `{"filters": `,
			expectedCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewBufferString(tt.body))
			rr := httptest.NewRecorder()
			api.Routes().ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedCode, rr.Code)
			if tt.expectedCode != http.StatusOK {
				return
			}

			var got []models.Finding
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
			ruleIDs := make([]string, 0, len(got))
			for _, f := range got {
				ruleIDs = append(ruleIDs, f.RuleID)
			}
			assert.Equal(t, tt.expectedRules, ruleIDs)
		})
	}
}

func TestRulesHandler(t *testing.T) {
	loads := 0
	catalog := rules.NewCatalogWithLoader(func() rules.LoadResult {
		loads++
		return rules.LoadResult{
			Rules: map[string]models.Rule{
				"rule_user_enumeration": {ID: "rule_user_enumeration", Name: "User enumeration", Category: "A01", SeverityDefault: models.SeverityMedium, Enabled: true},
				"rule_insecure_form":    {ID: "rule_insecure_form", Name: "Insecure form", Category: "A02", SeverityDefault: models.SeverityHigh, Enabled: false},
			},
			Errors: []string{"broken.json: missing 'name'"},
			Files:  []string{"broken.json", "core.json"},
		}
	}, nil)
	api := &API{Rules: catalog}

	tests := []struct {
		name          string
		url           string
		expectedRules []string
		expectedLoads int
	}{
		{"All rules", "/rules", []string{"rule_insecure_form", "rule_user_enumeration"}, 1},
		{"Cached on second call", "/rules", []string{"rule_insecure_form", "rule_user_enumeration"}, 1},
		{"Enabled only", "/rules?enabled=1", []string{"rule_user_enumeration"}, 1},
		{"Forced reload", "/rules?reload=1", []string{"rule_insecure_form", "rule_user_enumeration"}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			api.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.url, nil))
			require.Equal(t, http.StatusOK, rr.Code)

			var resp RulesResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))

			ids := make([]string, 0, len(resp.Rules))
			for _, r := range resp.Rules {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.expectedRules, ids)
			assert.Equal(t, []string{"broken.json: missing 'name'"}, resp.Errors)
			assert.Equal(t, tt.expectedLoads, loads)
		})
	}
}
