package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chinzzii/wpvulscan/models"
	"github.com/Chinzzii/wpvulscan/scan"
	"github.com/Chinzzii/wpvulscan/scoring"
)

func init() {
	color.NoColor = true
}

func testReport() Report {
	cvss := 8.8
	results := scoring.Results{
		Config: []models.ConfigIssue{
			{Type: models.ConfigExposure, Message: "Recurso sensible expuesto: wp-config.php"},
		},
		Forms: []models.FormReport{{
			URL:      "http://blog.example.com/contacto",
			HTTPCode: 200,
			Forms: []models.Form{
				{Index: 0, Method: "POST", ActionResolved: "http://blog.example.com/contacto", Severity: models.SeverityHigh},
			},
		}},
		System: []models.SystemIssue{},
		Plugins: []models.PluginVuln{
			{Plugin: "Elementor", Installed: "3.1.0", CVE: "CVE-2022-1329", CVSS: &cvss, Title: "Remote code execution"},
		},
	}
	return FromRun(scan.RunResult{
		ScanID:    3,
		RunID:     "5e7c-run",
		ScoreData: scoring.Calculate(results),
		Results:   results,
	})
}

func TestTableRenderer(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(FormatTable).Render(&buf, testReport()))
	out := buf.String()

	// 8 + 5 + 0 + 7.0
	assert.Contains(t, out, "Scan 3 (5e7c-run)")
	assert.Contains(t, out, "Score: 20/100  Riesgo: Medio")
	assert.Contains(t, out, "CATEGORY")
	assert.Contains(t, out, "--- Configuración insegura ---\n  [exposure] Recurso sensible expuesto: wp-config.php")
	assert.Contains(t, out, "  #0 HIGH POST http://blog.example.com/contacto https=false csrf=false")
	assert.Contains(t, out, "--- Usuarios predecibles / permisos inseguros ---\n  (sin incidencias)")
	assert.Contains(t, out, "Elementor 3.1.0 — CVE-2022-1329 — CVSS 8.8 — Remote code execution")
	assert.NotContains(t, out, "--- Hardening ---")

	// breakdown rows follow category order
	assert.Less(t, strings.Index(out, "Configuración insegura  "), strings.Index(out, "Formularios inseguros  "))
}

func TestTableRenderer_Failed(t *testing.T) {
	var buf bytes.Buffer
	report := FromRun(scan.RunResult{ScanID: 4, RunID: "r", ScoreData: scoring.MissingScore(), Err: errors.New("detector forms: boom")})
	require.NoError(t, New(FormatTable).Render(&buf, report))

	assert.Equal(t, "Scan 4 (r)\nError: detector forms: boom\n", buf.String())
}

func TestJSONRenderer(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(FormatJSON).Render(&buf, testReport()))

	var got struct {
		ScanID    int64                      `json:"scan_id"`
		ScoreData scoring.ScoreData          `json:"score_data"`
		Results   map[string]json.RawMessage `json:"results"`
		Error     string                     `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, int64(3), got.ScanID)
	assert.Equal(t, 20, got.ScoreData.Score)
	assert.Equal(t, "Medio", got.ScoreData.Risk.Level)
	assert.Len(t, got.Results, 4)
	assert.Empty(t, got.Error)
}

func TestRenderHistory(t *testing.T) {
	entries := []models.HistoryEntry{
		{Timestamp: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC), Score: 12, RiskLevel: "Medio"},
		{Timestamp: time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC), Score: 64, RiskLevel: "Crítico"},
	}

	var table bytes.Buffer
	require.NoError(t, New(FormatTable).RenderHistory(&table, entries))
	lines := strings.Split(strings.TrimSpace(table.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"TIMESTAMP", "SCORE", "RISK"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"2026-05-02", "08:00:00", "64", "Crítico"}, strings.Fields(lines[2]))

	var js bytes.Buffer
	require.NoError(t, New(FormatJSON).RenderHistory(&js, nil))
	assert.JSONEq(t, `[]`, js.String())
}

func TestRenderRules(t *testing.T) {
	rules := []models.Rule{
		{ID: "rule_insecure_headers", Name: "Missing security headers", Category: "A05", SeverityDefault: models.SeverityLow, Enabled: true},
		{ID: "rule_user_enumeration", Name: "User enumeration", Category: "A01", SeverityDefault: models.SeverityMedium, Enabled: false},
	}

	var table bytes.Buffer
	require.NoError(t, New(FormatTable).RenderRules(&table, rules, []string{"broken.json: missing 'name'"}))
	out := table.String()
	assert.Contains(t, out, "Load errors:\n  broken.json: missing 'name'\n")
	lines := strings.Split(out, "\n")
	assert.Equal(t, []string{"rule_user_enumeration", "MEDIUM", "A01", "false", "User", "enumeration"}, strings.Fields(lines[2]))

	var js bytes.Buffer
	require.NoError(t, New(FormatJSON).RenderRules(&js, nil, nil))
	assert.JSONEq(t, `{"rules": [], "errors": []}`, js.String())
}
