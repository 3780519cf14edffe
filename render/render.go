package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/Chinzzii/wpvulscan/models"
	"github.com/Chinzzii/wpvulscan/scan"
	"github.com/Chinzzii/wpvulscan/scoring"
)

type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// Report is the printable outcome of one scan run.
type Report struct {
	ScanID    int64             `json:"scan_id"`
	RunID     string            `json:"run_id"`
	ScoreData scoring.ScoreData `json:"score_data"`
	Results   scoring.Results   `json:"results"`
	Error     string            `json:"error,omitempty"`
}

func FromRun(res scan.RunResult) Report {
	r := Report{
		ScanID:    res.ScanID,
		RunID:     res.RunID,
		ScoreData: res.ScoreData,
		Results:   res.Results,
	}
	if res.Err != nil {
		r.Error = res.Err.Error()
	}
	return r
}

type Renderer interface {
	Render(w io.Writer, report Report) error
	RenderHistory(w io.Writer, entries []models.HistoryEntry) error
	RenderRules(w io.Writer, rules []models.Rule, loadErrors []string) error
}

func New(f Format) Renderer {
	switch f {
	case FormatJSON:
		return &jsonRenderer{}
	default:
		return &tableRenderer{}
	}
}

type jsonRenderer struct{}

func (r *jsonRenderer) Render(w io.Writer, report Report) error {
	return encode(w, report)
}

func (r *jsonRenderer) RenderHistory(w io.Writer, entries []models.HistoryEntry) error {
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	return encode(w, entries)
}

func (r *jsonRenderer) RenderRules(w io.Writer, rules []models.Rule, loadErrors []string) error {
	if rules == nil {
		rules = []models.Rule{}
	}
	if loadErrors == nil {
		loadErrors = []string{}
	}
	return encode(w, struct {
		Rules  []models.Rule `json:"rules"`
		Errors []string      `json:"errors"`
	}{rules, loadErrors})
}

func encode(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type tableRenderer struct{}

func (r *tableRenderer) Render(w io.Writer, report Report) error {
	data := report.ScoreData
	fmt.Fprintf(w, "Scan %d (%s)\n", report.ScanID, report.RunID)
	if report.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", report.Error)
		return nil
	}
	fmt.Fprintf(w, "Score: %d/100  Riesgo: %s\n\n", data.Score, riskLabel(data.Risk))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "CATEGORY\tCOUNT\tRAW SCORE\n")
	for _, c := range models.Categories {
		s, ok := data.Breakdown[c]
		if !ok {
			continue
		}
		fmt.Fprintf(tw, "%s\t%d\t%.1f\n", c.Label(), s.Count, s.RawScore)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	res := report.Results
	for _, c := range models.Categories {
		if !res.Present(c) {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", c.Label())
		lines := issueLines(res, c)
		if len(lines) == 0 {
			fmt.Fprintf(w, "  (sin incidencias)\n")
		}
		for _, l := range lines {
			fmt.Fprintf(w, "  %s\n", l)
		}
	}
	return nil
}

func (r *tableRenderer) RenderHistory(w io.Writer, entries []models.HistoryEntry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "TIMESTAMP\tSCORE\tRISK\n")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", e.Timestamp.Format("2006-01-02 15:04:05"), e.Score, e.RiskLevel)
	}
	return tw.Flush()
}

func (r *tableRenderer) RenderRules(w io.Writer, rules []models.Rule, loadErrors []string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tSEVERITY\tCATEGORY\tENABLED\tNAME\n")
	for _, rule := range rules {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n",
			rule.ID,
			severityLabel(rule.SeverityDefault),
			rule.Category,
			rule.Enabled,
			rule.Name,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(loadErrors) > 0 {
		fmt.Fprintf(w, "\nLoad errors:\n")
		for _, e := range loadErrors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	return nil
}

func issueLines(res scoring.Results, c models.Category) []string {
	var lines []string
	switch c {
	case models.CategoryConfig:
		for _, i := range res.Config {
			lines = append(lines, fmt.Sprintf("[%s] %s", i.Type, i.Message))
		}
	case models.CategoryForms:
		for _, rep := range res.Forms {
			lines = append(lines, fmt.Sprintf("%s (HTTP %d)", rep.URL, rep.HTTPCode))
			for _, f := range rep.Forms {
				lines = append(lines, fmt.Sprintf("  #%d %s %s %s https=%t csrf=%t",
					f.Index, severityLabel(f.Severity), f.Method, f.ActionResolved, f.HTTPS, f.CSRF))
			}
		}
	case models.CategoryHardening:
		for _, i := range res.Hardening {
			lines = append(lines, fmt.Sprintf("%s %s", severityLabel(i.Severity), i.Message))
		}
	case models.CategorySystem:
		for _, i := range res.System {
			lines = append(lines, fmt.Sprintf("[%s] %s", i.Type, i.Message))
		}
	case models.CategoryExternal:
		for _, i := range res.External {
			lines = append(lines, i.String())
		}
	case models.CategoryPlugins:
		for _, v := range res.Plugins {
			lines = append(lines, v.String())
		}
	}
	return lines
}

func riskLabel(r scoring.RiskLevel) string {
	var c *color.Color
	switch r {
	case scoring.RiskCritical:
		c = color.New(color.FgRed, color.Bold)
	case scoring.RiskHigh:
		c = color.New(color.FgRed)
	case scoring.RiskMedium:
		c = color.New(color.FgYellow)
	case scoring.RiskLow:
		c = color.New(color.FgGreen)
	default:
		c = color.New(color.FgWhite)
	}
	return c.Sprint(r.Level)
}

func severityLabel(s models.Severity) string {
	label := strings.ToUpper(string(s))
	switch s {
	case models.SeverityCritical:
		return color.New(color.FgRed, color.Bold).Sprint(label)
	case models.SeverityHigh:
		return color.New(color.FgRed).Sprint(label)
	case models.SeverityMedium:
		return color.New(color.FgYellow).Sprint(label)
	case models.SeverityLow:
		return color.New(color.FgCyan).Sprint(label)
	}
	return label
}
