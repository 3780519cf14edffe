package scoring

import (
	"encoding/json"
	"math"

	"github.com/Chinzzii/wpvulscan/models"
)

// Results holds the issue lists of one scan. A nil list means the category
// was not collected and contributes nothing; an empty list scores zero.
type Results struct {
	Config    []models.ConfigIssue
	Forms     []models.FormReport
	Hardening []models.HardeningIssue
	System    []models.SystemIssue
	External  []models.ExternalIssue
	Plugins   []models.PluginVuln
}

// Present reports whether category c was collected.
func (r Results) Present(c models.Category) bool {
	switch c {
	case models.CategoryConfig:
		return r.Config != nil
	case models.CategoryForms:
		return r.Forms != nil
	case models.CategoryHardening:
		return r.Hardening != nil
	case models.CategorySystem:
		return r.System != nil
	case models.CategoryExternal:
		return r.External != nil
	case models.CategoryPlugins:
		return r.Plugins != nil
	}
	return false
}

// MarshalJSON keys the present categories by their report label.
func (r Results) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{})
	put := func(c models.Category, v interface{}) {
		if r.Present(c) {
			out[c.Label()] = v
		}
	}
	put(models.CategoryConfig, r.Config)
	put(models.CategoryForms, r.Forms)
	put(models.CategoryHardening, r.Hardening)
	put(models.CategorySystem, r.System)
	put(models.CategoryExternal, r.External)
	put(models.CategoryPlugins, r.Plugins)
	return json.Marshal(out)
}

// RiskLevel is the risk tier of a score.
type RiskLevel struct {
	Level string `json:"level"`
	Color string `json:"color"`
}

var (
	RiskCritical = RiskLevel{Level: "Crítico", Color: "#c62828"}
	RiskHigh     = RiskLevel{Level: "Alto", Color: "#ef6c00"}
	RiskMedium   = RiskLevel{Level: "Medio", Color: "#f9a825"}
	RiskLow      = RiskLevel{Level: "Bajo", Color: "#2e7d32"}
	RiskUnknown  = RiskLevel{Level: "N/A", Color: "#607d8b"}
)

// CategoryScore is the contribution of one category.
type CategoryScore struct {
	RawScore float64 `json:"raw_score"`
	Count    int     `json:"count"`
}

// ScoreData is the outcome of Calculate.
type ScoreData struct {
	Score     int                                `json:"score"`
	Risk      RiskLevel                          `json:"risk"`
	Breakdown map[models.Category]CategoryScore `json:"breakdown"`
}

// MissingScore is reported when no score could be computed.
func MissingScore() ScoreData {
	return ScoreData{Risk: RiskUnknown, Breakdown: map[models.Category]CategoryScore{}}
}

// Calculate weights every present category, sums the sub-scores and maps
// the total onto 0..100.
func Calculate(r Results) ScoreData {
	breakdown := make(map[models.Category]CategoryScore)
	total := 0.0

	add := func(c models.Category, raw float64, count int) {
		breakdown[c] = CategoryScore{RawScore: raw, Count: count}
		total += raw
	}

	if r.Config != nil {
		raw := 0.0
		for _, issue := range r.Config {
			raw += ConfigWeight(issue.Type)
		}
		add(models.CategoryConfig, raw, len(r.Config))
	}

	if r.Forms != nil {
		// forms are weighted one by one, not per URL block
		raw, count := 0.0, 0
		for _, report := range r.Forms {
			for _, form := range report.Forms {
				raw += SeverityWeight(form.Severity)
				count++
			}
		}
		add(models.CategoryForms, raw, count)
	}

	if r.Hardening != nil {
		raw := 0.0
		for _, issue := range r.Hardening {
			raw += SeverityWeight(issue.Severity)
		}
		add(models.CategoryHardening, raw, len(r.Hardening))
	}

	if r.System != nil {
		raw := 0.0
		for _, issue := range r.System {
			raw += SystemWeight(issue.Type)
		}
		add(models.CategorySystem, raw, len(r.System))
	}

	if r.External != nil {
		raw := 0.0
		for _, issue := range r.External {
			raw += ExternalWeight(issue.Kind)
		}
		add(models.CategoryExternal, raw, len(r.External))
	}

	if r.Plugins != nil {
		raw := 0.0
		for _, vuln := range r.Plugins {
			raw += PluginWeight(vuln)
		}
		add(models.CategoryPlugins, raw, len(r.Plugins))
	}

	score := Normalize(total)
	return ScoreData{Score: score, Risk: Classify(score), Breakdown: breakdown}
}

// Normalize rounds total and caps it to 0..100.
func Normalize(total float64) int {
	score := int(math.Round(total))
	if score > 100 {
		return 100
	}
	if score < 0 {
		return 0
	}
	return score
}

// Classify maps a score onto its risk tier.
func Classify(score int) RiskLevel {
	switch {
	case score >= 60:
		return RiskCritical
	case score >= 30:
		return RiskHigh
	case score >= 10:
		return RiskMedium
	}
	return RiskLow
}
