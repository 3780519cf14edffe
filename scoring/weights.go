package scoring

import (
	"math"
	"regexp"
	"strconv"

	"github.com/Chinzzii/wpvulscan/models"
)

const (
	weightCritical = 8.0
	weightHigh     = 5.0
	weightMedium   = 3.0
	weightLow      = 1.0
	weightInfo     = 0.5

	// weightUnrecognized applies to severities outside the known set
	weightUnrecognized = 1.0

	pluginBaseWeight = 5.0
)

// SeverityWeight weights forms and hardening issues by their own severity.
func SeverityWeight(s models.Severity) float64 {
	switch models.ParseSeverity(string(s)) {
	case models.SeverityCritical:
		return weightCritical
	case models.SeverityHigh:
		return weightHigh
	case models.SeverityMedium:
		return weightMedium
	case models.SeverityLow:
		return weightLow
	case models.SeverityInfo:
		return weightInfo
	}
	return weightUnrecognized
}

// ConfigWeight weights a configuration issue by its type.
func ConfigWeight(t models.ConfigIssueType) float64 {
	switch t {
	case models.ConfigExposure, models.ConfigGit, models.ConfigBackup:
		return weightCritical
	case models.ConfigVersionLeak, models.ConfigXMLRPC, models.ConfigInstaller:
		return weightMedium
	}
	return weightMedium
}

// SystemWeight weights a system issue by its type.
func SystemWeight(t models.SystemIssueType) float64 {
	switch t {
	case models.SystemREST, models.SystemFilesystem, models.SystemCore:
		return weightHigh
	case models.SystemPlugins, models.SystemUsers:
		return weightMedium
	}
	return weightMedium
}

// ExternalWeight weights an external URL observation by its kind.
func ExternalWeight(k models.ExternalIssueKind) float64 {
	switch k {
	case models.ExternalNoIssues:
		return 0
	case models.ExternalConnectionError:
		return weightInfo
	case models.ExternalMissingHeader:
		return weightMedium
	case models.ExternalInsecureTransport, models.ExternalInsecureForm:
		return weightHigh
	case models.ExternalOther:
		return weightLow
	}
	return weightLow
}

// PluginWeight is 5.0 per vulnerability, or the CVSS mapped onto 1.0..8.0
// when the score is known and finite.
func PluginWeight(v models.PluginVuln) float64 {
	if v.CVSS == nil || math.IsNaN(*v.CVSS) || math.IsInf(*v.CVSS, 0) {
		return pluginBaseWeight
	}
	return CVSSWeight(*v.CVSS)
}

// CVSSWeight maps a 0..10 CVSS score onto the 1.0..8.0 weight range,
// rounded to one decimal.
func CVSSWeight(cvss float64) float64 {
	w := math.Round(cvss/10*8*10) / 10
	return math.Max(weightLow, math.Min(weightCritical, w))
}

var cvssPattern = regexp.MustCompile(`(?i)CVSS[:\s]*([0-9]+(?:\.[0-9]+)?)`)

// ExtractCVSS finds a "CVSS <score>" mention in advisory text.
func ExtractCVSS(text string) (float64, bool) {
	m := cvssPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
