package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Severity is the normalized severity of a rule, finding or issue
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// ParseSeverity lower-cases and trims s. Unknown values are kept as-is so
// that callers can decide on their own fallback.
func ParseSeverity(s string) Severity {
	return Severity(strings.ToLower(strings.TrimSpace(s)))
}

// Known reports whether s is one of the recognized severity levels
func (s Severity) Known() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return true
	}
	return false
}

// Confidence of a finding
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// JSONDoc is an opaque JSON document stored in a TEXT column
type JSONDoc json.RawMessage

// Scan implements sql.Scanner interface for database read
func (d *JSONDoc) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*d = nil
		return nil
	case []byte:
		*d = append((*d)[:0], v...)
		return nil
	case string:
		*d = JSONDoc(v)
		return nil
	}
	return errors.New("invalid type for json document")
}

// Value implements driver.Valuer interface for database write
func (d JSONDoc) Value() (driver.Value, error) {
	if len(d) == 0 {
		return nil, nil
	}
	return string(d), nil
}

// MarshalJSON keeps the document verbatim
func (d JSONDoc) MarshalJSON() ([]byte, error) {
	if len(d) == 0 {
		return []byte("null"), nil
	}
	return d, nil
}

// UnmarshalJSON stores the raw document
func (d *JSONDoc) UnmarshalJSON(data []byte) error {
	*d = append((*d)[:0], data...)
	return nil
}

// Rule is a declarative detection definition loaded from the rules directory
type Rule struct {
	ID              string   `json:"id"`               // Unique rule identifier
	Name            string   `json:"name"`             // Human readable name
	Category        string   `json:"category"`         // Rule category (often an OWASP bucket)
	SeverityDefault Severity `json:"severity_default"` // Severity used when the detector gives none
	CWE             string   `json:"cwe"`              // CWE reference, empty when unknown
	OWASP           string   `json:"owasp"`            // OWASP tag, empty when unknown
	Pattern         JSONDoc  `json:"pattern"`          // Opaque detection pattern
	Enabled         bool     `json:"enabled"`          // Disabled rules stay in the catalog
	Source          string   `json:"source,omitempty"` // File the rule was loaded from
}

// Finding is an immutable, rule-attributed detection record
type Finding struct {
	ID            int64      `db:"id" json:"id"`
	AssetID       *int64     `db:"asset_id" json:"asset_id,omitempty"`
	RuleID        string     `db:"rule_id" json:"rule_id"`
	CVEID         string     `db:"cve_id" json:"cve_id,omitempty"`
	CWE           string     `db:"cwe" json:"cwe,omitempty"`
	OWASP         string     `db:"owasp" json:"owasp,omitempty"`
	Severity      Severity   `db:"severity" json:"severity"`
	Confidence    Confidence `db:"confidence" json:"confidence"`
	Path          string     `db:"path" json:"path,omitempty"`
	Line          *int       `db:"line" json:"line,omitempty"`
	FunctionName  string     `db:"function_name" json:"function_name,omitempty"`
	HookName      string     `db:"hook_name" json:"hook_name,omitempty"`
	Trace         JSONDoc    `db:"trace_json" json:"trace,omitempty"`
	SamplePayload string     `db:"sample_payload" json:"sample_payload,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// Category identifies one of the issue lists collected during a scan
type Category string

const (
	CategoryConfig    Category = "config"
	CategoryForms     Category = "forms"
	CategoryHardening Category = "hardening"
	CategorySystem    Category = "system"
	CategoryExternal  Category = "external"
	CategoryPlugins   Category = "plugins"
)

// Categories lists every category in report order
var Categories = []Category{
	CategoryConfig,
	CategoryForms,
	CategoryHardening,
	CategorySystem,
	CategoryExternal,
	CategoryPlugins,
}

var categoryLabels = map[Category]string{
	CategoryConfig:    "Configuración insegura",
	CategoryForms:     "Formularios inseguros",
	CategoryHardening: "Hardening",
	CategorySystem:    "Usuarios predecibles / permisos inseguros",
	CategoryExternal:  "Rutas externas sensibles",
	CategoryPlugins:   "Vulnerabilidades en plugins",
}

// Label returns the report label of the category
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}

// Meta carries free-form detector context for an issue
type Meta map[string]interface{}

// ConfigIssueType classifies configuration exposure issues
type ConfigIssueType string

const (
	ConfigExposure    ConfigIssueType = "exposure"
	ConfigGit         ConfigIssueType = "git"
	ConfigBackup      ConfigIssueType = "backup"
	ConfigVersionLeak ConfigIssueType = "version_leak"
	ConfigXMLRPC      ConfigIssueType = "xmlrpc"
	ConfigInstaller   ConfigIssueType = "installer"
)

// ConfigIssue is a configuration exposure detected on the target
type ConfigIssue struct {
	Type    ConfigIssueType `json:"type"`
	Message string          `json:"message"`
	Meta    Meta            `json:"meta,omitempty"`
	Time    time.Time       `json:"time"`
}

// SensitiveFields flags sensitive inputs found in a form
type SensitiveFields struct {
	Password bool `json:"password"`
	File     bool `json:"file"`
}

// Form is the analysis of a single <form> element
type Form struct {
	Index          int             `json:"index"`
	Method         string          `json:"method"`
	ActionRaw      string          `json:"action_raw"`
	ActionResolved string          `json:"action_resolved"`
	HTTPS          bool            `json:"https"`
	CSRF           bool            `json:"csrf"`
	Sensitive      SensitiveFields `json:"sensitive"`
	Severity       Severity        `json:"severity"`
}

// FormReport groups the forms found on one URL
type FormReport struct {
	URL      string `json:"url"`
	HTTPCode int    `json:"http_code"`
	Forms    []Form `json:"forms"`
}

// HardeningIssue is a missing hardening measure with its own severity
type HardeningIssue struct {
	Type           string    `json:"type"`
	Severity       Severity  `json:"severity"`
	Message        string    `json:"message"`
	Recommendation string    `json:"recommendation,omitempty"`
	Meta           Meta      `json:"meta,omitempty"`
	Time           time.Time `json:"time"`
}

// SystemIssueType classifies system level issues
type SystemIssueType string

const (
	SystemREST       SystemIssueType = "rest"
	SystemFilesystem SystemIssueType = "filesystem"
	SystemCore       SystemIssueType = "core"
	SystemPlugins    SystemIssueType = "plugins"
	SystemUsers      SystemIssueType = "users"
)

// SystemIssue is a user, permission or platform issue
type SystemIssue struct {
	Type    SystemIssueType `json:"type"`
	Message string          `json:"message"`
	Meta    Meta            `json:"meta,omitempty"`
	Time    time.Time       `json:"time"`
}

// ExternalIssueKind classifies an external URL observation
type ExternalIssueKind string

const (
	ExternalNoIssues          ExternalIssueKind = "none"
	ExternalConnectionError   ExternalIssueKind = "connection_error"
	ExternalMissingHeader     ExternalIssueKind = "missing_header"
	ExternalInsecureTransport ExternalIssueKind = "insecure_transport"
	ExternalInsecureForm      ExternalIssueKind = "insecure_form"
	ExternalOther             ExternalIssueKind = "other"
)

// ExternalIssue is one observation about a user supplied URL
type ExternalIssue struct {
	URL     string            `json:"url"`
	Message string            `json:"message"`
	Kind    ExternalIssueKind `json:"kind"`
	Time    time.Time         `json:"time"`
}

// String renders the issue the way it appears in reports
func (e ExternalIssue) String() string {
	return fmt.Sprintf("%s — %s", e.URL, e.Message)
}

// PluginVuln is a known vulnerability affecting an installed plugin
type PluginVuln struct {
	Plugin    string   `json:"plugin"`
	Slug      string   `json:"slug"`
	Installed string   `json:"installed"`
	Active    bool     `json:"active"`
	CVE       string   `json:"cve,omitempty"`
	CVSS      *float64 `json:"cvss,omitempty"`
	FixedIn   string   `json:"fixed_in,omitempty"`
	Title     string   `json:"title"`
}

// String renders the advisory line used in reports
func (p PluginVuln) String() string {
	parts := []string{strings.TrimSpace(p.Plugin + " " + p.Installed)}
	if p.CVE != "" {
		parts = append(parts, p.CVE)
	}
	if p.CVSS != nil {
		parts = append(parts, fmt.Sprintf("CVSS %.1f", *p.CVSS))
	}
	if p.Title != "" {
		parts = append(parts, p.Title)
	}
	return strings.Join(parts, " — ")
}

// ScanStatus is the lifecycle state of a scan run
type ScanStatus string

const (
	ScanRunning  ScanStatus = "running"
	ScanFinished ScanStatus = "finished"
	ScanFailed   ScanStatus = "failed"
)

// ScanRun tracks one orchestrated scan
type ScanRun struct {
	ID         int64      `db:"id" json:"id"`
	RunID      string     `db:"run_id" json:"run_id"`
	StartedAt  time.Time  `db:"started_at" json:"started_at"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	Scope      string     `db:"scope" json:"scope"`
	Status     ScanStatus `db:"status" json:"status"`
}

// HistoryEntry is the score of one completed scan
type HistoryEntry struct {
	Timestamp time.Time `db:"timestamp" json:"timestamp"`
	Score     int       `db:"score" json:"score"`
	RiskLevel string    `db:"risk_level" json:"risk_level"`
}
