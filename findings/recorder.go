package findings

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Chinzzii/wpvulscan/logging"
	"github.com/Chinzzii/wpvulscan/models"
)

// Status is the outcome of a Record call.
type Status string

const (
	Recorded               Status = "recorded"
	RuleNotFound           Status = "rule_not_found"
	PersistenceUnavailable Status = "persistence_unavailable"
)

// Context carries the detector supplied details of a finding. Empty fields
// fall back to the rule definition.
type Context struct {
	AssetID       *int64
	CVEID         string
	CWE           string
	OWASP         string
	Severity      models.Severity
	Confidence    models.Confidence
	Path          string
	Line          *int
	FunctionName  string
	HookName      string
	Trace         models.JSONDoc
	SamplePayload string
}

// RuleResolver looks rules up by id.
type RuleResolver interface {
	RuleByID(id string) (models.Rule, bool)
}

// Writer persists findings.
type Writer interface {
	InsertFinding(ctx context.Context, f *models.Finding) (int64, error)
}

// Recorder turns detector observations into persisted findings. It never
// returns an error to the caller; failures are reported through Status.
type Recorder struct {
	rules  RuleResolver
	writer Writer
	log    *zap.SugaredLogger
	now    func() time.Time
}

func NewRecorder(rules RuleResolver, writer Writer, log *zap.SugaredLogger) *Recorder {
	return &Recorder{
		rules:  rules,
		writer: writer,
		log:    logging.OrNop(log).With("component", "findings"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Record resolves ruleID and writes one finding.
func (r *Recorder) Record(ctx context.Context, ruleID string, c Context) Status {
	rule, ok := r.rules.RuleByID(ruleID)
	if !ok {
		r.log.Warnw("Finding references unknown rule", "rule_id", ruleID)
		return RuleNotFound
	}

	f := Build(rule, c, r.now())

	if r.writer == nil {
		r.log.Errorw("Finding store not configured", "rule_id", ruleID)
		return PersistenceUnavailable
	}
	if _, err := r.writer.InsertFinding(ctx, &f); err != nil {
		r.log.Errorw("Failed to persist finding", "rule_id", ruleID, "error", err)
		return PersistenceUnavailable
	}

	r.log.Debugw("Finding recorded", "rule_id", ruleID, "severity", f.Severity, "path", f.Path)
	return Recorded
}

// Build applies the rule defaults to c.
func Build(rule models.Rule, c Context, at time.Time) models.Finding {
	severity := models.ParseSeverity(string(c.Severity))
	if !severity.Known() {
		severity = models.ParseSeverity(string(rule.SeverityDefault))
	}
	if !severity.Known() {
		severity = models.SeverityMedium
	}

	cwe := c.CWE
	if cwe == "" {
		cwe = rule.CWE
	}

	owasp := c.OWASP
	if owasp == "" {
		owasp = rule.OWASP
	}
	if owasp == "" {
		owasp = rule.Category
	}

	confidence := models.Confidence(strings.ToLower(string(c.Confidence)))
	if confidence == "" {
		confidence = models.ConfidenceHigh
	}

	return models.Finding{
		AssetID:       c.AssetID,
		RuleID:        rule.ID,
		CVEID:         c.CVEID,
		CWE:           cwe,
		OWASP:         owasp,
		Severity:      severity,
		Confidence:    confidence,
		Path:          c.Path,
		Line:          c.Line,
		FunctionName:  c.FunctionName,
		HookName:      c.HookName,
		Trace:         c.Trace,
		SamplePayload: c.SamplePayload,
		CreatedAt:     at,
	}
}
