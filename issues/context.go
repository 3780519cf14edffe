package issues

import (
	"context"

	"github.com/Chinzzii/wpvulscan/findings"
	"github.com/Chinzzii/wpvulscan/models"
	"github.com/Chinzzii/wpvulscan/scoring"
)

// FindingRecorder records rule attributed findings.
type FindingRecorder interface {
	Record(ctx context.Context, ruleID string, c findings.Context) findings.Status
}

// ScanContext owns the issue lists of one scan run. Detectors receive it
// explicitly; nothing is shared between runs.
type ScanContext struct {
	ScanID int64
	RunID  string
	Scope  string

	Config    Accumulator[models.ConfigIssue]
	Forms     Accumulator[models.FormReport]
	Hardening Accumulator[models.HardeningIssue]
	System    Accumulator[models.SystemIssue]
	External  Accumulator[models.ExternalIssue]
	Plugins   Accumulator[models.PluginVuln]

	recorder FindingRecorder
}

func NewScanContext(scanID int64, runID, scope string, recorder FindingRecorder) *ScanContext {
	return &ScanContext{
		ScanID:   scanID,
		RunID:    runID,
		Scope:    scope,
		recorder: recorder,
	}
}

// Record forwards a finding to the recorder. Without a recorder the call is
// reported as PersistenceUnavailable.
func (s *ScanContext) Record(ctx context.Context, ruleID string, c findings.Context) findings.Status {
	if s.recorder == nil {
		return findings.PersistenceUnavailable
	}
	return s.recorder.Record(ctx, ruleID, c)
}

// Results snapshots every accumulator for scoring.
func (s *ScanContext) Results() scoring.Results {
	return scoring.Results{
		Config:    s.Config.Snapshot(),
		Forms:     s.Forms.Snapshot(),
		Hardening: s.Hardening.Snapshot(),
		System:    s.System.Snapshot(),
		External:  s.External.Snapshot(),
		Plugins:   s.Plugins.Snapshot(),
	}
}

// Snapshot returns the issue list of category c, nil when not collected.
func (s *ScanContext) Snapshot(c models.Category) interface{} {
	switch c {
	case models.CategoryConfig:
		return s.Config.Snapshot()
	case models.CategoryForms:
		return s.Forms.Snapshot()
	case models.CategoryHardening:
		return s.Hardening.Snapshot()
	case models.CategorySystem:
		return s.System.Snapshot()
	case models.CategoryExternal:
		return s.External.Snapshot()
	case models.CategoryPlugins:
		return s.Plugins.Snapshot()
	}
	return nil
}
