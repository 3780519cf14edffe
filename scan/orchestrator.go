package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Chinzzii/wpvulscan/findings"
	"github.com/Chinzzii/wpvulscan/issues"
	"github.com/Chinzzii/wpvulscan/logging"
	"github.com/Chinzzii/wpvulscan/models"
	"github.com/Chinzzii/wpvulscan/scoring"
	"github.com/Chinzzii/wpvulscan/storage"
)

// ErrScanInProgress is returned when a run is requested while another one
// holds the orchestrator.
var ErrScanInProgress = errors.New("scan already in progress")

// RulePluginVulnerable attributes plugin advisories in the finding log.
const RulePluginVulnerable = "rule_plugin_vulnerable"

const (
	stateIssuesPrefix = "issues:"
	stateLastScore    = "score:last"
)

// Detector fills one issue category of the scan context.
type Detector interface {
	Name() string
	Run(ctx context.Context, sc *issues.ScanContext) error
}

// PluginChecker lists the advisories affecting the installed plugins.
type PluginChecker interface {
	CheckVulnerable(ctx context.Context) ([]models.PluginVuln, error)
}

// RunStore tracks the lifecycle of scan runs.
type RunStore interface {
	StartScan(ctx context.Context, scope, runID string) (int64, error)
	FinishScan(ctx context.Context, id int64, status models.ScanStatus) error
}

// StateStore keeps the score history and the last run's issue lists.
type StateStore interface {
	PutState(ctx context.Context, key string, v interface{}) error
	GetState(ctx context.Context, key string, dest interface{}) error
	AppendHistory(ctx context.Context, e models.HistoryEntry) error
	ListHistory(ctx context.Context) ([]models.HistoryEntry, error)
}

// RunResult is the outcome of RunFullScan. Err is set when the run failed.
type RunResult struct {
	ScanID    int64
	RunID     string
	ScoreData scoring.ScoreData
	Results   scoring.Results
	Err       error
}

// Options wires the orchestrator dependencies. Only Detectors is required.
type Options struct {
	Detectors []Detector
	Plugins   PluginChecker
	Runs      RunStore
	State     StateStore
	Recorder  issues.FindingRecorder
	Log       *zap.SugaredLogger
}

// Orchestrator runs the detectors, scores the collected issues and keeps
// the history. One run at a time.
type Orchestrator struct {
	detectors []Detector
	plugins   PluginChecker
	runs      RunStore
	state     StateStore
	recorder  issues.FindingRecorder
	log       *zap.SugaredLogger
	now       func() time.Time

	mu sync.Mutex
}

func New(opts Options) *Orchestrator {
	return &Orchestrator{
		detectors: opts.Detectors,
		plugins:   opts.Plugins,
		runs:      opts.Runs,
		state:     opts.State,
		recorder:  opts.Recorder,
		log:       logging.OrNop(opts.Log).With("component", "scan"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RunFullScan executes one complete scan. A failing detector, plugin check
// or scoring step marks the run failed and leaves the history untouched.
func (o *Orchestrator) RunFullScan(ctx context.Context, scope string) RunResult {
	if !o.mu.TryLock() {
		return RunResult{ScoreData: scoring.MissingScore(), Err: ErrScanInProgress}
	}
	defer o.mu.Unlock()

	runID := uuid.NewString()
	var scanID int64
	if o.runs != nil {
		id, err := o.runs.StartScan(context.WithoutCancel(ctx), scope, runID)
		if err != nil {
			o.log.Errorw("Failed to record scan start", "run_id", runID, "error", err)
		} else {
			scanID = id
		}
	}

	log := o.log.With("scan_id", scanID, "run_id", runID)
	log.Infow("Scan started", "scope", scope, "detectors", len(o.detectors))
	started := time.Now()

	sc := issues.NewScanContext(scanID, runID, scope, o.recorder)
	data, err := o.execute(ctx, sc, log)
	if err != nil {
		log.Errorw("Scan failed", "error", err)
		o.finish(ctx, scanID, models.ScanFailed, log)
		return RunResult{ScanID: scanID, RunID: runID, ScoreData: scoring.MissingScore(), Err: err}
	}

	results := sc.Results()
	o.persist(ctx, sc, data, log)
	o.finish(ctx, scanID, models.ScanFinished, log)

	log.Infow("Scan completed",
		"score", data.Score,
		"risk", data.Risk.Level,
		"duration", time.Since(started).String(),
	)
	return RunResult{ScanID: scanID, RunID: runID, ScoreData: data, Results: results}
}

func (o *Orchestrator) execute(ctx context.Context, sc *issues.ScanContext, log *zap.SugaredLogger) (scoring.ScoreData, error) {
	for _, d := range o.detectors {
		if err := ctx.Err(); err != nil {
			return scoring.ScoreData{}, err
		}
		err := guard(d.Name(), func() error { return d.Run(ctx, sc) })
		if err != nil {
			return scoring.ScoreData{}, fmt.Errorf("detector %s: %w", d.Name(), err)
		}
		log.Debugw("Detector finished", "detector", d.Name())
	}

	if o.plugins != nil {
		err := guard("plugins", func() error { return o.collectPlugins(ctx, sc) })
		if err != nil {
			return scoring.ScoreData{}, fmt.Errorf("plugin check: %w", err)
		}
	}

	var data scoring.ScoreData
	err := guard("scoring", func() error {
		data = scoring.Calculate(sc.Results())
		return nil
	})
	if err != nil {
		return scoring.ScoreData{}, err
	}
	return data, nil
}

func (o *Orchestrator) collectPlugins(ctx context.Context, sc *issues.ScanContext) error {
	vulns, err := o.plugins.CheckVulnerable(ctx)
	if err != nil {
		return err
	}

	sc.Plugins.Reset()
	for _, v := range vulns {
		sc.Plugins.Add(v)
		sc.Record(ctx, RulePluginVulnerable, findings.Context{
			CVEID:         v.CVE,
			Severity:      SeverityForCVSS(v.CVSS),
			Path:          v.Slug,
			SamplePayload: v.String(),
		})
	}
	return nil
}

// persist stores the issue lists, the score and the history entry of a
// completed run. Failures are logged; the run itself already succeeded.
func (o *Orchestrator) persist(ctx context.Context, sc *issues.ScanContext, data scoring.ScoreData, log *zap.SugaredLogger) {
	if o.state == nil {
		return
	}

	for _, c := range models.Categories {
		if err := o.state.PutState(ctx, stateIssuesPrefix+string(c), sc.Snapshot(c)); err != nil {
			log.Errorw("Failed to store issue list", "category", c, "error", err)
		}
	}
	if err := o.state.PutState(ctx, stateLastScore, data); err != nil {
		log.Errorw("Failed to store score", "error", err)
	}

	entry := models.HistoryEntry{Timestamp: o.now(), Score: data.Score, RiskLevel: data.Risk.Level}
	if err := o.state.AppendHistory(ctx, entry); err != nil {
		log.Errorw("Failed to append history", "error", err)
	}
}

func (o *Orchestrator) finish(ctx context.Context, scanID int64, status models.ScanStatus, log *zap.SugaredLogger) {
	if o.runs == nil || scanID == 0 {
		return
	}
	// run rows are written even when the caller gave up
	if err := o.runs.FinishScan(context.WithoutCancel(ctx), scanID, status); err != nil {
		log.Errorw("Failed to record scan end", "status", status, "error", err)
	}
}

// History returns the kept score history, oldest first.
func (o *Orchestrator) History(ctx context.Context) ([]models.HistoryEntry, error) {
	if o.state == nil {
		return []models.HistoryEntry{}, nil
	}
	return o.state.ListHistory(ctx)
}

// LastResults returns the issue lists and score of the last completed run.
// Categories never stored come back absent.
func (o *Orchestrator) LastResults(ctx context.Context) (scoring.Results, scoring.ScoreData, error) {
	var r scoring.Results
	if o.state == nil {
		return r, scoring.MissingScore(), nil
	}

	targets := map[models.Category]interface{}{
		models.CategoryConfig:    &r.Config,
		models.CategoryForms:     &r.Forms,
		models.CategoryHardening: &r.Hardening,
		models.CategorySystem:    &r.System,
		models.CategoryExternal:  &r.External,
		models.CategoryPlugins:   &r.Plugins,
	}
	for _, c := range models.Categories {
		err := o.state.GetState(ctx, stateIssuesPrefix+string(c), targets[c])
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return r, scoring.MissingScore(), err
		}
	}

	data := scoring.MissingScore()
	if err := o.state.GetState(ctx, stateLastScore, &data); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return r, scoring.MissingScore(), err
	}
	return r, data, nil
}

// guard turns a panic in fn into an error.
func guard(name string, fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%s panicked: %v", name, p)
		}
	}()
	return fn()
}

// SeverityForCVSS maps a CVSS base score onto the qualitative rating. A
// missing score leaves the rule default in place.
func SeverityForCVSS(cvss *float64) models.Severity {
	if cvss == nil {
		return ""
	}
	switch s := *cvss; {
	case s >= 9.0:
		return models.SeverityCritical
	case s >= 7.0:
		return models.SeverityHigh
	case s >= 4.0:
		return models.SeverityMedium
	case s > 0:
		return models.SeverityLow
	}
	return models.SeverityInfo
}
