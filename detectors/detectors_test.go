package detectors

import (
	"context"
	"time"

	"github.com/Chinzzii/wpvulscan/config"
	"github.com/Chinzzii/wpvulscan/findings"
	"github.com/Chinzzii/wpvulscan/issues"
	"github.com/Chinzzii/wpvulscan/probe"
)

type recordedFinding struct {
	ruleID string
	ctx    findings.Context
}

type captureRecorder struct {
	calls []recordedFinding
}

func (c *captureRecorder) Record(_ context.Context, ruleID string, fc findings.Context) findings.Status {
	c.calls = append(c.calls, recordedFinding{ruleID: ruleID, ctx: fc})
	return findings.Recorded
}

func newProber() *probe.Client {
	return probe.New(config.ProbeConfig{Timeout: 2 * time.Second, InsecureSkipVerify: true}, nil)
}

func newScanContext() (*issues.ScanContext, *captureRecorder) {
	rec := &captureRecorder{}
	return issues.NewScanContext(1, "run-test", "full", rec), rec
}
