package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Chinzzii/wpvulscan/config"
	"github.com/Chinzzii/wpvulscan/detectors"
	"github.com/Chinzzii/wpvulscan/findings"
	"github.com/Chinzzii/wpvulscan/logging"
	"github.com/Chinzzii/wpvulscan/plugins"
	"github.com/Chinzzii/wpvulscan/probe"
	"github.com/Chinzzii/wpvulscan/rules"
	"github.com/Chinzzii/wpvulscan/scan"
	"github.com/Chinzzii/wpvulscan/storage"
)

// app holds the wired components of one process.
type app struct {
	cfg     *config.Config
	log     *zap.SugaredLogger
	store   *storage.SQLStore
	state   scan.StateStore
	catalog *rules.Catalog
	scanner *scan.Orchestrator
	closers []func() error
}

// loadConfig reads the configuration and builds the logger.
func (o *options) loadConfig() (*config.Config, *zap.SugaredLogger, error) {
	cfg, err := config.Load(o.v, o.cfgFile)
	if err != nil {
		return nil, nil, err
	}
	log, err := logging.New(cfg.Logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func (o *options) newCatalog() (*rules.Catalog, *zap.SugaredLogger, error) {
	cfg, log, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	return rules.NewCatalog(cfg.Rules.Dir, log), log, nil
}

// newApp wires storage, rules, probes, detectors and the orchestrator.
func (o *options) newApp(ctx context.Context) (*app, error) {
	cfg, log, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log}

	store, err := storage.Open(cfg.Database, log)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.state = store
	a.closers = append(a.closers, store.Close)

	if cfg.State.Backend == config.StateRedis {
		rs, err := storage.NewRedisState(storage.RedisOptions{URL: cfg.State.RedisURL})
		if err != nil {
			a.close()
			return nil, err
		}
		a.state = rs
		a.closers = append(a.closers, rs.Close)
	}

	a.catalog = rules.NewCatalog(cfg.Rules.Dir, log)
	loaded := a.catalog.Get(false)
	for _, e := range a.catalog.LoadErrors() {
		log.Warnw("Rule load problem", "error", e)
	}
	log.Infow("Rules loaded", "rules", len(loaded), "dir", cfg.Rules.Dir)

	recorder := findings.NewRecorder(a.catalog, store, log)
	prober := probe.New(cfg.Probe, log)

	var advisories *plugins.Database
	if src := cfg.Plugins.AdvisoriesFile; src != "" {
		advisories, err = plugins.LoadDatabase(ctx, src, prober)
		if err != nil {
			log.Warnw("Advisory database not loaded", "source", src, "error", err)
			advisories = nil
		}
	}

	a.scanner = scan.New(scan.Options{
		Detectors: buildDetectors(cfg, prober, log),
		Plugins:   plugins.NewChecker(advisories, cfg.Plugins.Installed, log),
		Runs:      store,
		State:     a.state,
		Recorder:  recorder,
		Log:       log,
	})
	return a, nil
}

func buildDetectors(cfg *config.Config, prober detectors.Prober, log *zap.SugaredLogger) []scan.Detector {
	base := cfg.Target.BaseURL
	formURLs := cfg.Target.FormURLs
	if len(formURLs) == 0 && base != "" {
		formURLs = []string{base}
	}

	return []scan.Detector{
		&detectors.ConfigPaths{BaseURL: base, Prober: prober, Log: log},
		&detectors.Forms{URLs: formURLs, Prober: prober, Log: log},
		&detectors.Hardening{BaseURL: base, Prober: prober, Log: log},
		&detectors.System{
			BaseURL:       base,
			LatestVersion: cfg.Target.LatestWordPress,
			Installed:     cfg.Plugins.Installed,
			Prober:        prober,
			Log:           log,
		},
		&detectors.ExternalURLs{URLs: cfg.Target.ExternalURLs, Prober: prober, Log: log},
	}
}

func (a *app) requireTarget() error {
	if a.cfg.Target.BaseURL == "" {
		return fmt.Errorf("target.base_url is required")
	}
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warnw("Close failed", "error", err)
		}
	}
	a.log.Sync()
}
