package plugins

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"

	"github.com/Chinzzii/wpvulscan/config"
	"github.com/Chinzzii/wpvulscan/logging"
	"github.com/Chinzzii/wpvulscan/models"
	"github.com/Chinzzii/wpvulscan/scoring"
)

// Checker matches the installed plugins against the advisory database.
type Checker struct {
	db        *Database
	installed []config.InstalledPlugin
	log       *zap.SugaredLogger
}

// NewChecker returns a checker. A nil db disables the check.
func NewChecker(db *Database, installed []config.InstalledPlugin, log *zap.SugaredLogger) *Checker {
	return &Checker{
		db:        db,
		installed: installed,
		log:       logging.OrNop(log).With("component", "plugins"),
	}
}

// CheckVulnerable lists the advisories affecting the installed versions.
// The result is never nil so the plugin category is always reported.
func (c *Checker) CheckVulnerable(ctx context.Context) ([]models.PluginVuln, error) {
	out := []models.PluginVuln{}
	if c.db == nil {
		c.log.Warn("No advisory database configured, plugin vulnerability check skipped")
		return out, nil
	}

	for _, p := range c.installed {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name := p.Name
		if name == "" {
			name = p.Slug
		}

		for _, adv := range c.db.Plugins[p.Slug] {
			if !Affects(p.Version, adv.FixedIn) {
				continue
			}
			out = append(out, models.PluginVuln{
				Plugin:    name,
				Slug:      p.Slug,
				Installed: p.Version,
				Active:    p.Active,
				CVE:       adv.CVE,
				CVSS:      advisoryCVSS(adv),
				FixedIn:   adv.FixedIn,
				Title:     adv.Title,
			})
		}
	}

	c.log.Infow("Plugin check completed", "plugins", len(c.installed), "vulnerabilities", len(out))
	return out, nil
}

// Affects reports whether installed is older than fixedIn. Without a fix
// version, or when either version cannot be parsed, the advisory applies.
func Affects(installed, fixedIn string) bool {
	if fixedIn == "" || installed == "" {
		return true
	}
	iv, err := semver.NewVersion(installed)
	if err != nil {
		return true
	}
	fv, err := semver.NewVersion(fixedIn)
	if err != nil {
		return true
	}
	return iv.LessThan(fv)
}

// advisoryCVSS reads the score from the cvss field, then from the title.
// Values outside 0..10 are ignored.
func advisoryCVSS(adv Advisory) *float64 {
	if s := strings.TrimSpace(adv.CVSS); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil && validCVSS(v) {
			return &v
		}
		if v, ok := scoring.ExtractCVSS("CVSS " + s); ok && validCVSS(v) {
			return &v
		}
	}
	if v, ok := scoring.ExtractCVSS(adv.Title); ok && validCVSS(v) {
		return &v
	}
	return nil
}

func validCVSS(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0 && v <= 10
}
