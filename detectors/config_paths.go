package detectors

import (
	"context"
	"fmt"
	"net/http"
	"regexp"

	"go.uber.org/zap"

	"github.com/Chinzzii/wpvulscan/findings"
	"github.com/Chinzzii/wpvulscan/issues"
	"github.com/Chinzzii/wpvulscan/logging"
	"github.com/Chinzzii/wpvulscan/models"
)

// SensitivePaths are probed relative to the site base URL.
var SensitivePaths = []string{
	"wp-config.php",
	".env",
	".git/config",
	"readme.html",
	"xmlrpc.php",
	"wp-admin/install.php",
	"wp-content/debug.log",
	"backup.zip",
	"backup.sql",
}

var readmeVersion = regexp.MustCompile(`(?i)Version\s+\d+\.\d+(?:\.\d+)?`)

// ConfigPaths looks for exposed configuration files, backups and installer
// scripts.
type ConfigPaths struct {
	BaseURL string
	Paths   []string
	Prober  Prober
	Log     *zap.SugaredLogger
}

func (d *ConfigPaths) Name() string { return "config_paths" }

func (d *ConfigPaths) Run(ctx context.Context, sc *issues.ScanContext) error {
	sc.Config.Reset()
	log := logging.OrNop(d.Log).With("detector", d.Name(), "scan_id", sc.ScanID)

	paths := d.Paths
	if len(paths) == 0 {
		paths = SensitivePaths
	}

	for _, path := range paths {
		url := join(d.BaseURL, path)
		resp, err := d.Prober.HeadOrGet(ctx, url)
		if err != nil {
			// unreachable paths are reported as not verified
			log.Debugw("Path not verified", "url", url, "error", err)
			continue
		}
		d.classify(ctx, sc, path, url, resp.StatusCode)
	}
	return nil
}

func (d *ConfigPaths) classify(ctx context.Context, sc *issues.ScanContext, path, url string, code int) {
	meta := models.Meta{"url": url, "code": code}
	add := func(t models.ConfigIssueType, msg string, m models.Meta) {
		sc.Config.Add(models.ConfigIssue{Type: t, Message: msg, Meta: m, Time: now()})
	}

	switch path {
	case "wp-config.php", ".env", ".git/config", "backup.zip", "backup.sql", "wp-content/debug.log":
		if code != http.StatusOK && code != http.StatusPartialContent {
			return
		}
		t := models.ConfigExposure
		switch path {
		case ".git/config":
			t = models.ConfigGit
		case "backup.zip", "backup.sql":
			t = models.ConfigBackup
		}
		add(t, fmt.Sprintf("Recurso sensible expuesto: %s", path), meta)

	case "readme.html":
		if code != http.StatusOK {
			return
		}
		add(models.ConfigVersionLeak, "readme.html accesible (posible divulgación de versión)", meta)

		sample := "readme.html accesible"
		if resp, err := d.Prober.Get(ctx, url); err == nil {
			if m := readmeVersion.FindString(string(resp.Body)); m != "" {
				add(models.ConfigVersionLeak, "Versión detectada en readme.html", models.Meta{"url": url, "match": m})
				sample = m
			}
		}
		sc.Record(ctx, RuleReadmeVersionLeak, findings.Context{Path: url, SamplePayload: sample})

	case "xmlrpc.php":
		switch code {
		case http.StatusOK, http.StatusUnauthorized, http.StatusForbidden, http.StatusMethodNotAllowed:
			add(models.ConfigXMLRPC, "xmlrpc.php habilitado/presente", meta)
		}

	case "wp-admin/install.php":
		if code == http.StatusOK {
			add(models.ConfigInstaller, "Script de instalación accesible", meta)
		}

	default:
		if code == http.StatusOK || code == http.StatusPartialContent {
			add(models.ConfigExposure, fmt.Sprintf("Ruta potencialmente sensible accesible: %s", path), meta)
		}
	}
}
