package detectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/Chinzzii/wpvulscan/config"
	"github.com/Chinzzii/wpvulscan/findings"
	"github.com/Chinzzii/wpvulscan/issues"
	"github.com/Chinzzii/wpvulscan/logging"
	"github.com/Chinzzii/wpvulscan/models"
)

var predictableUsers = map[string]bool{
	"admin":         true,
	"administrator": true,
	"root":          true,
	"editor":        true,
}

var (
	authorPath       = regexp.MustCompile(`/author/([^/?#]+)`)
	generatorVersion = regexp.MustCompile(`(?i)WordPress\s+(\d+\.\d+(?:\.\d+)?)`)
)

// System looks for user enumeration, exposed core versions, listable
// upload directories and inactive plugins.
type System struct {
	BaseURL       string
	LatestVersion string
	Installed     []config.InstalledPlugin
	Prober        Prober
	Log           *zap.SugaredLogger
}

func (d *System) Name() string { return "system" }

func (d *System) Run(ctx context.Context, sc *issues.ScanContext) error {
	sc.System.Reset()
	log := logging.OrNop(d.Log).With("detector", d.Name(), "scan_id", sc.ScanID)

	d.checkRESTUsers(ctx, sc, log)
	d.checkAuthorArchive(ctx, sc, log)
	d.checkCoreVersion(ctx, sc, log)
	d.checkUploadsListing(ctx, sc, log)
	d.checkInactivePlugins(sc)
	return nil
}

func (d *System) add(sc *issues.ScanContext, t models.SystemIssueType, msg string, meta models.Meta) {
	sc.System.Add(models.SystemIssue{Type: t, Message: msg, Meta: meta, Time: now()})
}

func (d *System) checkRESTUsers(ctx context.Context, sc *issues.ScanContext, log *zap.SugaredLogger) {
	url := join(d.BaseURL, "wp-json/wp/v2/users")
	resp, err := d.Prober.Get(ctx, url)
	if err != nil {
		log.Debugw("REST users endpoint not verified", "url", url, "error", err)
		return
	}
	if resp.StatusCode != http.StatusOK {
		return
	}

	var users []struct {
		Slug string `json:"slug"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(resp.Body, &users); err != nil || len(users) == 0 {
		return
	}

	slugs := make([]string, 0, len(users))
	for _, u := range users {
		slugs = append(slugs, u.Slug)
	}
	d.add(sc, models.SystemREST, "La REST API expone /wp/v2/users sin autenticación", models.Meta{"url": url})
	d.add(sc, models.SystemUsers, fmt.Sprintf("Enumeración de usuarios vía REST API (%d usuarios)", len(users)),
		models.Meta{"users": slugs})

	for _, slug := range slugs {
		if predictableUsers[strings.ToLower(slug)] {
			d.add(sc, models.SystemUsers, fmt.Sprintf("Usuario \"%s\" detectado", slug), models.Meta{"user": slug})
		}
	}

	sc.Record(ctx, RuleUserEnumeration, findings.Context{Path: url, SamplePayload: strings.Join(slugs, ", ")})
}

func (d *System) checkAuthorArchive(ctx context.Context, sc *issues.ScanContext, log *zap.SugaredLogger) {
	url := strings.TrimRight(d.BaseURL, "/") + "/?author=1"
	resp, err := d.Prober.Get(ctx, url)
	if err != nil {
		log.Debugw("Author archive not verified", "url", url, "error", err)
		return
	}

	var user string
	if m := authorPath.FindStringSubmatch(resp.URL); m != nil {
		user = m[1]
	} else if m := authorPath.FindStringSubmatch(resp.Header.Get("Location")); m != nil {
		user = m[1]
	}
	if user == "" {
		return
	}
	d.add(sc, models.SystemUsers, fmt.Sprintf("Enumeración de usuarios vía ?author=1 (%s)", user),
		models.Meta{"url": url, "user": user})
}

func (d *System) checkCoreVersion(ctx context.Context, sc *issues.ScanContext, log *zap.SugaredLogger) {
	url := strings.TrimRight(d.BaseURL, "/") + "/"
	resp, err := d.Prober.Get(ctx, url)
	if err != nil {
		log.Debugw("Front page not verified", "url", url, "error", err)
		return
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return
	}
	generator := doc.Find(`meta[name="generator"]`).AttrOr("content", "")
	m := generatorVersion.FindStringSubmatch(generator)
	if m == nil {
		return
	}
	version := m[1]
	d.add(sc, models.SystemCore, fmt.Sprintf("Versión de WordPress expuesta en meta generator: %s", version),
		models.Meta{"version": version})

	if d.LatestVersion == "" {
		return
	}
	current, err := semver.NewVersion(version)
	if err != nil {
		return
	}
	latest, err := semver.NewVersion(d.LatestVersion)
	if err != nil {
		return
	}
	if current.LessThan(latest) {
		d.add(sc, models.SystemCore,
			fmt.Sprintf("WordPress %s está desactualizado respecto a la versión %s", version, d.LatestVersion),
			models.Meta{"version": version, "latest": d.LatestVersion})
	}
}

func (d *System) checkUploadsListing(ctx context.Context, sc *issues.ScanContext, log *zap.SugaredLogger) {
	url := join(d.BaseURL, "wp-content/uploads/")
	resp, err := d.Prober.Get(ctx, url)
	if err != nil {
		log.Debugw("Uploads directory not verified", "url", url, "error", err)
		return
	}
	if resp.StatusCode != http.StatusOK || !bytes.Contains(resp.Body, []byte("Index of")) {
		return
	}
	d.add(sc, models.SystemFilesystem, "Listado de directorios habilitado en wp-content/uploads/", models.Meta{"url": url})
	sc.Record(ctx, RuleDirectoryListing, findings.Context{Path: url})
}

func (d *System) checkInactivePlugins(sc *issues.ScanContext) {
	for _, p := range d.Installed {
		if p.Active {
			continue
		}
		name := p.Name
		if name == "" {
			name = p.Slug
		}
		d.add(sc, models.SystemPlugins, fmt.Sprintf("Plugin instalado pero inactivo: %s", name),
			models.Meta{"slug": p.Slug, "version": p.Version})
	}
}
