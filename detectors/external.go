package detectors

import (
	"bytes"
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/Chinzzii/wpvulscan/issues"
	"github.com/Chinzzii/wpvulscan/logging"
	"github.com/Chinzzii/wpvulscan/models"
)

const (
	msgNoIssues     = "Sin incidencias destacables"
	msgInvalidURL   = "URL vacía o inválida"
	msgPlainHTTP    = "Página servida sobre HTTP (sin HTTPS)"
	msgFormOverHTTP = "Formulario sobre página HTTP (riesgo de intercepción)"
)

// ExternalURLs audits user supplied URLs for transport security, security
// headers and insecure forms.
type ExternalURLs struct {
	URLs   []string
	Prober Prober
	Log    *zap.SugaredLogger
}

func (d *ExternalURLs) Name() string { return "external_urls" }

func (d *ExternalURLs) Run(ctx context.Context, sc *issues.ScanContext) error {
	sc.External.Reset()
	log := logging.OrNop(d.Log).With("detector", d.Name(), "scan_id", sc.ScanID)

	for _, raw := range d.URLs {
		url, messages := d.analyze(ctx, raw)
		for _, msg := range messages {
			sc.External.Add(models.ExternalIssue{
				URL:     url,
				Message: msg,
				Kind:    ClassifyExternal(msg),
				Time:    now(),
			})
		}
		log.Debugw("External URL analyzed", "url", url, "issues", len(messages))
	}
	return nil
}

func (d *ExternalURLs) analyze(ctx context.Context, raw string) (string, []string) {
	url := NormalizeURL(raw)
	if url == "" {
		return raw, []string{msgInvalidURL}
	}

	var messages []string
	https := isHTTPS(url)
	if !https {
		messages = append(messages, msgPlainHTTP)
	}

	resp, err := d.Prober.Get(ctx, url)
	if err != nil {
		return url, append(messages, "Error de conexión: "+err.Error())
	}

	if https && !headerSet(resp.Header, "Strict-Transport-Security") {
		messages = append(messages, "Falta cabecera Strict-Transport-Security (HSTS)")
	}
	if !headerSet(resp.Header, "X-Frame-Options") {
		messages = append(messages, "Falta cabecera X-Frame-Options")
	}
	if !headerSet(resp.Header, "Content-Security-Policy") {
		messages = append(messages, "Falta cabecera Content-Security-Policy")
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 400 && resp.IsHTML() {
		if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body)); err == nil {
			doc.Find("form").Each(func(_ int, sel *goquery.Selection) {
				if !https {
					messages = append(messages, msgFormOverHTTP)
				}
				action := strings.TrimSpace(sel.AttrOr("action", ""))
				if strings.HasPrefix(strings.ToLower(action), "http://") {
					messages = append(messages, "Formulario con action sobre HTTP ("+action+")")
				}
			})
		}
	}

	if len(messages) == 0 {
		messages = append(messages, msgNoIssues)
	}
	return url, messages
}

// NormalizeURL trims raw and adds https:// when no scheme is given.
func NormalizeURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return ""
	}
	lower := strings.ToLower(u)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		u = "https://" + strings.TrimLeft(u, "/")
	}
	return u
}

// ClassifyExternal maps an external URL message onto its issue kind.
func ClassifyExternal(message string) models.ExternalIssueKind {
	m := strings.ToLower(message)
	switch {
	case strings.Contains(m, "sin incidencias"):
		return models.ExternalNoIssues
	case strings.Contains(m, "error de conexión"):
		return models.ExternalConnectionError
	case strings.Contains(m, "falta cabecera"):
		return models.ExternalMissingHeader
	case strings.Contains(m, "formulario"):
		return models.ExternalInsecureForm
	case strings.Contains(m, "sin https"):
		return models.ExternalInsecureTransport
	}
	return models.ExternalOther
}
