package detectors

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/Chinzzii/wpvulscan/findings"
	"github.com/Chinzzii/wpvulscan/issues"
	"github.com/Chinzzii/wpvulscan/logging"
	"github.com/Chinzzii/wpvulscan/models"
)

var csrfMarkers = []string{"nonce", "csrf", "token"}

// Forms fetches pages and checks every <form> for transport security and
// anti-CSRF tokens.
type Forms struct {
	URLs   []string
	Prober Prober
	Log    *zap.SugaredLogger
}

func (d *Forms) Name() string { return "forms" }

func (d *Forms) Run(ctx context.Context, sc *issues.ScanContext) error {
	sc.Forms.Reset()
	log := logging.OrNop(d.Log).With("detector", d.Name(), "scan_id", sc.ScanID)

	for _, pageURL := range d.URLs {
		resp, err := d.Prober.Get(ctx, pageURL)
		if err != nil {
			log.Debugw("Page not reachable", "url", pageURL, "error", err)
			continue
		}

		forms, err := AnalyzeForms(pageURL, resp.Body)
		if err != nil {
			log.Debugw("Page not parsed", "url", pageURL, "error", err)
			continue
		}
		if len(forms) == 0 {
			continue
		}

		sc.Forms.Add(models.FormReport{URL: pageURL, HTTPCode: resp.StatusCode, Forms: forms})

		for _, f := range forms {
			if f.Severity != models.SeverityHigh && f.Severity != models.SeverityCritical {
				continue
			}
			sc.Record(ctx, RuleInsecureForm, findings.Context{
				Severity:      f.Severity,
				Path:          pageURL,
				SamplePayload: f.Method + " " + f.ActionResolved,
			})
		}
	}
	return nil
}

// AnalyzeForms extracts and classifies the forms of an HTML page.
func AnalyzeForms(pageURL string, body []byte) ([]models.Form, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	base, _ := url.Parse(pageURL)

	var forms []models.Form
	doc.Find("form").Each(func(i int, sel *goquery.Selection) {
		method := strings.ToUpper(strings.TrimSpace(sel.AttrOr("method", "")))
		if method == "" {
			method = "GET"
		}
		action := strings.TrimSpace(sel.AttrOr("action", ""))

		f := models.Form{
			Index:          i,
			Method:         method,
			ActionRaw:      action,
			ActionResolved: resolveAction(base, pageURL, action),
			HTTPS:          actionUsesHTTPS(pageURL, action),
		}

		sel.Find("input").Each(func(_ int, input *goquery.Selection) {
			name := strings.ToLower(input.AttrOr("name", ""))
			for _, marker := range csrfMarkers {
				if strings.Contains(name, marker) {
					f.CSRF = true
				}
			}
			switch strings.ToLower(input.AttrOr("type", "")) {
			case "password":
				f.Sensitive.Password = true
			case "file":
				f.Sensitive.File = true
			}
		})

		f.Severity = formSeverity(f)
		forms = append(forms, f)
	})
	return forms, nil
}

// actionUsesHTTPS follows the browser: an absolute action decides on its
// own, a relative or empty one inherits the page scheme.
func actionUsesHTTPS(pageURL, action string) bool {
	lower := strings.ToLower(action)
	switch {
	case strings.HasPrefix(lower, "http://"):
		return false
	case strings.HasPrefix(lower, "https://"):
		return true
	}
	return isHTTPS(pageURL)
}

func resolveAction(base *url.URL, pageURL, action string) string {
	if action == "" {
		return pageURL
	}
	if base == nil {
		return action
	}
	ref, err := url.Parse(action)
	if err != nil {
		return action
	}
	return base.ResolveReference(ref).String()
}

func formSeverity(f models.Form) models.Severity {
	switch {
	case !f.HTTPS && f.Sensitive.Password:
		return models.SeverityCritical
	case !f.HTTPS:
		return models.SeverityHigh
	case !f.CSRF:
		return models.SeverityMedium
	}
	return models.SeverityLow
}
