package detectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/Chinzzii/wpvulscan/findings"
	"github.com/Chinzzii/wpvulscan/issues"
	"github.com/Chinzzii/wpvulscan/logging"
	"github.com/Chinzzii/wpvulscan/models"
)

type wantedHeader struct {
	name           string
	onlyHTTPS      bool
	severity       models.Severity
	message        string
	recommendation string
}

var wantedHeaders = []wantedHeader{
	{"Strict-Transport-Security", true, models.SeverityHigh,
		"Falta HSTS (Strict-Transport-Security).",
		"Añade 'Strict-Transport-Security: max-age=31536000; includeSubDomains' en HTTPS."},
	{"X-Frame-Options", false, models.SeverityMedium,
		"Falta X-Frame-Options.",
		"Añade 'X-Frame-Options: SAMEORIGIN' para mitigar clickjacking."},
	{"Content-Security-Policy", false, models.SeverityMedium,
		"Falta Content-Security-Policy (CSP).",
		"Define una CSP estricta, p. ej. 'default-src 'self'' y ajusta según tus recursos."},
	{"X-Content-Type-Options", false, models.SeverityLow,
		"Falta X-Content-Type-Options.",
		"Añade 'X-Content-Type-Options: nosniff'."},
	{"Referrer-Policy", false, models.SeverityLow,
		"Falta Referrer-Policy.",
		"Añade 'Referrer-Policy: no-referrer-when-downgrade' (o más restrictiva)."},
}

var versionDigits = regexp.MustCompile(`\d+(\.\d+)+`)

// Hardening checks the transport and response headers of the front page.
type Hardening struct {
	BaseURL string
	Prober  Prober
	Log     *zap.SugaredLogger
}

func (d *Hardening) Name() string { return "hardening" }

func (d *Hardening) Run(ctx context.Context, sc *issues.ScanContext) error {
	sc.Hardening.Reset()
	log := logging.OrNop(d.Log).With("detector", d.Name(), "scan_id", sc.ScanID)

	add := func(typ string, sev models.Severity, msg, rec string, meta models.Meta) {
		sc.Hardening.Add(models.HardeningIssue{
			Type: typ, Severity: sev, Message: msg, Recommendation: rec, Meta: meta, Time: now(),
		})
	}

	front := strings.TrimRight(d.BaseURL, "/") + "/"
	https := isHTTPS(front)
	if !https {
		add("config", models.SeverityHigh,
			"El sitio no está configurado para usar HTTPS.",
			"Sirve el sitio y el panel sobre https:// y configura redirecciones 301 a HTTPS.", nil)
	}

	resp, err := d.Prober.HeadOrGet(ctx, front)
	if err != nil {
		log.Debugw("Front page not reachable", "url", front, "error", err)
		add("headers", models.SeverityInfo,
			"No se pudo obtener cabeceras del front.",
			"Revisa conectividad del servidor y firewalls si persiste el problema.",
			models.Meta{"error": err.Error()})
		return nil
	}

	var missing []string
	for _, h := range wantedHeaders {
		if h.onlyHTTPS && !https {
			continue
		}
		if !headerSet(resp.Header, h.name) {
			add("headers", h.severity, h.message, h.recommendation, nil)
			missing = append(missing, strings.ToLower(h.name))
		}
	}

	for _, name := range []string{"X-Powered-By", "Server"} {
		v := resp.Header.Get(name)
		if versionDigits.MatchString(v) {
			add("headers", models.SeverityInfo,
				fmt.Sprintf("La cabecera %s revela versión (%s).", name, v),
				"Oculta la versión del software en las cabeceras de respuesta.", models.Meta{"header": name})
		}
	}

	if readme, err := d.Prober.HeadOrGet(ctx, join(front, "readme.html")); err == nil && readme.StatusCode == http.StatusOK {
		add("files", models.SeverityMedium,
			"readme.html presente (posible divulgación de versión).",
			"Elimina readme.html o bloquea su acceso desde el servidor web.", nil)
	}

	if len(missing) > 0 {
		trace, _ := json.Marshal(map[string][]string{"missing": missing})
		sc.Record(ctx, RuleInsecureHeaders, findings.Context{
			Path:          front,
			SamplePayload: strings.Join(missing, ", "),
			Trace:         models.JSONDoc(trace),
		})
	}
	return nil
}
