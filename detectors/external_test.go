package detectors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chinzzii/wpvulscan/models"
)

func TestClassifyExternal(t *testing.T) {
	tests := []struct {
		message string
		kind    models.ExternalIssueKind
	}{
		{"Sin incidencias destacables", models.ExternalNoIssues},
		{"Error de conexión: dial tcp: connection refused", models.ExternalConnectionError},
		{"Falta cabecera X-Frame-Options", models.ExternalMissingHeader},
		{"Página servida sobre HTTP (sin HTTPS)", models.ExternalInsecureTransport},
		{"Formulario con action sobre HTTP (http://x/post)", models.ExternalInsecureForm},
		{"Formulario sobre página HTTP (riesgo de intercepción)", models.ExternalInsecureForm},
		{"URL vacía o inválida", models.ExternalOther},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.kind, ClassifyExternal(tt.message), tt.message)
	}
}

func TestNormalizeURL(t *testing.T) {
	assert.Equal(t, "https://shop.example.com", NormalizeURL("  shop.example.com "))
	assert.Equal(t, "http://shop.example.com", NormalizeURL("http://shop.example.com"))
	assert.Equal(t, "HTTPS://shop.example.com", NormalizeURL("HTTPS://shop.example.com"))
	assert.Equal(t, "", NormalizeURL("   "))
}

func TestExternalURLs(t *testing.T) {
	insecure := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<form action="http://x.example.com/post"><input name="q"></form>`))
	}))
	defer insecure.Close()

	clean := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'")
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<form action="/search"></form>`))
	}))
	defer clean.Close()

	down := httptest.NewServer(http.NotFoundHandler())
	downURL := down.URL
	down.Close()

	sc, _ := newScanContext()
	d := &ExternalURLs{
		URLs:   []string{insecure.URL, clean.URL, downURL, "   "},
		Prober: newProber(),
	}
	require.NoError(t, d.Run(context.Background(), sc))

	got := sc.External.Snapshot()
	kinds := make([]models.ExternalIssueKind, 0, len(got))
	for _, issue := range got {
		kinds = append(kinds, issue.Kind)
	}
	assert.Equal(t, []models.ExternalIssueKind{
		models.ExternalInsecureTransport,
		models.ExternalMissingHeader,
		models.ExternalMissingHeader,
		models.ExternalInsecureForm,
		models.ExternalInsecureForm,
		models.ExternalNoIssues,
		models.ExternalInsecureTransport,
		models.ExternalConnectionError,
		models.ExternalOther,
	}, kinds)

	assert.Equal(t, insecure.URL, got[0].URL)
	assert.Equal(t, insecure.URL+" — Página servida sobre HTTP (sin HTTPS)", got[0].String())
	assert.Equal(t, clean.URL, got[5].URL)
	assert.True(t, strings.HasPrefix(got[7].Message, "Error de conexión: "))
	assert.Equal(t, "   ", got[8].URL)
}
