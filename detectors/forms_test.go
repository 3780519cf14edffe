package detectors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chinzzii/wpvulscan/models"
)

const contactPage = `<html><body>
<form method="post" action="http://evil.example.com/login">
  <input type="text" name="log"><input type="password" name="pwd">
</form>
<form action="/search"><input name="s"></form>
<form method="post" action="">
  <input type="hidden" name="_wpnonce" value="abc"><input type="file" name="upload">
</form>
</body></html>`

func TestAnalyzeForms(t *testing.T) {
	forms, err := AnalyzeForms("https://blog.example.com/contacto", []byte(contactPage))
	require.NoError(t, err)
	require.Len(t, forms, 3)

	assert.Equal(t, models.Form{
		Index:          0,
		Method:         "POST",
		ActionRaw:      "http://evil.example.com/login",
		ActionResolved: "http://evil.example.com/login",
		HTTPS:          false,
		CSRF:           false,
		Sensitive:      models.SensitiveFields{Password: true},
		Severity:       models.SeverityCritical,
	}, forms[0])

	assert.Equal(t, "GET", forms[1].Method)
	assert.Equal(t, "https://blog.example.com/search", forms[1].ActionResolved)
	assert.True(t, forms[1].HTTPS)
	assert.False(t, forms[1].CSRF)
	assert.Equal(t, models.SeverityMedium, forms[1].Severity)

	assert.Equal(t, "https://blog.example.com/contacto", forms[2].ActionResolved)
	assert.True(t, forms[2].CSRF)
	assert.True(t, forms[2].Sensitive.File)
	assert.Equal(t, models.SeverityLow, forms[2].Severity)
}

func TestAnalyzeForms_PlainHTTPPage(t *testing.T) {
	forms, err := AnalyzeForms("http://blog.example.com/", []byte(`<form action="/subscribe"><input name="email"></form>`))
	require.NoError(t, err)
	require.Len(t, forms, 1)

	assert.False(t, forms[0].HTTPS)
	assert.Equal(t, models.SeverityHigh, forms[0].Severity)
}

func TestForms_Run(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/contacto", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<form method="post"><input name="email"></form>`))
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<p>no forms here</p>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	down := httptest.NewServer(http.NotFoundHandler())
	downURL := down.URL
	down.Close()

	sc, rec := newScanContext()
	d := &Forms{
		URLs:   []string{srv.URL + "/contacto", srv.URL + "/about", downURL + "/contacto"},
		Prober: newProber(),
	}
	require.NoError(t, d.Run(context.Background(), sc))

	reports := sc.Forms.Snapshot()
	require.Len(t, reports, 1)
	assert.Equal(t, srv.URL+"/contacto", reports[0].URL)
	assert.Equal(t, http.StatusOK, reports[0].HTTPCode)
	require.Len(t, reports[0].Forms, 1)
	assert.Equal(t, models.SeverityHigh, reports[0].Forms[0].Severity)

	require.Len(t, rec.calls, 1)
	assert.Equal(t, RuleInsecureForm, rec.calls[0].ruleID)
	assert.Equal(t, models.SeverityHigh, rec.calls[0].ctx.Severity)
}
