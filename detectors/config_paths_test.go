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

func newExposedSite() *httptest.Server {
	mux := http.NewServeMux()
	status := func(code int) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(code) }
	}
	mux.HandleFunc("/wp-config.php", status(http.StatusOK))
	mux.HandleFunc("/.env", status(http.StatusForbidden))
	mux.HandleFunc("/.git/config", status(http.StatusOK))
	mux.HandleFunc("/readme.html", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<h1>WordPress</h1><p>Version 6.4.2</p>"))
	})
	mux.HandleFunc("/xmlrpc.php", status(http.StatusMethodNotAllowed))
	mux.HandleFunc("/backup.zip", status(http.StatusPartialContent))
	return httptest.NewServer(mux)
}

func TestConfigPaths(t *testing.T) {
	srv := newExposedSite()
	defer srv.Close()

	sc, rec := newScanContext()
	d := &ConfigPaths{BaseURL: srv.URL + "/", Prober: newProber()}

	require.NoError(t, d.Run(context.Background(), sc))

	got := sc.Config.Snapshot()
	types := make([]models.ConfigIssueType, 0, len(got))
	for _, issue := range got {
		types = append(types, issue.Type)
	}
	assert.Equal(t, []models.ConfigIssueType{
		models.ConfigExposure,
		models.ConfigGit,
		models.ConfigVersionLeak,
		models.ConfigVersionLeak,
		models.ConfigXMLRPC,
		models.ConfigBackup,
	}, types)
	assert.Equal(t, "Recurso sensible expuesto: wp-config.php", got[0].Message)
	assert.Equal(t, "Version 6.4.2", got[3].Meta["match"])

	require.Len(t, rec.calls, 1)
	assert.Equal(t, RuleReadmeVersionLeak, rec.calls[0].ruleID)
	assert.Equal(t, srv.URL+"/readme.html", rec.calls[0].ctx.Path)
	assert.Equal(t, "Version 6.4.2", rec.calls[0].ctx.SamplePayload)
}

func TestConfigPaths_ResetsPreviousRun(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	sc, rec := newScanContext()
	sc.Config.Add(models.ConfigIssue{Type: models.ConfigGit, Message: "stale"})

	d := &ConfigPaths{BaseURL: srv.URL, Prober: newProber()}
	require.NoError(t, d.Run(context.Background(), sc))

	assert.NotNil(t, sc.Config.Snapshot())
	assert.Empty(t, sc.Config.Snapshot())
	assert.Empty(t, rec.calls)
}

func TestConfigPaths_UnreachableIsNotVerified(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	sc, _ := newScanContext()
	d := &ConfigPaths{BaseURL: base, Paths: []string{"wp-config.php", ".env"}, Prober: newProber()}

	require.NoError(t, d.Run(context.Background(), sc))
	assert.Empty(t, sc.Config.Snapshot())
}
