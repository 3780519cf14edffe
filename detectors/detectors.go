package detectors

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Chinzzii/wpvulscan/probe"
)

// Prober is the subset of the probe client used by detectors.
type Prober interface {
	HeadOrGet(ctx context.Context, url string) (*probe.Response, error)
	Get(ctx context.Context, url string) (*probe.Response, error)
}

// Rule ids referenced by the detectors.
const (
	RuleReadmeVersionLeak = "rule_readme_version_leak"
	RuleInsecureHeaders   = "rule_insecure_headers"
	RuleInsecureForm      = "rule_insecure_form"
	RuleUserEnumeration   = "rule_user_enumeration"
	RuleDirectoryListing  = "rule_directory_listing"
)

// join appends path to base with exactly one slash between them.
func join(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

func isHTTPS(u string) bool {
	return strings.HasPrefix(strings.ToLower(u), "https://")
}

func headerSet(h http.Header, name string) bool {
	return strings.TrimSpace(h.Get(name)) != ""
}

func now() time.Time {
	return time.Now().UTC()
}
