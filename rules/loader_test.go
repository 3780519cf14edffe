package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chinzzii/wpvulscan/models"
)

func writeRuleFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadDir_SingleAndArray(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "a_single.json", `{
		"id": "rule_readme_version_leak",
		"name": "readme.html discloses version",
		"category": "A05:2021",
		"severity_default": "Low",
		"cwe": "CWE-200"
	}`)
	writeRuleFile(t, dir, "b_list.json", `[
		{"id": "rule_xmlrpc_enabled", "name": "XML-RPC enabled", "category": "A05:2021", "severity_default": "medium", "enabled": false},
		{"id": "rule_git_exposed", "name": ".git exposed", "category": "A01:2021", "severity_default": "critical", "pattern": {"path": ".git/config"}}
	]`)

	res := LoadDir(dir)

	assert.Empty(t, res.Errors)
	assert.Equal(t, []string{"a_single.json", "b_list.json"}, res.Files)
	require.Len(t, res.Rules, 3)

	readme := res.Rules["rule_readme_version_leak"]
	assert.Equal(t, models.SeverityLow, readme.SeverityDefault)
	assert.Equal(t, "CWE-200", readme.CWE)
	assert.Equal(t, "", readme.OWASP)
	assert.True(t, readme.Enabled)
	assert.JSONEq(t, `{}`, string(readme.Pattern))
	assert.Equal(t, "a_single.json", readme.Source)

	assert.False(t, res.Rules["rule_xmlrpc_enabled"].Enabled)
	assert.JSONEq(t, `{"path": ".git/config"}`, string(res.Rules["rule_git_exposed"].Pattern))
}

func TestLoadDir_YAML(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "forms.yaml", `
- id: rule_form_missing_csrf
  name: Form without CSRF token
  category: A01:2021
  severity_default: medium
  category_tag: OWASP-A01
  pattern:
    input_name_contains: [nonce, csrf, token]
`)

	res := LoadDir(dir)

	assert.Empty(t, res.Errors)
	rule, ok := res.Rules["rule_form_missing_csrf"]
	require.True(t, ok)
	assert.Equal(t, "OWASP-A01", rule.OWASP)
	assert.JSONEq(t, `{"input_name_contains": ["nonce", "csrf", "token"]}`, string(rule.Pattern))
}

func TestLoadDir_MissingRequiredField(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "broken.json", `[
		{"id": "no_severity", "name": "n", "category": "c"},
		{"id": "ok", "name": "n", "category": "c", "severity_default": "high"},
		{"id": "", "name": "n", "category": "c", "severity_default": "high"}
	]`)

	res := LoadDir(dir)

	require.Len(t, res.Errors, 2)
	assert.Equal(t, "broken.json: missing 'severity_default'", res.Errors[0])
	assert.Equal(t, "broken.json: missing 'id'", res.Errors[1])
	assert.Contains(t, res.Rules, "ok")
	assert.NotContains(t, res.Rules, "no_severity")
}

func TestLoadDir_MalformedFileIsSkipped(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "bad.json", `{"id": "x", `)
	writeRuleFile(t, dir, "empty.json", "   ")
	writeRuleFile(t, dir, "scalar.json", `42`)
	writeRuleFile(t, dir, "good.json", `{"id": "good", "name": "n", "category": "c", "severity_default": "low"}`)
	writeRuleFile(t, dir, "notes.txt", `ignored`)

	res := LoadDir(dir)

	assert.Len(t, res.Rules, 1)
	assert.Contains(t, res.Rules, "good")
	assert.Equal(t, []string{"bad.json", "empty.json", "good.json", "scalar.json"}, res.Files)
	require.Len(t, res.Errors, 2)
	assert.Contains(t, res.Errors[0], "bad.json: invalid JSON")
	assert.Contains(t, res.Errors[1], "scalar.json")
}

func TestLoadDir_DuplicateIDWarns(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "01.json", `{"id": "dup", "name": "first", "category": "c", "severity_default": "low"}`)
	writeRuleFile(t, dir, "02.json", `{"id": "dup", "name": "second", "category": "c", "severity_default": "high"}`)

	res := LoadDir(dir)

	require.Len(t, res.Rules, 1)
	assert.Equal(t, "second", res.Rules["dup"].Name)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "02.json: duplicate rule id 'dup' overrides 01.json", res.Errors[0])
}

func TestLoadDir_MissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "missing")

	res := LoadDir(dir)

	assert.Empty(t, res.Rules)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "rules directory not found")
}

func TestLoadDir_NumericIDAndEnabledCoercion(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "n.json", `{"id": 1001, "name": "numeric", "category": "c", "severity_default": "low", "enabled": 0}`)

	res := LoadDir(dir)

	rule, ok := res.Rules["1001"]
	require.True(t, ok)
	assert.False(t, rule.Enabled)
}

func TestLoadDir_ShippedRules(t *testing.T) {
	res := LoadDir(filepath.Join("..", "configs", "rules"))

	assert.Empty(t, res.Errors)
	assert.Equal(t, []string{"plugins.yaml", "wordpress.json"}, res.Files)
	for _, id := range []string{
		"rule_readme_version_leak",
		"rule_insecure_headers",
		"rule_insecure_form",
		"rule_user_enumeration",
		"rule_directory_listing",
		"rule_plugin_vulnerable",
	} {
		rule, ok := res.Rules[id]
		if assert.True(t, ok, id) {
			assert.True(t, rule.Enabled, id)
			assert.True(t, rule.SeverityDefault.Known(), id)
		}
	}
}
