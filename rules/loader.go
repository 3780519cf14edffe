package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Chinzzii/wpvulscan/models"
)

// LoadResult is the outcome of reading a rules directory. Errors never stop
// the load; they are collected next to whatever rules were valid.
type LoadResult struct {
	Rules  map[string]models.Rule `json:"rules"`
	Errors []string               `json:"errors"`
	Files  []string               `json:"files"`
}

var requiredFields = []string{"id", "name", "category", "severity_default"}

var ruleExtensions = map[string]bool{
	".json": true,
	".yaml": true,
	".yml":  true,
}

// LoadDir reads every rule file of dir in lexical order. A file holds either
// a single rule object or an array of them. On duplicate ids the later file
// wins and the override is reported in Errors.
func LoadDir(dir string) LoadResult {
	res := LoadResult{Rules: make(map[string]models.Rule)}

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		res.Errors = append(res.Errors, fmt.Sprintf("rules directory not found: %s", dir))
		return res
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("read rules directory %s: %v", dir, err))
		return res
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !ruleExtensions[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		res.Files = append(res.Files, name)

		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}

		candidates, err := decodeRuleFile(name, raw)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", name, err))
			continue
		}

		for _, candidate := range candidates {
			rule, err := normalizeRule(candidate, name)
			if err != nil {
				res.Errors = append(res.Errors, err.Error())
				continue
			}
			if prev, ok := res.Rules[rule.ID]; ok {
				res.Errors = append(res.Errors, fmt.Sprintf("%s: duplicate rule id '%s' overrides %s", name, rule.ID, prev.Source))
			}
			res.Rules[rule.ID] = rule
		}
	}

	return res
}

func decodeRuleFile(name string, raw []byte) ([]map[string]interface{}, error) {
	var doc interface{}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	default:
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
	}

	switch v := doc.(type) {
	case map[string]interface{}:
		return []map[string]interface{}{v}, nil
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
		return out, nil
	}
	return nil, errors.New("expected a rule object or an array of rules")
}

func normalizeRule(m map[string]interface{}, file string) (models.Rule, error) {
	for _, field := range requiredFields {
		if stringField(m, field) == "" {
			return models.Rule{}, fmt.Errorf("%s: missing '%s'", file, field)
		}
	}

	pattern, err := patternField(m)
	if err != nil {
		return models.Rule{}, fmt.Errorf("%s: rule '%s': invalid pattern: %w", file, stringField(m, "id"), err)
	}

	owasp := stringField(m, "owasp")
	if owasp == "" {
		owasp = stringField(m, "category_tag")
	}

	return models.Rule{
		ID:              stringField(m, "id"),
		Name:            stringField(m, "name"),
		Category:        stringField(m, "category"),
		SeverityDefault: models.ParseSeverity(stringField(m, "severity_default")),
		CWE:             stringField(m, "cwe"),
		OWASP:           owasp,
		Pattern:         pattern,
		Enabled:         boolField(m, "enabled", true),
		Source:          file,
	}, nil
}

func stringField(m map[string]interface{}, key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func boolField(m map[string]interface{}, key string, def bool) bool {
	switch v := m[key].(type) {
	case nil:
		return def
	case bool:
		return v
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		return s != "" && s != "0" && s != "false"
	case float64:
		return v != 0
	case int:
		return v != 0
	}
	return def
}

func patternField(m map[string]interface{}) (models.JSONDoc, error) {
	v, ok := m["pattern"]
	if !ok {
		v, ok = m["pattern_json"]
	}
	if !ok || v == nil {
		return models.JSONDoc("{}"), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return models.JSONDoc(b), nil
}
