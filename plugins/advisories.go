package plugins

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Advisory is one known vulnerability of a plugin.
type Advisory struct {
	Title   string `yaml:"title" json:"title"`
	CVE     string `yaml:"cve" json:"cve"`
	CVSS    string `yaml:"cvss" json:"cvss"`
	FixedIn string `yaml:"fixed_in" json:"fixed_in"`
}

// Database maps plugin slugs to their advisories.
type Database struct {
	Plugins map[string][]Advisory `yaml:"plugins" json:"plugins"`
}

// Fetcher downloads remote advisory databases.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// ParseDatabase decodes a YAML or JSON advisory database.
func ParseDatabase(data []byte) (*Database, error) {
	var db Database
	if err := yaml.Unmarshal(data, &db); err != nil {
		return nil, fmt.Errorf("parse advisories: %w", err)
	}
	if db.Plugins == nil {
		db.Plugins = make(map[string][]Advisory)
	}
	return &db, nil
}

// LoadDatabase reads the advisory database from a local file or, for
// http(s) sources, through fetcher.
func LoadDatabase(ctx context.Context, source string, fetcher Fetcher) (*Database, error) {
	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		if fetcher == nil {
			return nil, fmt.Errorf("no fetcher for remote advisories %s", source)
		}
		data, err = fetcher.Fetch(ctx, source)
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, fmt.Errorf("load advisories %s: %w", source, err)
	}
	return ParseDatabase(data)
}
