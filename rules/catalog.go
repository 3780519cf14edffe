package rules

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/Chinzzii/wpvulscan/logging"
	"github.com/Chinzzii/wpvulscan/models"
)

// LoadFunc produces a fresh catalog load.
type LoadFunc func() LoadResult

// Catalog caches the rule set. The cached rules, load errors and file list
// are always replaced together.
type Catalog struct {
	mu     sync.RWMutex
	load   LoadFunc
	rules  map[string]models.Rule
	errors []string
	files  []string
	log    *zap.SugaredLogger
}

// NewCatalog returns a catalog backed by the rule files of dir.
func NewCatalog(dir string, log *zap.SugaredLogger) *Catalog {
	return NewCatalogWithLoader(func() LoadResult { return LoadDir(dir) }, log)
}

func NewCatalogWithLoader(load LoadFunc, log *zap.SugaredLogger) *Catalog {
	return &Catalog{
		load: load,
		log:  logging.OrNop(log).With("component", "rules"),
	}
}

// Get returns the cached catalog, loading it when the cache is empty or
// forceReload is set.
func (c *Catalog) Get(forceReload bool) map[string]models.Rule {
	if !forceReload {
		c.mu.RLock()
		if len(c.rules) > 0 {
			out := copyRules(c.rules, false)
			c.mu.RUnlock()
			return out
		}
		c.mu.RUnlock()
	}
	return copyRules(c.reload(forceReload), false)
}

// Enabled is Get without the rules marked enabled=false.
func (c *Catalog) Enabled(forceReload bool) map[string]models.Rule {
	if !forceReload {
		c.mu.RLock()
		if len(c.rules) > 0 {
			out := copyRules(c.rules, true)
			c.mu.RUnlock()
			return out
		}
		c.mu.RUnlock()
	}
	return copyRules(c.reload(forceReload), true)
}

func (c *Catalog) RuleByID(id string) (models.Rule, bool) {
	c.mu.RLock()
	if len(c.rules) > 0 {
		r, ok := c.rules[id]
		c.mu.RUnlock()
		return r, ok
	}
	c.mu.RUnlock()

	r, ok := c.reload(false)[id]
	return r, ok
}

// LoadErrors returns the errors of the last load.
func (c *Catalog) LoadErrors() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.errors...)
}

// Files returns the rule files seen by the last load.
func (c *Catalog) Files() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.files...)
}

// IDs returns the sorted ids of the cached rules.
func (c *Catalog) IDs() []string {
	rules := c.Get(false)
	ids := make([]string, 0, len(rules))
	for id := range rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Catalog) reload(force bool) map[string]models.Rule {
	c.mu.Lock()
	defer c.mu.Unlock()

	// another caller may have filled the cache while we waited
	if !force && len(c.rules) > 0 {
		return c.rules
	}

	res := c.load()
	if res.Rules == nil {
		res.Rules = make(map[string]models.Rule)
	}
	c.rules = res.Rules
	c.errors = res.Errors
	c.files = res.Files

	for _, e := range res.Errors {
		c.log.Warnw("Rule load problem", "error", e)
	}
	c.log.Infow("Rule catalog loaded", "rules", len(res.Rules), "files", len(res.Files), "errors", len(res.Errors))

	return c.rules
}

func copyRules(src map[string]models.Rule, onlyEnabled bool) map[string]models.Rule {
	out := make(map[string]models.Rule, len(src))
	for id, r := range src {
		if onlyEnabled && !r.Enabled {
			continue
		}
		out[id] = r
	}
	return out
}
