package plugin

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/roach88/deckd/internal/profile"
)

// DefaultCategory is used for manifests without a Category.
const DefaultCategory = "Custom"

// Catalog indexes the actions of every loaded plugin.
type Catalog struct {
	plugins    []*Plugin
	categories map[string][]profile.Action
	byUUID     map[string]profile.Action
}

// NewCatalog indexes the given plugins. Later plugins do not override an
// action UUID already registered.
func NewCatalog(plugins ...*Plugin) *Catalog {
	c := &Catalog{
		categories: make(map[string][]profile.Action),
		byUUID:     make(map[string]profile.Action),
	}
	for _, p := range plugins {
		c.add(p)
	}
	return c
}

func (c *Catalog) add(p *Plugin) {
	c.plugins = append(c.plugins, p)
	category := p.Manifest.Category
	if category == "" {
		category = DefaultCategory
	}
	for _, a := range p.Actions {
		if _, dup := c.byUUID[a.UUID]; dup {
			slog.Warn("duplicate action uuid", "action", a.UUID, "plugin", p.UUID)
			continue
		}
		c.byUUID[a.UUID] = a
		c.categories[category] = append(c.categories[category], a)
	}
}

// Scan loads every plugin directory under dir. Plugins that fail to load are
// logged and skipped. Symlinked plugin directories are followed and keep
// the link name as their UUID.
func Scan(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read plugins directory %s: %w", dir, err)
	}

	var plugins []*Plugin
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		st, err := os.Stat(path)
		if err != nil {
			slog.Warn("failed to read plugin entry", "path", path, "error", err)
			continue
		}
		if !st.IsDir() {
			slog.Warn("failed to initialise plugin: is a file", "path", path)
			continue
		}
		p, err := LoadManifest(path)
		if err != nil {
			slog.Warn("failed to load plugin", "path", path, "error", err)
			continue
		}
		plugins = append(plugins, p)
	}
	return NewCatalog(plugins...), nil
}

// Lookup returns an action by UUID.
func (c *Catalog) Lookup(uuid string) (profile.Action, bool) {
	a, ok := c.byUUID[uuid]
	return a, ok
}

// Plugins returns the loaded plugins in scan order.
func (c *Catalog) Plugins() []*Plugin {
	return c.plugins
}

// Categories returns category names in sorted order.
func (c *Catalog) Categories() []string {
	names := make([]string, 0, len(c.categories))
	for name := range c.categories {
		names = append(names, name)
	}
	slices.SortFunc(names, strings.Compare)
	return names
}

// Category returns the actions in a category in load order.
func (c *Catalog) Category(name string) []profile.Action {
	return c.categories[name]
}
