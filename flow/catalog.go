package flow

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/simon020286/go-datahub/builder"
	"github.com/simon020286/go-datahub/config"
	"github.com/simon020286/go-datahub/models"
)

// ErrFlowNotFound is returned by Get for an unknown (entity type, name) pair
var ErrFlowNotFound = errors.New("flow not found")

type flowKey struct {
	entityType string
	name       string
}

// Catalog resolves flows by entity type and name
type Catalog struct {
	mu    sync.RWMutex
	flows map[flowKey]*Flow
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{flows: make(map[flowKey]*Flow)}
}

// Add registers a flow. A flow with the same entity type and name is an error.
func (c *Catalog) Add(f *Flow) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := flowKey{entityType: f.EntityType(), name: f.Name()}
	if _, exists := c.flows[key]; exists {
		return fmt.Errorf("flow '%s' of entity '%s' already registered", f.Name(), f.EntityType())
	}
	c.flows[key] = f
	return nil
}

// Get returns the flow of an entity type by name
func (c *Catalog) Get(entityType, name string) (*Flow, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, ok := c.flows[flowKey{entityType: entityType, name: name}]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrFlowNotFound, entityType, name)
	}
	return f, nil
}

// List returns every flow ordered by entity type then name
func (c *Catalog) List() []*Flow {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*Flow, 0, len(c.flows))
	for _, f := range c.flows {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntityType() != out[j].EntityType() {
			return out[i].EntityType() < out[j].EntityType()
		}
		return out[i].Name() < out[j].Name()
	})
	return out
}

// LoadFS loads every *.yaml and *.yml flow definition of dir and returns how many were added
func (c *Catalog) LoadFS(fsys fs.FS, dir string) (int, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read flows directory: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		data, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return loaded, fmt.Errorf("failed to read %s: %w", name, err)
		}
		cfg, err := config.ParseFlowConfig(data)
		if err != nil {
			return loaded, fmt.Errorf("%s: %w", name, err)
		}
		f, err := FromConfig(cfg)
		if err != nil {
			return loaded, fmt.Errorf("%s: %w", name, err)
		}
		if err := c.Add(f); err != nil {
			return loaded, fmt.Errorf("%s: %w", name, err)
		}
		loaded++
	}
	return loaded, nil
}

// LoadDirectory loads the flow definitions of a directory on disk.
// A missing directory loads nothing.
func (c *Catalog) LoadDirectory(dir string) (int, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return 0, nil
	}
	return c.LoadFS(os.DirFS(dir), ".")
}

// FromConfig creates the steps of a validated flow definition
func FromConfig(cfg *config.FlowConfig) (*Flow, error) {
	if err := config.ValidateFlowConfig(cfg); err != nil {
		return nil, err
	}

	format := models.FormatJSON
	if cfg.Format != "" {
		var err error
		if format, err = models.ParseFormat(cfg.Format); err != nil {
			return nil, err
		}
	}

	steps := make([]models.Step, 0, len(cfg.Steps))
	for _, sc := range cfg.Steps {
		step, err := builder.CreateStep(sc.StepType, sc.Label, sc.StepConfig)
		if err != nil {
			return nil, fmt.Errorf("flow '%s': %w", cfg.Name, err)
		}
		steps = append(steps, step)
	}

	return New(cfg.Name, cfg.EntityType, format, steps,
		WithDescription(cfg.Description),
		WithCollections(cfg.Collections...),
		WithVariables(cfg.Variables),
	)
}
