// Package workflow manages the named workflow definitions the agent can run:
// registration, validation, YAML loading, and the built-in templates.
package workflow

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/fentz26/warble/internal/models"
)

// ErrNotFound marks lookups of workflow names nobody registered.
var ErrNotFound = errors.New("workflow not found")

func cloneDefinition(d *models.WorkflowDefinition) models.WorkflowDefinition {
	c := *d
	if d.DefaultParameters != nil {
		params := make(map[string]any, len(d.DefaultParameters))
		for k, v := range d.DefaultParameters {
			params[k] = v
		}
		c.DefaultParameters = params
	}
	if d.Steps != nil {
		c.Steps = make([]models.WorkflowStep, len(d.Steps))
		copy(c.Steps, d.Steps)
		for i, step := range d.Steps {
			if step.Parameters == nil {
				continue
			}
			params := make(map[string]any, len(step.Parameters))
			for k, v := range step.Parameters {
				params[k] = v
			}
			c.Steps[i].Parameters = params
		}
	}
	return c
}

// Registry manages registered workflow definitions.
type Registry struct {
	definitions map[string]*models.WorkflowDefinition
	mu          sync.RWMutex
}

// NewRegistry creates an empty workflow registry.
func NewRegistry() *Registry {
	return &Registry{
		definitions: make(map[string]*models.WorkflowDefinition),
	}
}

// Register adds or replaces a workflow definition. The definition is
// validated first; re-registering an existing name overwrites it.
func (r *Registry) Register(def models.WorkflowDefinition) error {
	if def.Version == "" {
		def.Version = "1.0.0"
	}
	if def.Type == "" {
		def.Type = models.WorkflowOneShot
	}
	if err := validate(&def); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.definitions[def.Name] = &def
	return nil
}

// Get retrieves a workflow definition by name.
func (r *Registry) Get(name string) (*models.WorkflowDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.definitions[name]
	if !ok {
		return nil, false
	}

	// Return a deep copy to prevent external mutation
	c := cloneDefinition(def)
	return &c, true
}

// List returns all registered definitions sorted by name.
func (r *Registry) List() []models.WorkflowDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]models.WorkflowDefinition, 0, len(r.definitions))
	for _, d := range r.definitions {
		defs = append(defs, cloneDefinition(d))
	}

	sort.Slice(defs, func(i, j int) bool {
		return defs[i].Name < defs[j].Name
	})

	return defs
}

// Remove deletes a workflow definition by name.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.definitions[name]; !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	delete(r.definitions, name)
	return nil
}

// Len returns the number of registered definitions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.definitions)
}

// validate checks that a definition is well formed: non-empty name, a known
// workflow type, at least one step, known step types, and unique step names
// so step results can be referenced unambiguously.
func validate(def *models.WorkflowDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("workflow name cannot be empty")
	}
	if def.Type != models.WorkflowOneShot && def.Type != models.WorkflowRecurring {
		return fmt.Errorf("workflow %q: invalid type %q, must be: one_shot or recurring", def.Name, def.Type)
	}
	if len(def.Steps) == 0 {
		return fmt.Errorf("workflow %q must define at least one step", def.Name)
	}

	seen := make(map[string]bool, len(def.Steps))
	for i, step := range def.Steps {
		if step.Name == "" {
			return fmt.Errorf("workflow %q: step %d has no name", def.Name, i)
		}
		if seen[step.Name] {
			return fmt.Errorf("workflow %q: duplicate step name %q", def.Name, step.Name)
		}
		seen[step.Name] = true

		if step.Type == models.TypeRunWorkflow {
			return fmt.Errorf("workflow %q: step %q: workflows cannot nest", def.Name, step.Name)
		}
		if !models.ValidTaskType(step.Type) {
			return fmt.Errorf("workflow %q: step %q has unknown type %q", def.Name, step.Name, step.Type)
		}
	}
	return nil
}
