package workflow

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fentz26/warble/internal/models"
)

// workflowFile is the on-disk YAML schema. A file either carries a
// `workflows:` list or a single top-level definition.
type workflowFile struct {
	Workflows []models.WorkflowDefinition `yaml:"workflows"`
}

// LoadFile parses workflow definitions from a YAML file and registers them.
// Returns the number of definitions registered.
func LoadFile(r *Registry, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading workflow file: %w", err)
	}

	var file workflowFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("parsing workflow file %s: %w", path, err)
	}

	defs := file.Workflows
	if len(defs) == 0 {
		var single models.WorkflowDefinition
		if err := yaml.Unmarshal(data, &single); err != nil {
			return 0, fmt.Errorf("parsing workflow file %s: %w", path, err)
		}
		if single.Name == "" {
			return 0, fmt.Errorf("workflow file %s defines no workflows", path)
		}
		defs = []models.WorkflowDefinition{single}
	}

	registered := 0
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			return registered, fmt.Errorf("workflow file %s: %w", path, err)
		}
		registered++
	}
	return registered, nil
}

// LoadDir loads every .yaml/.yml file in a directory. Files that fail to
// parse do not stop the rest from loading; their errors are joined into the
// returned error. A missing directory is not an error.
func LoadDir(r *Registry, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading workflow dir: %w", err)
	}

	var loaded int
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !isWorkflowFile(entry.Name()) {
			continue
		}
		n, err := LoadFile(r, filepath.Join(dir, entry.Name()))
		loaded += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return loaded, errors.Join(errs...)
}

func isWorkflowFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
