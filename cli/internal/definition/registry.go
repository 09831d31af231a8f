package definition

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"sync"
)

var (
	// ErrUnknownWorkflowType is returned when a type has no registered definition.
	ErrUnknownWorkflowType = errors.New("unknown workflow type")
	// ErrAlreadyRegistered is returned when a type is registered twice without override.
	ErrAlreadyRegistered = errors.New("workflow type already registered")
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Lookup resolves a workflow type to its definition.
type Lookup interface {
	Get(workflowType string) (Definition, error)
}

// Registry holds validated definitions keyed by type. Safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Builtin returns a registry preloaded with the embedded definitions.
func Builtin() (*Registry, error) {
	r := NewRegistry()
	entries, err := fs.ReadDir(builtinFS, "builtin")
	if err != nil {
		return nil, fmt.Errorf("definition: read builtins: %w", err)
	}
	for _, e := range entries {
		data, err := builtinFS.ReadFile(path.Join("builtin", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("definition: read builtin %s: %w", e.Name(), err)
		}
		def, err := ParseYAML(data)
		if err != nil {
			return nil, fmt.Errorf("definition: builtin %s: %w", e.Name(), err)
		}
		if err := r.Register(def, false); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register validates def and adds it. An existing type is replaced only when
// allowOverride is true.
func (r *Registry) Register(def Definition, allowOverride bool) error {
	if err := def.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.defs[def.Type]; ok && !allowOverride {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, def.Type)
	}
	r.defs[def.Type] = def
	return nil
}

// Get returns the definition for workflowType.
func (r *Registry) Get(workflowType string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[workflowType]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownWorkflowType, workflowType)
	}
	return def, nil
}

// Types returns registered type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.defs))
	for t := range r.defs {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// LoadDir registers every .yaml/.yml definition in dir. A file may replace an
// existing type only if it sets override: true. A missing dir is not an error.
// Returns the types registered, in file order.
func (r *Registry) LoadDir(dir string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	files, err := definitionFiles(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("definition: list %s: %w", dir, err)
	}
	var loaded []string
	for _, f := range files {
		def, err := LoadFile(f)
		if err != nil {
			return loaded, err
		}
		if err := r.Register(def, def.Override); err != nil {
			return loaded, fmt.Errorf("%s: %w", f, err)
		}
		loaded = append(loaded, def.Type)
	}
	return loaded, nil
}
