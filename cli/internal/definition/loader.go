package definition

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseYAML decodes and validates a workflow definition from YAML bytes.
// Unknown keys are rejected so typos in definition files fail loudly.
func ParseYAML(data []byte) (Definition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Definition{}, fmt.Errorf("definition: payload is empty")
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var def Definition
	if err := dec.Decode(&def); err != nil {
		return Definition{}, fmt.Errorf("definition: decode: %w", err)
	}
	def.Type = strings.TrimSpace(def.Type)
	if err := def.Validate(); err != nil {
		return Definition{}, fmt.Errorf("definition: %w", err)
	}
	return def, nil
}

// LoadReader reads and parses one definition from r.
func LoadReader(r io.Reader) (Definition, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return Definition{}, fmt.Errorf("definition: read: %w", err)
	}
	return ParseYAML(content)
}

// LoadFile loads one definition from path.
func LoadFile(path string) (Definition, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("definition: read %s: %w", path, err)
	}
	def, err := ParseYAML(content)
	if err != nil {
		return Definition{}, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// definitionFiles returns the .yaml and .yml files directly under dir, sorted.
func definitionFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}
