// ABOUTME: Loads worksheet layout overrides from a YAML file
// ABOUTME: A missing path yields the legacy layouts unchanged
package rowmap

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadLayouts reads overrides from path and validates them. An empty path
// returns the default layouts.
func LoadLayouts(path string) (Layouts, error) {
	if path == "" {
		return DefaultLayouts(), nil
	}
	o, err := ReadOverrides(path)
	if err != nil {
		return Layouts{}, err
	}
	ls, err := NewLayouts(o)
	if err != nil {
		return Layouts{}, fmt.Errorf("invalid layout file %s: %w", path, err)
	}
	return ls, nil
}

// ReadOverrides parses a layout file without validating it. An empty path
// yields empty overrides.
func ReadOverrides(path string) (Overrides, error) {
	var o Overrides
	if path == "" {
		return o, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return o, fmt.Errorf("failed to read layout file: %w", err)
	}
	if err := yaml.Unmarshal(data, &o); err != nil {
		return o, fmt.Errorf("failed to parse layout file: %w", err)
	}
	return o, nil
}
