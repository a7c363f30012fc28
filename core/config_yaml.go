package core

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// YAMLFileLoader reads the raw config map from a YAML file. A missing file
// yields an empty map unless Required is set.
type YAMLFileLoader struct {
	Path     string
	Required bool
}

func NewYAMLFileLoader(path string) *YAMLFileLoader {
	return &YAMLFileLoader{Path: path}
}

func (l *YAMLFileLoader) LoadRaw(context.Context) (map[string]any, error) {
	if l == nil || strings.TrimSpace(l.Path) == "" {
		return map[string]any{}, nil
	}
	data, err := os.ReadFile(l.Path)
	if err != nil {
		if os.IsNotExist(err) && !l.Required {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("core: read config file %q: %w", l.Path, err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("core: parse config file %q: %w", l.Path, err)
	}
	return raw, nil
}

var _ RawConfigLoader = (*YAMLFileLoader)(nil)
