package config

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Stringify renders obj as "yaml" or "json".
func Stringify(format string, obj Object) (string, error) {
	if obj == nil {
		obj = Object{}
	}
	switch format {
	case "yaml", "yml":
		data, err := yaml.Marshal(map[string]any(obj))
		if err != nil {
			return "", fmt.Errorf("failed to marshal config: %w", err)
		}
		return string(data), nil
	case "json":
		data, err := json.MarshalIndent(map[string]any(obj), "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal config: %w", err)
		}
		return string(data) + "\n", nil
	default:
		return "", fmt.Errorf("unsupported format %q", format)
	}
}
