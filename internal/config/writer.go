package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// WriteDefault writes the starter configuration to path. An existing file is
// only replaced when overwrite is set.
func WriteDefault(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := Marshal(Starter())
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Marshal renders cfg as YAML with durations in their string form.
func Marshal(cfg Config) ([]byte, error) {
	var node yaml.Node
	if err := node.Encode(cfg); err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	stringifyDurations(&node, cfg)

	data, err := yaml.Marshal(&node)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return data, nil
}

// stringifyDurations replaces the nanosecond integers yaml.v3 emits for
// time.Duration with "30s" style strings that viper decodes back.
func stringifyDurations(node *yaml.Node, cfg Config) {
	orch := mappingValue(node, "orchestrator")
	if orch == nil {
		return
	}
	set := func(key, value string) {
		if n := mappingValue(orch, key); n != nil {
			n.Kind = yaml.ScalarNode
			n.Tag = "!!str"
			n.Value = value
		}
	}
	set("defaultTimeout", cfg.Orchestrator.DefaultTimeout.String())
	set("hookTimeout", cfg.Orchestrator.HookTimeout.String())
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}
	if node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}
