// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type seed struct {
	Settings map[string]yaml.Node `yaml:"settings"`
}

// Load creates a store seeded from the YAML file at path. Scalar settings are
// stored as written; sequences are joined with Separator.
//
//	settings:
//	  transformation: "off"
//	  silenceuser:
//	    - mallory@example.org
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file %q: %w", path, err)
	}
	return Parse(data)
}

// Parse creates a store seeded from YAML data in the format Load reads.
func Parse(data []byte) (*Store, error) {
	var doc seed
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}

	s := NewStore()
	for key, node := range doc.Settings {
		switch node.Kind {
		case yaml.ScalarNode:
			s.settings[key] = node.Value
		case yaml.SequenceNode:
			var values []string
			if err := node.Decode(&values); err != nil {
				return nil, fmt.Errorf("failed to parse policy setting %q: %w", key, err)
			}
			s.settings[key] = strings.Join(values, Separator)
		default:
			return nil, fmt.Errorf("policy setting %q must be a string or a list of strings", key)
		}
	}
	return s, nil
}
