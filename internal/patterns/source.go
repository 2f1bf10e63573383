package patterns

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileDocument is the on-disk shape of a pattern source file (spec §6
// "pattern list source"), e.g.:
//
//	patterns:
//	  - name: slur-basic
//	    tag: slur
//	    expr: "\\bslur-word\\b"
type fileDocument struct {
	Patterns []Source `yaml:"patterns"`
}

// LoadSourcesFromFile reads a YAML pattern source file from disk.
func LoadSourcesFromFile(path string) ([]Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pattern source %s: %w", path, err)
	}
	return LoadSourcesFromBytes(data)
}

// LoadSourcesFromBytes parses a YAML pattern source document.
func LoadSourcesFromBytes(data []byte) ([]Source, error) {
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse pattern source: %w", err)
	}
	return doc.Patterns, nil
}
