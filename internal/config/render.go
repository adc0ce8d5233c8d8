package config

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"gopkg.in/yaml.v3"
)

// Marshal renders cfg as YAML using the same keys the config file accepts.
func Marshal(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}

	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}

	return buf.Bytes(), nil
}

// Diff returns a unified diff of cfg against the built-in defaults. An empty
// string means cfg only carries default values.
func Diff(cfg *Config) (string, error) {
	defaults, err := Marshal(Default())
	if err != nil {
		return "", err
	}

	effective, err := Marshal(cfg)
	if err != nil {
		return "", err
	}

	diff := difflib.UnifiedDiff{
		A:        splitLines(string(defaults)),
		B:        splitLines(string(effective)),
		FromFile: "defaults",
		ToFile:   "effective",
		Context:  1,
	}

	unified, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", fmt.Errorf("computing diff: %w", err)
	}

	return unified, nil
}

// splitLines splits s into lines, each keeping its trailing newline as
// difflib expects.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}

	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	return lines
}
