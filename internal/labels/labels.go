// Package labels maps classifier labels to person names.
package labels

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"trace-rescue/internal/core/models"
)

// ErrInvalidLabelMap is returned for artifacts that are empty or not one-to-one.
var ErrInvalidLabelMap = errors.New("invalid label map")

// Map is a read-only label to name lookup built from the training artifact,
// which stores name -> integer label.
type Map struct {
	names map[int]string
}

// Load reads a name -> label mapping from a YAML or JSON file. The format is
// picked by extension; anything that is not .json is parsed as YAML.
func Load(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read label map %s: %w", path, err)
	}

	raw := map[string]int{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &raw)
	default:
		err = yaml.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse label map %s: %w", path, err)
	}
	return New(raw)
}

// New builds a Map from name -> label pairs. Two names sharing a label are
// rejected, since the inverse lookup would be ambiguous.
func New(byName map[string]int) (*Map, error) {
	if len(byName) == 0 {
		return nil, fmt.Errorf("%w: no labels", ErrInvalidLabelMap)
	}
	names := make(map[int]string, len(byName))
	for name, label := range byName {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("%w: empty name for label %d", ErrInvalidLabelMap, label)
		}
		if prev, ok := names[label]; ok {
			return nil, fmt.Errorf("%w: label %d used by %q and %q", ErrInvalidLabelMap, label, prev, name)
		}
		names[label] = name
	}
	return &Map{names: names}, nil
}

// Name returns the person for an integer label, or "Unknown".
func (m *Map) Name(label int) string {
	if name, ok := m.names[label]; ok {
		return name
	}
	return models.UnknownName
}

// Lookup resolves a decimal string label.
func (m *Map) Lookup(label string) (string, bool) {
	n, err := strconv.Atoi(label)
	if err != nil {
		return models.UnknownName, false
	}
	name, ok := m.names[n]
	if !ok {
		return models.UnknownName, false
	}
	return name, true
}

// Names lists all known persons sorted alphabetically.
func (m *Map) Names() []string {
	out := make([]string, 0, len(m.names))
	for _, n := range m.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Len is the number of labels.
func (m *Map) Len() int { return len(m.names) }
