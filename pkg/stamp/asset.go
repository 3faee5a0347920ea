package stamp

import (
	"fmt"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

var json = jsoniter.Config{
	IndentionStep:          2,
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

// ParseSettings decodes YAML settings on top of DefaultSettings.
func ParseSettings(data []byte) (*Settings, error) {
	s := DefaultSettings()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing stamp settings: %w", err)
	}
	return s, nil
}

// LoadSettings reads a YAML settings asset. A relative Source is resolved
// against the asset's directory.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := ParseSettings(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.Source = resolve(filepath.Dir(path), s.Source)
	for i := range s.Masks {
		if img := s.Masks[i].Image; img != nil {
			img.Source = resolve(filepath.Dir(path), img.Source)
		}
	}
	return s, nil
}

// resolve makes a local relative path absolute against dir. URLs and
// absolute paths are returned as is.
func resolve(dir, src string) string {
	if src == "" || filepath.IsAbs(src) || isURL(src) {
		return src
	}
	return filepath.Join(dir, src)
}

func isURL(src string) bool {
	for i := 0; i < len(src); i++ {
		switch c := src[i]; {
		case c == ':':
			// "c:" style drive letters are paths, "s3::" and "http://" are not
			return i > 1
		case c == '/' || c == '\\' || c == '.':
			return false
		}
	}
	return false
}

// SaveSettings writes s as YAML, creating parent directories.
func SaveSettings(path string, s *Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling stamp settings: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0644)
}

// ExportJSON encodes s as indented JSON.
func ExportJSON(s *Settings) ([]byte, error) {
	return json.Marshal(s)
}

// ImportJSON decodes JSON settings on top of DefaultSettings.
func ImportJSON(data []byte) (*Settings, error) {
	s := DefaultSettings()
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing stamp settings: %w", err)
	}
	return s, nil
}
