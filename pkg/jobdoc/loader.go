// Package jobdoc loads and validates job-set documents.
//
// A document is a JSON object with a "jobs" array and optional "metadata".
// YAML and TOML renderings of the same shape are accepted and converted to
// JSON before validation.
package jobdoc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Format identifies the serialization of a document.
type Format string

const (
	FormatAuto Format = ""
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFromPath picks a format from a file extension.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	}
	return FormatAuto
}

// Load reads and validates a document from the given file path.
//
// The format is determined by extension. Unknown extensions are tried as
// JSON first, then YAML.
func Load(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("job document not found: %s", path)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("permission denied reading job document: %s", path)
		}
		return nil, fmt.Errorf("failed to read job document: %w", err)
	}
	return LoadFromBytes(data, FormatFromPath(path))
}

// LoadFromReader reads and validates a document from r.
func LoadFromReader(r io.Reader, format Format) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read job document: %w", err)
	}
	return LoadFromBytes(data, format)
}

// LoadFromBytes parses and validates a document.
func LoadFromBytes(data []byte, format Format) (*Result, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errors.New("job document is empty")
	}
	jsonData, err := toJSON(data, format)
	if err != nil {
		return nil, err
	}
	return Validate(jsonData)
}

// toJSON converts the input to JSON for validation.
func toJSON(data []byte, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		if !json.Valid(data) {
			var raw any
			err := json.Unmarshal(data, &raw)
			return nil, fmt.Errorf("invalid JSON in job document: %w", err)
		}
		return data, nil
	case FormatYAML:
		return yamlToJSON(data)
	case FormatTOML:
		return tomlToJSON(data)
	default:
		if json.Valid(data) {
			return data, nil
		}
		jsonData, err := yamlToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse job document (tried JSON and YAML): %w", err)
		}
		return jsonData, nil
	}
}

func yamlToJSON(data []byte) ([]byte, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid YAML in job document: %w", err)
	}
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to convert job document to JSON: %w", err)
	}
	return jsonData, nil
}

func tomlToJSON(data []byte) ([]byte, error) {
	var raw map[string]any
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return nil, fmt.Errorf("invalid TOML in job document: %w", err)
	}
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to convert job document to JSON: %w", err)
	}
	return jsonData, nil
}
