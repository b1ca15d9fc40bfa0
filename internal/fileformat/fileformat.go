// Package fileformat picks a serialization codec from a file extension.
package fileformat

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format names a supported codec.
type Format string

const (
	TOML Format = "toml"
	YAML Format = "yaml"
	JSON Format = "json"
)

// Detect maps a path's extension to a Format.
// Supports: .toml, .yaml/.yml, .json
func Detect(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		return TOML, nil
	case ".yaml", ".yml":
		return YAML, nil
	case ".json":
		return JSON, nil
	default:
		return "", fmt.Errorf("unsupported file extension %q (expected .toml, .yaml, or .json)", ext)
	}
}

// Unmarshal decodes b into v using the codec for f.
func Unmarshal(f Format, b []byte, v any) error {
	switch f {
	case TOML:
		return toml.Unmarshal(b, v)
	case YAML:
		return yaml.Unmarshal(b, v)
	case JSON:
		return json.Unmarshal(b, v)
	default:
		return fmt.Errorf("unsupported format %q", f)
	}
}

// Marshal encodes v using the codec for f.
func Marshal(f Format, v any) ([]byte, error) {
	switch f {
	case TOML:
		var buf bytes.Buffer
		enc := toml.NewEncoder(&buf)
		enc.SetIndentTables(true)
		if err := enc.Encode(v); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case YAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case JSON:
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(b, '\n'), nil
	default:
		return nil, fmt.Errorf("unsupported format %q", f)
	}
}

// ReadFile reads path and decodes it according to its extension.
func ReadFile(path string, v any) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}
	f, err := Detect(path)
	if err != nil {
		return err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := Unmarshal(f, b, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// WriteFile encodes v according to the extension of path and replaces the
// file atomically.
func WriteFile(path string, v any) error {
	f, err := Detect(path)
	if err != nil {
		return err
	}
	b, err := Marshal(f, v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
