package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadRequest decodes a YAML or JSON file into v. The path "-" reads
// standard input.
func LoadRequest(path string, v any) error {
	if path == "-" {
		return LoadRequestFrom(os.Stdin, v)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	return ParseRequest(data, path, v)
}

// ParseRequest decodes data by the extension of filename. Unknown
// extensions are tried as YAML, then JSON.
func ParseRequest(data []byte, filename string, v any) error {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return decodeYAML(data, v)
	case ".json":
		return decodeJSON(data, v)
	}
	return decodeEither(data, v, decodeYAML, decodeJSON)
}

// LoadRequestFrom decodes everything read from r, trying JSON first.
func LoadRequestFrom(r io.Reader, v any) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	return decodeEither(data, v, decodeJSON, decodeYAML)
}

type decoder func([]byte, any) error

func decodeEither(data []byte, v any, first, second decoder) error {
	err1 := first(data, v)
	if err1 == nil {
		return nil
	}
	err2 := second(data, v)
	if err2 == nil {
		return nil
	}
	return errors.Join(err1, err2)
}

func decodeYAML(data []byte, v any) error {
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse YAML: %w", err)
	}
	return nil
}

func decodeJSON(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse JSON: %w", err)
	}
	return nil
}
