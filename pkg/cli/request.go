package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadRequest decodes a request file into v. "-" reads stdin. The encoding
// follows the extension; other names are tried as YAML, which also accepts
// JSON.
func LoadRequest(path string, v any) error {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("cli: read request: %w", err)
	}
	return ParseRequest(data, path, v)
}

// ParseRequest decodes data named filename into v.
func ParseRequest(data []byte, filename string, v any) error {
	if strings.ToLower(filepath.Ext(filename)) == ".json" {
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("cli: parse %s: %w", filename, err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("cli: parse %s: %w", filename, err)
	}
	return nil
}
