package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/goccy/go-yaml"
	"github.com/itchyny/gojq"
)

// Format is an output encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// OutputOptions selects how a result is printed.
type OutputOptions struct {
	Format Format
	// JQ filters the result before printing, e.g. ".topIntent".
	JQ string
}

// Output writes v to w. With a jq filter each result is printed on its own;
// strings are printed bare.
func Output(w io.Writer, v any, opts OutputOptions) error {
	if opts.JQ == "" {
		return encode(w, v, opts.Format)
	}
	results, err := Query(v, opts.JQ)
	if err != nil {
		return err
	}
	for _, r := range results {
		if s, ok := r.(string); ok {
			if _, err := fmt.Fprintln(w, s); err != nil {
				return err
			}
			continue
		}
		if err := encode(w, r, opts.Format); err != nil {
			return err
		}
	}
	return nil
}

func encode(w io.Writer, v any, f Format) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML, "":
		// Go through JSON first so json tags and raw JSON fields apply.
		p, err := plain(v)
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(p)
		if err != nil {
			return fmt.Errorf("cli: yaml: %w", err)
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("cli: unsupported output format %q", f)
	}
}

// Query runs a jq expression over v, which is first converted to plain JSON
// values.
func Query(v any, expr string) ([]any, error) {
	q, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("cli: jq %q: %w", expr, err)
	}
	input, err := plain(v)
	if err != nil {
		return nil, err
	}
	var out []any
	iter := q.Run(input)
	for {
		r, ok := iter.Next()
		if !ok {
			return out, nil
		}
		if err, ok := r.(error); ok {
			return nil, fmt.Errorf("cli: jq %q: %w", expr, err)
		}
		out = append(out, r)
	}
}

func plain(v any) (any, error) {
	var data []byte
	switch x := v.(type) {
	case json.RawMessage:
		data = x
	case []byte:
		data = x
	default:
		var err error
		if data, err = json.Marshal(v); err != nil {
			return nil, fmt.Errorf("cli: %w", err)
		}
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("cli: %w", err)
	}
	return out, nil
}
