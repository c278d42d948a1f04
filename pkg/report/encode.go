package report

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v2"
)

// Encode writes r in the given format (JSON or YAML).
func Encode(w io.Writer, r *AnalysisResult, format Format) error {
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		data, err := MarshalYAML(r)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("cannot encode report as %s", format)
	}
}

// MarshalYAML renders r as YAML with the same keys and key order as its
// JSON encoding.
func MarshalYAML(r *AnalysisResult) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var doc yaml.MapSlice
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("convert report to yaml: %w", err)
	}
	return yaml.Marshal(doc)
}

// Decode reads a JSON or YAML encoded result.
func Decode(rd io.Reader, format Format) (*AnalysisResult, error) {
	var r AnalysisResult
	switch format {
	case FormatJSON, "":
		if err := json.NewDecoder(rd).Decode(&r); err != nil {
			return nil, err
		}
	case FormatYAML:
		data, err := io.ReadAll(rd)
		if err != nil {
			return nil, err
		}
		var generic any
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return nil, err
		}
		js, err := json.Marshal(jsonCompatible(generic))
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(js, &r); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("cannot decode report from %s", format)
	}
	return &r, nil
}

// jsonCompatible converts yaml.v2's map[interface{}]interface{} values
// into map[string]any.
func jsonCompatible(v any) any {
	switch t := v.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = jsonCompatible(val)
		}
		return m
	case []interface{}:
		for i := range t {
			t[i] = jsonCompatible(t[i])
		}
		return t
	default:
		return v
	}
}
