package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Decode parses a structured reply into T after checking it against schema.
// Required keys must be present and every value must have the declared type.
// Code fences around the JSON are tolerated.
func Decode[T any](raw string, schema *genai.Schema) (T, error) {
	var zero T
	body := stripFences(raw)

	var doc any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	if schema != nil {
		if err := checkSchema("$", doc, schema); err != nil {
			return zero, err
		}
	}

	var out T
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	return out, nil
}

func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func checkSchema(path string, v any, s *genai.Schema) error {
	if v == nil {
		if s.Nullable != nil && *s.Nullable {
			return nil
		}
		return mismatch(path, "is null")
	}

	switch s.Type {
	case genai.TypeObject:
		obj, ok := v.(map[string]any)
		if !ok {
			return mismatch(path, "is not an object")
		}
		for _, key := range s.Required {
			if _, ok := obj[key]; !ok {
				return mismatch(path, "is missing required key "+key)
			}
		}
		for key, prop := range s.Properties {
			child, ok := obj[key]
			if !ok || prop == nil {
				continue
			}
			if err := checkSchema(path+"."+key, child, prop); err != nil {
				return err
			}
		}
	case genai.TypeArray:
		items, ok := v.([]any)
		if !ok {
			return mismatch(path, "is not an array")
		}
		if s.Items == nil {
			return nil
		}
		for i, item := range items {
			if err := checkSchema(fmt.Sprintf("%s[%d]", path, i), item, s.Items); err != nil {
				return err
			}
		}
	case genai.TypeString:
		if _, ok := v.(string); !ok {
			return mismatch(path, "is not a string")
		}
	case genai.TypeBoolean:
		if _, ok := v.(bool); !ok {
			return mismatch(path, "is not a boolean")
		}
	case genai.TypeNumber:
		if _, ok := v.(float64); !ok {
			return mismatch(path, "is not a number")
		}
	case genai.TypeInteger:
		f, ok := v.(float64)
		if !ok || f != float64(int64(f)) {
			return mismatch(path, "is not an integer")
		}
	}
	return nil
}

func mismatch(path, problem string) error {
	return fmt.Errorf("%w: %s %s", ErrSchemaMismatch, path, problem)
}
