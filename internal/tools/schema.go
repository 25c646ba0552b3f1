package tools

import (
	"encoding/json"
	"fmt"
	"math"
)

// Property describes one argument in an InputSchema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// InputSchema is the subset of JSON Schema used to validate tool
// arguments before a tool runs: required fields and primitive types.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// ArgumentError reports one invalid argument. Field is always set so
// the model knows exactly what to fix.
type ArgumentError struct {
	Field  string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Field, e.Reason)
}

// Validate checks args against the schema. The first violation is
// returned as an *ArgumentError; unknown extra fields are tolerated.
func (s *InputSchema) Validate(args map[string]any) error {
	if s == nil {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}

	for _, field := range s.Required {
		if _, ok := args[field]; !ok {
			return &ArgumentError{Field: field, Reason: "required field is missing"}
		}
	}

	for key, value := range args {
		prop, ok := s.Properties[key]
		if !ok || prop.Type == "" {
			continue
		}
		if !typeMatches(value, prop.Type) {
			return &ArgumentError{
				Field:  key,
				Reason: fmt.Sprintf("expected %s, got %s", prop.Type, jsonTypeName(value)),
			}
		}
	}
	return nil
}

func typeMatches(value any, expected string) bool {
	switch expected {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		return isNumber(value)
	case "integer":
		return isInteger(value)
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "null":
		return value == nil
	}
	return false
}

func isNumber(value any) bool {
	switch v := value.(type) {
	case float32, float64, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return true
	case json.Number:
		_, err := v.Float64()
		return err == nil
	}
	return false
}

// isInteger accepts floats with zero fractional part because JSON
// decoding produces float64 for every number.
func isInteger(value any) bool {
	switch v := value.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return true
	case float32:
		return math.Trunc(float64(v)) == float64(v)
	case float64:
		return math.Trunc(v) == v
	case json.Number:
		_, err := v.Int64()
		return err == nil
	}
	return false
}

func jsonTypeName(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case float32, float64, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, json.Number:
		return "number"
	}
	return fmt.Sprintf("%T", value)
}
