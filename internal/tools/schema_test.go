package tools

import (
	"errors"
	"strings"
	"testing"
)

func shipmentSchema() *InputSchema {
	return &InputSchema{
		Type: "object",
		Properties: map[string]Property{
			"tracking_number": {Type: "string"},
			"weight_kg":       {Type: "number"},
			"limit":           {Type: "integer"},
			"express":         {Type: "boolean"},
		},
		Required: []string{"tracking_number"},
	}
}

func TestValidate_AcceptsValidArguments(t *testing.T) {
	schema := shipmentSchema()

	args := map[string]any{
		"tracking_number": "TRACK123456",
		"weight_kg":       12.5,
		"limit":           float64(3), // JSON decoding yields float64
		"express":         true,
	}
	if err := schema.Validate(args); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}

func TestValidate_MissingRequiredFieldNamesIt(t *testing.T) {
	schema := shipmentSchema()

	err := schema.Validate(map[string]any{"weight_kg": 1.0})
	if err == nil {
		t.Fatal("Validate() = nil, want missing-field error")
	}
	var argErr *ArgumentError
	if !errors.As(err, &argErr) {
		t.Fatalf("error type = %T, want *ArgumentError", err)
	}
	if argErr.Field != "tracking_number" {
		t.Errorf("Field = %q, want tracking_number", argErr.Field)
	}
}

func TestValidate_TypeMismatchNamesField(t *testing.T) {
	schema := shipmentSchema()

	tests := []struct {
		name  string
		args  map[string]any
		field string
	}{
		{"number as string", map[string]any{"tracking_number": "T", "weight_kg": "heavy"}, "weight_kg"},
		{"string as number", map[string]any{"tracking_number": 42}, "tracking_number"},
		{"fractional integer", map[string]any{"tracking_number": "T", "limit": 2.5}, "limit"},
		{"boolean as string", map[string]any{"tracking_number": "T", "express": "yes"}, "express"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := schema.Validate(tt.args)
			var argErr *ArgumentError
			if !errors.As(err, &argErr) {
				t.Fatalf("Validate() = %v, want *ArgumentError", err)
			}
			if argErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", argErr.Field, tt.field)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error message %q does not name the field", err.Error())
			}
		})
	}
}

func TestValidate_ToleratesUnknownFields(t *testing.T) {
	schema := shipmentSchema()

	args := map[string]any{"tracking_number": "T", "extra": "ignored"}
	if err := schema.Validate(args); err != nil {
		t.Errorf("Validate() error = %v, unknown fields should pass", err)
	}
}

func TestValidate_NilSchemaAndNilArgs(t *testing.T) {
	var schema *InputSchema
	if err := schema.Validate(map[string]any{"anything": 1}); err != nil {
		t.Errorf("nil schema Validate() = %v, want nil", err)
	}

	s := shipmentSchema()
	err := s.Validate(nil)
	var argErr *ArgumentError
	if !errors.As(err, &argErr) || argErr.Field != "tracking_number" {
		t.Errorf("Validate(nil) = %v, want missing tracking_number", err)
	}
}
