// internal/rules/schema_test.go
package rules

import (
	"errors"
	"testing"
)

func TestSchema_Validate(t *testing.T) {
	schema := &Schema{Fields: []Field{
		{Name: "key", Type: FieldString, Required: true},
		{Name: "match", Type: FieldChoice, Required: true, Choices: matchChoices},
		{Name: "num", Type: FieldNumber},
	}}

	tests := []struct {
		name      string
		params    map[string]string
		wantErr   bool
		wantField string
	}{
		{
			name:   "all fields valid",
			params: map[string]string{"key": "logger", "match": "eq", "num": "5"},
		},
		{
			name:   "optional field absent",
			params: map[string]string{"key": "logger", "match": "eq"},
		},
		{
			name:      "required field missing",
			params:    map[string]string{"match": "eq"},
			wantErr:   true,
			wantField: "key",
		},
		{
			name:      "required field empty",
			params:    map[string]string{"key": "", "match": "eq"},
			wantErr:   true,
			wantField: "key",
		},
		{
			name:      "choice outside set",
			params:    map[string]string{"key": "logger", "match": "regex"},
			wantErr:   true,
			wantField: "match",
		},
		{
			name:      "number not coercible",
			params:    map[string]string{"key": "logger", "match": "eq", "num": "many"},
			wantErr:   true,
			wantField: "num",
		},
		{
			name:   "number with surrounding whitespace",
			params: map[string]string{"key": "logger", "match": "eq", "num": " 12 "},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := schema.Validate("test.node", tt.params)
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error = %v, want *ValidationError", err)
			}
			found := false
			for _, f := range verr.Fields {
				if f.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("ValidationError fields = %v, want field %q", verr.Fields, tt.wantField)
			}
		})
	}
}

func TestSchema_ValidateReportsAllFields(t *testing.T) {
	schema := &Schema{Fields: []Field{
		{Name: "key", Type: FieldString, Required: true},
		{Name: "num", Type: FieldNumber, Required: true},
	}}

	err := schema.Validate("test.node", map[string]string{"num": "not-a-number"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Validate() error = %v, want *ValidationError", err)
	}
	if len(verr.Fields) != 2 {
		t.Errorf("ValidationError has %d field errors, want 2 (%v)", len(verr.Fields), verr.Fields)
	}
}

func TestDescriptor_ValidateNilSchema(t *testing.T) {
	desc := FirstSeenDescriptor()
	inst := desc.Bind("", map[string]string{"stray": "value"})

	if err := desc.Validate(inst); err != nil {
		t.Errorf("Validate() with nil schema error = %v, want nil", err)
	}
}

func TestInstance_Immutable(t *testing.T) {
	desc := TaggedDescriptor()
	params := map[string]string{"key": "logger", "match": "eq", "value": "x"}
	inst := desc.Bind("", params)

	// Mutating the source map or the Params() copy must not reach the instance.
	params["key"] = "changed"
	copied := inst.Params()
	copied["match"] = "nc"

	if got := inst.Param("key"); got != "logger" {
		t.Errorf("Param(key) = %q, want %q", got, "logger")
	}
	if got := inst.Param("match"); got != "eq" {
		t.Errorf("Param(match) = %q, want %q", got, "eq")
	}
}
