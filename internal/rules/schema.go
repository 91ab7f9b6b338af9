// internal/rules/schema.go
package rules

import (
	"fmt"
	"strconv"
	"strings"
)

/*
 * Parameter schema and validation.
 *
 * Parameters arrive as string-keyed string maps (the storage and form
 * representation). Each node type declares an ordered schema of named,
 * typed fields; Validate checks every field and reports all failures at
 * once so the authoring UI can surface them together.
 *
 * Validation modes per boundary: authoring is strict (a failing schema
 * blocks the save), evaluation is permissive (a failing instance is skipped,
 * fail closed, and processing continues).
 */

// FieldType names the coercion applied to a parameter during validation.
type FieldType string

const (
	// FieldString accepts any non-empty string (empty allowed when the
	// field is optional).
	FieldString FieldType = "string"

	// FieldNumber requires a base-10 integer.
	FieldNumber FieldType = "number"

	// FieldChoice requires one of the declared choice values.
	FieldChoice FieldType = "choice"
)

// Choice is one allowed value of a FieldChoice parameter, with the label
// the presentation layer displays for it.
type Choice struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Field declares a single named parameter.
type Field struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
	Choices  []Choice  `json:"choices,omitempty"`
}

// Schema is the ordered set of a node type's parameters. The serialized
// form (field name, type, required, choices) is the introspection contract
// the presentation collaborator builds editing forms from.
type Schema struct {
	Fields []Field `json:"fields"`
}

// FieldError is a single field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports every failing field of one node instance.
type ValidationError struct {
	NodeID string       `json:"node_id"`
	Fields []FieldError `json:"fields"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return fmt.Sprintf("invalid parameters for %s: %s", e.NodeID, strings.Join(parts, "; "))
}

// Validate checks params against the schema and returns a *ValidationError
// covering all failing fields, or nil when every field passes.
func (s *Schema) Validate(nodeID string, params map[string]string) error {
	var fieldErrs []FieldError

	for _, field := range s.Fields {
		value := params[field.Name]
		if value == "" {
			if field.Required {
				fieldErrs = append(fieldErrs, FieldError{Field: field.Name, Message: "required"})
			}
			continue
		}

		switch field.Type {
		case FieldString:
			// Any non-empty string is acceptable.
		case FieldNumber:
			if _, err := strconv.Atoi(strings.TrimSpace(value)); err != nil {
				fieldErrs = append(fieldErrs, FieldError{Field: field.Name, Message: "must be an integer"})
			}
		case FieldChoice:
			if !validChoice(field.Choices, value) {
				fieldErrs = append(fieldErrs, FieldError{Field: field.Name, Message: fmt.Sprintf("%q is not an allowed value", value)})
			}
		default:
			fieldErrs = append(fieldErrs, FieldError{Field: field.Name, Message: fmt.Sprintf("unknown field type %q", field.Type)})
		}
	}

	if len(fieldErrs) > 0 {
		return &ValidationError{NodeID: nodeID, Fields: fieldErrs}
	}
	return nil
}

// validChoice reports whether value is among the declared choices.
func validChoice(choices []Choice, value string) bool {
	for _, c := range choices {
		if c.Value == value {
			return true
		}
	}
	return false
}
