// internal/rules/label.go
package rules

import "strings"

// RenderLabel substitutes the instance's bound parameter values into the
// descriptor's label template. Placeholders use {name} syntax; a placeholder
// with no bound value is left verbatim so the authoring UI can show the
// unfilled form. Choice parameters render their display label rather than
// the stored value. Used only by the presentation layer, but the placeholder
// syntax is part of the node contract.
func RenderLabel(inst *Instance) string {
	label := inst.Desc.Label
	for name, value := range inst.params {
		if value == "" {
			continue
		}
		label = strings.ReplaceAll(label, "{"+name+"}", displayValue(inst.Desc.Schema, name, value))
	}
	return label
}

// displayValue maps a choice value to its display label; other field types
// render the raw value.
func displayValue(schema *Schema, name, value string) string {
	if schema == nil {
		return value
	}
	for _, field := range schema.Fields {
		if field.Name != name || field.Type != FieldChoice {
			continue
		}
		for _, c := range field.Choices {
			if c.Value == value {
				return c.Label
			}
		}
	}
	return value
}
