// internal/rules/catalog.go
package rules

// NodeDescription is the serializable description of a registered node
// type: enough for an external editing UI to render a form and validate it,
// independent of any UI technology.
type NodeDescription struct {
	ID     string  `json:"id"`
	Kind   Kind    `json:"kind"`
	Label  string  `json:"label"`
	Schema *Schema `json:"schema,omitempty"`
}

// Catalog describes every registered node of the given kind, in
// registration order.
func Catalog(registry *Registry, kind Kind) []NodeDescription {
	descs := registry.List(kind)
	out := make([]NodeDescription, len(descs))
	for i, d := range descs {
		out[i] = NodeDescription{
			ID:     d.ID,
			Kind:   d.Kind,
			Label:  d.Label,
			Schema: d.Schema,
		}
	}
	return out
}
