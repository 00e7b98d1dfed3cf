package modulebus

import "time"

// Module is a minimal addressable unit on the hub's module bus: an
// identity plus its last-known parameter values. Domain and Protocol are
// free-form labels owned by whatever bridge registers the module — the
// registry does not validate them against a fixed taxonomy.
type Module struct {
	ID       string
	Name     string
	Domain   string
	Protocol string

	// Parameters holds the module's current property values, keyed by
	// property name. Values mirror whatever shape the bridge published.
	Parameters map[string]any

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewModule constructs a module with an empty parameter map. Name defaults
// to id; callers can set it afterward.
func NewModule(id, domain, protocol string) *Module {
	return &Module{
		ID:         id,
		Name:       id,
		Domain:     domain,
		Protocol:   protocol,
		Parameters: make(map[string]any),
	}
}

// DeepCopy returns an independent copy of m, safe to hand to a caller that
// may mutate it without affecting the registry's cached copy.
func (m *Module) DeepCopy() *Module {
	if m == nil {
		return nil
	}
	cp := *m
	cp.Parameters = deepCopyMap(m.Parameters)
	return &cp
}

func deepCopyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return val
	}
}
