package tool

import (
	"github.com/relaykit/kernel/kernelerr"
	"github.com/relaykit/kernel/registry"
)

// maxRegistrySize is the spec's hard cardinality cap on distinct registered
// tools per process (§3, "Registry cardinality is bounded to 20 distinct
// tools per process").
const maxRegistrySize = 20

// Registry resolves a ToolDispatch to a Tool in O(1) and bounds the
// distinct-tool count to maxRegistrySize.
type Registry struct {
	base *registry.Registry[Tool]
}

// NewRegistry returns an empty, bounded tool registry.
func NewRegistry() *Registry {
	return &Registry{base: registry.New[Tool](registry.WithMaxItems[Tool](maxRegistrySize))}
}

// Register adds a tool under its own Name. Registering a second tool under
// an already-occupied name, or exceeding the cardinality cap, is an error.
func (r *Registry) Register(t Tool) error {
	if err := r.base.Register(t.Name().String(), t); err != nil {
		return kernelerr.Wrap(kernelerr.KindTool, kernelerr.CodeToolNotFound, "tool.registry", "Register", "failed to register tool", err)
	}
	return nil
}

// Resolve looks up the tool instance bound to dispatch.
func (r *Registry) Resolve(dispatch ToolDispatch) (Tool, error) {
	t, ok := r.base.Get(dispatch.String())
	if !ok {
		return nil, toolErr(kernelerr.CodeToolNotFound, "Resolve", "no tool registered for "+dispatch.String())
	}
	return t, nil
}

// Names returns every registered tool name, sorted.
func (r *Registry) Names() []string { return r.base.Names() }

// Count returns the number of distinct registered tools.
func (r *Registry) Count() int { return r.base.Count() }
