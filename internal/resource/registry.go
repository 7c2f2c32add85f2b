package resource

import (
	"fmt"
	"slices"

	"github.com/stacklok/view-exporter/internal/config"
)

// staticRegistry is an immutable Registry
type staticRegistry struct {
	names     []Name
	resources map[Name]Resource
}

// NewRegistry creates a Registry holding the given resources in order.
// Names must be plain file names; empty and duplicate names are rejected.
func NewRegistry(resources ...Resource) (Registry, error) {
	reg := &staticRegistry{
		names:     make([]Name, 0, len(resources)),
		resources: make(map[Name]Resource, len(resources)),
	}

	for i, res := range resources {
		if res == nil {
			return nil, fmt.Errorf("resource[%d] is nil", i)
		}
		name := res.Name()
		if err := config.ValidateResourceName(string(name)); err != nil {
			return nil, fmt.Errorf("resource[%d]: %w", i, err)
		}
		if _, exists := reg.resources[name]; exists {
			return nil, fmt.Errorf("resource[%d]: duplicate resource name '%s'", i, name)
		}
		reg.names = append(reg.names, name)
		reg.resources[name] = res
	}

	return reg, nil
}

// FromConfig builds the registry described by the configuration.
// When no resources are configured the built-in definitions are used.
func FromConfig(cfgs []config.ResourceConfig) (Registry, error) {
	if len(cfgs) == 0 {
		return NewRegistry(Defaults()...)
	}

	resources := make([]Resource, 0, len(cfgs))
	for _, cfg := range cfgs {
		switch cfg.GetKind() {
		case config.ResourceKindList:
			resources = append(resources, NewListResource(Name(cfg.Name), cfg.Query))
		case config.ResourceKindDir:
			resources = append(resources, NewDirResource(Name(cfg.Name), cfg.Query))
		default:
			return nil, fmt.Errorf("resource %s: unsupported kind %s", cfg.Name, cfg.Kind)
		}
	}
	return NewRegistry(resources...)
}

func (r *staticRegistry) Names() []Name {
	return slices.Clone(r.names)
}

func (r *staticRegistry) Lookup(name Name) (Resource, bool) {
	res, ok := r.resources[name]
	return res, ok
}
