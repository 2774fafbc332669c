// Package workflow maps conversation flow names to pattern factories and
// exposes configuration-readiness diagnostics. Name resolution is built once
// at registration time into a static alias table; lookups are O(1) and
// insensitive to case and to hyphen/underscore separators.
package workflow

import (
	"sort"
	"strings"
	"sync"

	"github.com/threadline-ai/threadline/core"
)

// Descriptor is the read-only identity and requirements of a registered
// workflow, built at registration time.
type Descriptor struct {
	// Name is the canonical flow name (lowercase, hyphen-separated).
	Name string `json:"name"`
	// Aliases are additional accepted names, e.g. legacy spellings.
	Aliases []string `json:"aliases,omitempty"`
	// RequiredConfig lists the setting keys the workflow needs before it can
	// run.
	RequiredConfig []string `json:"required_config"`
	// ExternalServices names the collaborators the workflow talks to
	// (model providers, databases), for diagnostics only.
	ExternalServices []string `json:"external_services"`
}

// Factory constructs the workflow's pattern for one dispatch.
type Factory func() core.Pattern

// Diagnosis is the readiness report for one workflow. It never executes the
// workflow.
type Diagnosis struct {
	Configured       bool     `json:"configured"`
	MissingConfig    []string `json:"missing_config"`
	RequiredConfig   []string `json:"required_config"`
	ExternalServices []string `json:"external_services"`
	Ready            bool     `json:"ready"`
}

type entry struct {
	descriptor Descriptor
	factory    Factory
}

// Registry resolves normalized workflow names to pattern factories.
// Registration happens at startup; resolution is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry // canonical name -> entry
	aliases map[string]string // normalized name -> canonical name
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		aliases: make(map[string]string),
	}
}

// Normalize folds a flow name to its lookup form: lowercase with underscores
// and spaces mapped to hyphens.
func Normalize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "_", "-")
	name = strings.ReplaceAll(name, " ", "-")
	return name
}

// Register adds a workflow under its canonical name and all declared
// aliases. A duplicate normalized name overwrites the previous binding.
func (r *Registry) Register(desc Descriptor, factory Factory) {
	canonical := Normalize(desc.Name)
	desc.Name = canonical

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[canonical] = &entry{descriptor: desc, factory: factory}
	r.aliases[canonical] = canonical
	for _, alias := range desc.Aliases {
		r.aliases[Normalize(alias)] = canonical
	}
}

// Resolve returns the factory and descriptor for a flow name, or a
// *core.UnknownWorkflowError listing the registered canonical names.
func (r *Registry) Resolve(name string) (Factory, Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	canonical, ok := r.aliases[Normalize(name)]
	if !ok {
		return nil, Descriptor{}, &core.UnknownWorkflowError{Name: name, Known: r.namesLocked()}
	}
	e := r.entries[canonical]
	return e.factory, e.descriptor, nil
}

// List returns the registered descriptors sorted by canonical name.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.descriptor)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Diagnose reports configuration readiness for a flow given the available
// setting keys, without executing anything. Unknown flows return the
// resolution error.
func (r *Registry) Diagnose(name string, settings map[string]string) (Diagnosis, error) {
	_, desc, err := r.Resolve(name)
	if err != nil {
		return Diagnosis{}, err
	}

	missing := make([]string, 0)
	for _, key := range desc.RequiredConfig {
		if strings.TrimSpace(settings[key]) == "" {
			missing = append(missing, key)
		}
	}
	configured := len(missing) == 0
	return Diagnosis{
		Configured:       configured,
		MissingConfig:    missing,
		RequiredConfig:   desc.RequiredConfig,
		ExternalServices: desc.ExternalServices,
		Ready:            configured,
	}, nil
}

// namesLocked returns sorted canonical names; caller holds at least RLock.
func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
