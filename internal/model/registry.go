package model

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"pseudoflow/internal/config"
)

// Priority orders backends when several could serve; higher wins.
type Priority int

const (
	PriorityLow    Priority = 10
	PriorityMedium Priority = 50
	PriorityHigh   Priority = 100
)

// Constructor builds a backend instance from configuration.
type Constructor func(cfg config.LLMConfig) (Backend, error)

// Registration describes one backend in the table.
type Registration struct {
	Name     string
	Aliases  []string
	Priority Priority
	New      Constructor
}

// Registry is a read-mostly table of backends keyed by canonical name with
// an alias index. Built once at startup; safe for concurrent reads.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]Registration
	aliases map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:  make(map[string]Registration),
		aliases: make(map[string]string),
	}
}

// Register adds a backend to the table. Name and alias collisions are
// errors; a table with ambiguous lookups is worse than a failed startup.
func (r *Registry) Register(reg Registration) error {
	if reg.Name == "" {
		return fmt.Errorf("registration needs a name")
	}
	if reg.New == nil {
		return fmt.Errorf("registration %q needs a constructor", reg.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[reg.Name]; exists {
		return fmt.Errorf("backend %q already registered", reg.Name)
	}
	for _, alias := range reg.Aliases {
		if owner, exists := r.aliases[alias]; exists {
			return fmt.Errorf("alias %q already taken by %q", alias, owner)
		}
		if _, exists := r.byName[alias]; exists {
			return fmt.Errorf("alias %q collides with backend name", alias)
		}
	}

	r.byName[reg.Name] = reg
	for _, alias := range reg.Aliases {
		r.aliases[alias] = reg.Name
	}
	return nil
}

// Resolve maps a name or alias to the canonical backend name. A miss
// lists every known name.
func (r *Registry) Resolve(nameOrAlias string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.byName[nameOrAlias]; ok {
		return nameOrAlias, nil
	}
	if name, ok := r.aliases[nameOrAlias]; ok {
		return name, nil
	}
	return "", fmt.Errorf("model '%s' not found. Available models: %s",
		nameOrAlias, strings.Join(r.namesLocked(), ", "))
}

// Create resolves and instantiates a backend.
func (r *Registry) Create(nameOrAlias string, cfg config.LLMConfig) (Backend, error) {
	name, err := r.Resolve(nameOrAlias)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	reg := r.byName[name]
	r.mu.RUnlock()
	return reg.New(cfg)
}

// Names returns all canonical names, highest priority first, ties by name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	regs := make([]Registration, 0, len(r.byName))
	for _, reg := range r.byName {
		regs = append(regs, reg)
	}
	sort.Slice(regs, func(i, j int) bool {
		if regs[i].Priority != regs[j].Priority {
			return regs[i].Priority > regs[j].Priority
		}
		return regs[i].Name < regs[j].Name
	})
	names := make([]string, len(regs))
	for i, reg := range regs {
		names[i] = reg.Name
	}
	return names
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry, built once at first use.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
		// A closed set: registrations are static, not plugin-discovered.
		_ = defaultRegistry.Register(Registration{
			Name:     "rulebased",
			Aliases:  []string{"rules", "offline"},
			Priority: PriorityLow,
			New:      newRuleBased,
		})
		_ = defaultRegistry.Register(Registration{
			Name:     "gemini",
			Aliases:  []string{"google", "genai"},
			Priority: PriorityHigh,
			New:      newGemini,
		})
	})
	return defaultRegistry
}
