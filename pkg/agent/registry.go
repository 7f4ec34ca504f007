package agent

import (
	"fmt"
	"sort"
	"sync"
)

// Entry describes a registered agent.
type Entry struct {
	Name        string
	Description string
	Model       string
	OutputKey   string
	Tools       []string
}

// Registry is a thread-safe directory of agents by name.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Agent
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]*Agent)}
}

// Register adds agents. Names must be unique.
func (r *Registry) Register(agents ...*Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range agents {
		if _, dup := r.agents[a.Name()]; dup {
			return fmt.Errorf("agent: duplicate agent name %q", a.Name())
		}
		r.agents[a.Name()] = a
	}

	return nil
}

// Get returns the named agent.
func (r *Registry) Get(name string) (*Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[name]
	return a, ok
}

// Len returns the number of agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.agents)
}

// List returns all entries sorted by name.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, 0, len(r.agents))
	for _, a := range r.agents {
		e := Entry{
			Name:        a.Name(),
			Description: a.Description(),
			Model:       a.Model(),
			OutputKey:   a.OutputKey(),
		}
		for _, t := range a.Tools() {
			e.Tools = append(e.Tools, t.Name)
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})

	return entries
}
