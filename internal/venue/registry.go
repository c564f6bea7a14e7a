package venue

import "fmt"

// Registry holds the configured venue clients keyed by name. Built once at
// startup and read-only afterwards.
type Registry struct {
	clients map[string]Client
}

// NewRegistry creates a registry from the given clients.
func NewRegistry(clients ...Client) *Registry {
	r := &Registry{clients: make(map[string]Client, len(clients))}
	for _, c := range clients {
		r.clients[c.Name()] = c
	}
	return r
}

// Get returns the client for a venue name.
func (r *Registry) Get(name string) (Client, error) {
	c, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("unknown venue %q", name)
	}
	return c, nil
}

// Names returns all registered venue names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	return names
}
