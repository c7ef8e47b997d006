package bridge

import (
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ServiceSpec describes one catalog entry: the backend's name, the
// environment variable supplying its endpoint, and the fallback endpoint
// used when the variable is unset.
type ServiceSpec struct {
	Name            string
	EnvVar          string
	DefaultEndpoint string
	Protocol        string
}

// DefaultServices returns the fixed catalog of backend services. Each
// service gets a distinct fallback port and the "mcp" protocol tag.
func DefaultServices() []ServiceSpec {
	return []ServiceSpec{
		{Name: "python", EnvVar: "TOOLBRIDGE_PYTHON_URL", DefaultEndpoint: "http://localhost:8001", Protocol: "mcp"},
		{Name: "octave", EnvVar: "TOOLBRIDGE_OCTAVE_URL", DefaultEndpoint: "http://localhost:8002", Protocol: "mcp"},
		{Name: "manim", EnvVar: "TOOLBRIDGE_MANIM_URL", DefaultEndpoint: "http://localhost:8003", Protocol: "mcp"},
	}
}

// Registry holds the set of named Connections. It is built once during
// application startup and passed by reference to consumers; tests build
// isolated registries with whatever connections they need.
type Registry struct {
	mut   sync.RWMutex
	conns map[string]*Connection
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Connection)}
}

// NewRegistryFromEnv builds a registry with one Connection per catalog
// entry, reading each service's endpoint from its environment variable and
// falling back to the hardcoded default.
func NewRegistryFromEnv(logger *zap.Logger, opts ...Option) *Registry {
	r := NewRegistry()
	for _, spec := range DefaultServices() {
		endpoint := spec.DefaultEndpoint
		if v := os.Getenv(spec.EnvVar); v != "" {
			endpoint = v
		}
		connOpts := append([]Option{WithLogger(logger)}, opts...)
		r.Register(NewConnection(spec.Name, ServiceConfig{
			Endpoint: endpoint,
			Protocol: spec.Protocol,
		}, connOpts...))
	}
	return r
}

// Register adds a connection under its tool name, replacing any previous
// connection with the same name.
func (r *Registry) Register(c *Connection) {
	r.mut.Lock()
	defer r.mut.Unlock()
	r.conns[c.name] = c
}

func (r *Registry) Get(name string) (*Connection, bool) {
	r.mut.RLock()
	defer r.mut.RUnlock()
	c, ok := r.conns[name]
	return c, ok
}

// Names returns the registered service names, sorted for stable output.
func (r *Registry) Names() []string {
	r.mut.RLock()
	defer r.mut.RUnlock()
	names := make([]string, 0, len(r.conns))
	for name := range r.conns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StatusAll returns a snapshot of every registered connection, ordered by
// service name.
func (r *Registry) StatusAll() []Status {
	r.mut.RLock()
	defer r.mut.RUnlock()
	names := make([]string, 0, len(r.conns))
	for name := range r.conns {
		names = append(names, name)
	}
	sort.Strings(names)
	statuses := make([]Status, 0, len(names))
	for _, name := range names {
		statuses = append(statuses, r.conns[name].Status())
	}
	return statuses
}
