package service

import (
	"sort"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/elrhedda/ipopo/domain"
	"github.com/elrhedda/ipopo/helpers"
)

// MemoryImports is the in-process imports registry: it stores the endpoints
// discovered on remote peers, keyed by UID.
type MemoryImports struct {
	logger log.Logger

	mu        sync.Mutex
	endpoints map[string]*domain.ImportEndpoint
}

// NewMemoryImports creates an empty imports registry.
func NewMemoryImports(logger log.Logger) *MemoryImports {
	return &MemoryImports{
		logger: log.With(helpers.NilPanic(logger, "service.imports_registry.go: logger is required"),
			"component", "imports_registry"),
		endpoints: map[string]*domain.ImportEndpoint{},
	}
}

// Add stores a discovered endpoint. It returns a bad_parameter error for a
// nil endpoint or an empty UID and a duplicate_uid error when the UID is
// already known.
func (m *MemoryImports) Add(endpoint *domain.ImportEndpoint) error {
	if endpoint == nil {
		return NewBadParameterError("nil endpoint", nil)
	}
	if endpoint.UID == "" {
		return NewBadParameterError("endpoint without uid", nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.endpoints[endpoint.UID]; ok {
		return NewDuplicateUIDError(endpoint.UID)
	}
	m.endpoints[endpoint.UID] = endpoint.Copy()
	level.Debug(m.logger).Log("msg", "imported endpoint added",
		"uid", endpoint.UID, "name", endpoint.Name, "framework_uid", endpoint.FrameworkUID)
	return nil
}

// Remove forgets a discovered endpoint, returning an unknown_endpoint error
// when the UID is not known.
func (m *MemoryImports) Remove(uid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.endpoints[uid]; !ok {
		return NewUnknownEndpointError(uid)
	}
	delete(m.endpoints, uid)
	level.Debug(m.logger).Log("msg", "imported endpoint removed", "uid", uid)
	return nil
}

// Get returns a detached copy of the discovered endpoint with the given UID.
func (m *MemoryImports) Get(uid string) (*domain.ImportEndpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	endpoint, ok := m.endpoints[uid]
	if !ok {
		return nil, NewUnknownEndpointError(uid)
	}
	return endpoint.Copy(), nil
}

// List returns detached copies of every discovered endpoint, sorted by name
// then UID.
func (m *MemoryImports) List() ([]*domain.ImportEndpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*domain.ImportEndpoint, 0, len(m.endpoints))
	for _, endpoint := range m.endpoints {
		result = append(result, endpoint.Copy())
	}
	sortImports(result)
	return result, nil
}

// LostFramework drops every endpoint announced by the given framework and
// returns the dropped endpoints. An empty framework UID is a no-op.
func (m *MemoryImports) LostFramework(frameworkUID string) ([]*domain.ImportEndpoint, error) {
	if frameworkUID == "" {
		return nil, nil
	}

	m.mu.Lock()
	var removed []*domain.ImportEndpoint
	for uid, endpoint := range m.endpoints {
		if endpoint.FrameworkUID != frameworkUID {
			continue
		}
		delete(m.endpoints, uid)
		removed = append(removed, endpoint)
	}
	m.mu.Unlock()

	sortImports(removed)
	if len(removed) > 0 {
		level.Info(m.logger).Log("msg", "framework lost, endpoints dropped",
			"framework_uid", frameworkUID, "endpoints", len(removed))
	}
	return removed, nil
}

func sortImports(endpoints []*domain.ImportEndpoint) {
	sort.Slice(endpoints, func(i, j int) bool {
		if endpoints[i].Name != endpoints[j].Name {
			return endpoints[i].Name < endpoints[j].Name
		}
		return endpoints[i].UID < endpoints[j].UID
	})
}
