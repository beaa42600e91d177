package domain

import "sync"

// ServiceEventKind is the lifecycle event kind delivered by the local service
// registry. Values match the registry's event names.
type ServiceEventKind string

const (
	// ServiceRegistered means a matching service appeared.
	ServiceRegistered ServiceEventKind = "REGISTERED"
	// ServiceModified means a known service changed its properties.
	ServiceModified ServiceEventKind = "MODIFIED"
	// ServiceModifiedEndmatch means a service changed and no longer matches
	// the export filter.
	ServiceModifiedEndmatch ServiceEventKind = "MODIFIED_ENDMATCH"
	// ServiceUnregistering means a service is going away.
	ServiceUnregistering ServiceEventKind = "UNREGISTERING"
)

// ServiceEvent is one lifecycle notification. PreviousProperties is set only
// for MODIFIED events.
type ServiceEvent struct {
	Kind               ServiceEventKind
	Ref                ServiceReference
	PreviousProperties map[string]any
}

// ServiceReference identifies one local service and exposes its current
// properties. The service registry owns mutation; readers always get copies.
type ServiceReference interface {
	// ServiceID returns the registry-unique identifier of the service.
	ServiceID() string
	// Property returns the current value for name, or nil when unset.
	Property(name string) any
	// Properties returns a copy of the current property set.
	Properties() map[string]any
}

// ServiceRef is a plain ServiceReference implementation used by the demo
// event source and by tests.
type ServiceRef struct {
	id string

	mu    sync.RWMutex
	props map[string]any
}

// NewServiceRef creates a reference with the given identifier and initial
// properties (copied).
func NewServiceRef(id string, properties map[string]any) *ServiceRef {
	return &ServiceRef{
		id:    id,
		props: CopyProperties(properties),
	}
}

// ServiceID returns the service identifier.
func (r *ServiceRef) ServiceID() string {
	return r.id
}

// Property returns the current value for name, or nil when unset.
func (r *ServiceRef) Property(name string) any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.props[name]
}

// Properties returns a copy of the current property set.
func (r *ServiceRef) Properties() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return CopyProperties(r.props)
}

// Update merges changes into the properties and returns the previous property
// set, ready to be carried on a MODIFIED event.
func (r *ServiceRef) Update(changes map[string]any) map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	previous := CopyProperties(r.props)
	for k, v := range changes {
		r.props[k] = v
	}
	return previous
}
