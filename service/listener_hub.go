package service

import (
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/elrhedda/ipopo/domain"
	"github.com/elrhedda/ipopo/helpers"
	"github.com/elrhedda/ipopo/interfaces"
)

// ListenerHub fans endpoint lifecycle events out to registered listeners.
// Every listener call is isolated: a panic in one listener is logged and
// delivery continues with the remaining listeners.
type ListenerHub struct {
	logger log.Logger

	mu        sync.RWMutex
	listeners []interfaces.EndpointListener
}

// NewListenerHub creates a hub with no listeners.
func NewListenerHub(logger log.Logger) *ListenerHub {
	return &ListenerHub{
		logger: log.With(helpers.NilPanic(logger, "service.listener_hub.go: logger is required"),
			"component", "listener_hub"),
	}
}

// Add registers a listener and reports whether it was new. Registering the
// same listener again is a no-op.
func (h *ListenerHub) Add(listener interfaces.EndpointListener) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, known := range h.listeners {
		if known == listener {
			return false
		}
	}
	h.listeners = append(h.listeners, listener)
	return true
}

// Remove drops a listener. Unknown listeners are ignored.
func (h *ListenerHub) Remove(listener interfaces.EndpointListener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, known := range h.listeners {
		if known == listener {
			h.listeners = append(h.listeners[:i], h.listeners[i+1:]...)
			return
		}
	}
}

// NotifyAdded broadcasts a batch of new endpoints. Empty batches are not
// delivered.
func (h *ListenerHub) NotifyAdded(endpoints []*domain.ExportEndpoint) {
	if len(endpoints) == 0 {
		return
	}
	for _, listener := range h.snapshot() {
		h.deliver(listener, func(l interfaces.EndpointListener) {
			l.EndpointsAdded(endpoints)
		})
	}
}

// NotifyUpdated broadcasts a property update of one endpoint, with the
// properties the endpoint had before the change.
func (h *ListenerHub) NotifyUpdated(endpoint *domain.ExportEndpoint, oldProperties map[string]any) {
	for _, listener := range h.snapshot() {
		h.deliver(listener, func(l interfaces.EndpointListener) {
			l.EndpointUpdated(endpoint, oldProperties)
		})
	}
}

// NotifyRemoved broadcasts the removal of one endpoint.
func (h *ListenerHub) NotifyRemoved(endpoint *domain.ExportEndpoint, oldProperties map[string]any) {
	for _, listener := range h.snapshot() {
		h.deliver(listener, func(l interfaces.EndpointListener) {
			l.EndpointRemoved(endpoint, oldProperties)
		})
	}
}

// SeedListener delivers the given endpoints to a single listener, typically
// right after it registered. Empty batches are not delivered.
func (h *ListenerHub) SeedListener(listener interfaces.EndpointListener, endpoints []*domain.ExportEndpoint) {
	if len(endpoints) == 0 {
		return
	}
	h.deliver(listener, func(l interfaces.EndpointListener) {
		l.EndpointsAdded(endpoints)
	})
}

func (h *ListenerHub) snapshot() []interfaces.EndpointListener {
	h.mu.RLock()
	defer h.mu.RUnlock()
	listeners := make([]interfaces.EndpointListener, len(h.listeners))
	copy(listeners, h.listeners)
	return listeners
}

func (h *ListenerHub) deliver(listener interfaces.EndpointListener, notify func(interfaces.EndpointListener)) {
	defer func() {
		if r := recover(); r != nil {
			level.Error(h.logger).Log("msg", "error notifying endpoint listener", "panic", r)
		}
	}()
	notify(listener)
}
