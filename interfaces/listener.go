package interfaces

import "github.com/elrhedda/ipopo/domain"

// EndpointListener observes export endpoint lifecycle changes. Listeners are
// hot-pluggable and are invoked synchronously outside the dispatcher's index
// lock; they receive detached endpoint copies and must not block.
type EndpointListener interface {
	// EndpointsAdded delivers every endpoint created in one export pass, and
	// the full current snapshot when the listener is first registered.
	EndpointsAdded(endpoints []*domain.ExportEndpoint)

	// EndpointUpdated signals an in-place property change. oldProperties is
	// the property set before the change.
	EndpointUpdated(endpoint *domain.ExportEndpoint, oldProperties map[string]any)

	// EndpointRemoved signals that an endpoint is gone. oldProperties is set
	// only when the removal was forced by a failed update.
	EndpointRemoved(endpoint *domain.ExportEndpoint, oldProperties map[string]any)
}
