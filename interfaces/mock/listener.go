package mock

import (
	"github.com/elrhedda/ipopo/domain"
)

// EndpointListenerMock implements interfaces.EndpointListener.
type EndpointListenerMock struct {
	EndpointsAddedFunc  func(endpoints []*domain.ExportEndpoint)
	EndpointUpdatedFunc func(endpoint *domain.ExportEndpoint, oldProperties map[string]any)
	EndpointRemovedFunc func(endpoint *domain.ExportEndpoint, oldProperties map[string]any)
}

func (m *EndpointListenerMock) EndpointsAdded(endpoints []*domain.ExportEndpoint) {
	if m.EndpointsAddedFunc == nil {
		return
	}
	m.EndpointsAddedFunc(endpoints)
}

func (m *EndpointListenerMock) EndpointUpdated(endpoint *domain.ExportEndpoint, oldProperties map[string]any) {
	if m.EndpointUpdatedFunc == nil {
		return
	}
	m.EndpointUpdatedFunc(endpoint, oldProperties)
}

func (m *EndpointListenerMock) EndpointRemoved(endpoint *domain.ExportEndpoint, oldProperties map[string]any) {
	if m.EndpointRemovedFunc == nil {
		return
	}
	m.EndpointRemovedFunc(endpoint, oldProperties)
}
