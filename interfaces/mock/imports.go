package mock

import (
	"github.com/elrhedda/ipopo/domain"
)

// ImportsRegistryMock implements interfaces.ImportsRegistry.
type ImportsRegistryMock struct {
	AddFunc           func(endpoint *domain.ImportEndpoint) error
	RemoveFunc        func(uid string) error
	GetFunc           func(uid string) (*domain.ImportEndpoint, error)
	ListFunc          func() ([]*domain.ImportEndpoint, error)
	LostFrameworkFunc func(frameworkUID string) ([]*domain.ImportEndpoint, error)
}

func (m *ImportsRegistryMock) Add(endpoint *domain.ImportEndpoint) error {
	if m.AddFunc == nil {
		return nil
	}
	return m.AddFunc(endpoint)
}

func (m *ImportsRegistryMock) Remove(uid string) error {
	if m.RemoveFunc == nil {
		return nil
	}
	return m.RemoveFunc(uid)
}

func (m *ImportsRegistryMock) Get(uid string) (*domain.ImportEndpoint, error) {
	if m.GetFunc == nil {
		return nil, nil
	}
	return m.GetFunc(uid)
}

func (m *ImportsRegistryMock) List() ([]*domain.ImportEndpoint, error) {
	if m.ListFunc == nil {
		return nil, nil
	}
	return m.ListFunc()
}

func (m *ImportsRegistryMock) LostFramework(frameworkUID string) ([]*domain.ImportEndpoint, error) {
	if m.LostFrameworkFunc == nil {
		return nil, nil
	}
	return m.LostFrameworkFunc(frameworkUID)
}
