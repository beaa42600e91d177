package mock

import "github.com/elrhedda/ipopo/domain"

// ExportCatalogMock implements interfaces.ExportCatalog.
type ExportCatalogMock struct {
	FrameworkUIDFunc func() string
	GetEndpointFunc  func(uid string) (*domain.ExportEndpoint, error)
	RecordsFunc      func() []domain.EndpointRecord
}

func (m *ExportCatalogMock) FrameworkUID() string {
	if m.FrameworkUIDFunc == nil {
		return ""
	}
	return m.FrameworkUIDFunc()
}

func (m *ExportCatalogMock) GetEndpoint(uid string) (*domain.ExportEndpoint, error) {
	if m.GetEndpointFunc == nil {
		return nil, nil
	}
	return m.GetEndpointFunc(uid)
}

func (m *ExportCatalogMock) Records() []domain.EndpointRecord {
	if m.RecordsFunc == nil {
		return nil
	}
	return m.RecordsFunc()
}
