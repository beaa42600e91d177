// Package mock provides hand-rolled stubs for the interfaces package, shaped
// like moq output: set the XxxFunc fields you care about, unset methods
// return zero values.
package mock

import (
	"github.com/elrhedda/ipopo/domain"
)

// ExporterMock implements interfaces.Exporter.
type ExporterMock struct {
	HandlesFunc         func(configurations []string) bool
	ExportServiceFunc   func(ref domain.ServiceReference, name, frameworkUID string) (*domain.ExportEndpoint, error)
	UpdateExportFunc    func(endpoint *domain.ExportEndpoint, newName string, oldProperties map[string]any) error
	UnexportServiceFunc func(endpoint *domain.ExportEndpoint)
}

func (m *ExporterMock) Handles(configurations []string) bool {
	if m.HandlesFunc == nil {
		return false
	}
	return m.HandlesFunc(configurations)
}

func (m *ExporterMock) ExportService(ref domain.ServiceReference, name, frameworkUID string) (*domain.ExportEndpoint, error) {
	if m.ExportServiceFunc == nil {
		return nil, nil
	}
	return m.ExportServiceFunc(ref, name, frameworkUID)
}

func (m *ExporterMock) UpdateExport(endpoint *domain.ExportEndpoint, newName string, oldProperties map[string]any) error {
	if m.UpdateExportFunc == nil {
		return nil
	}
	return m.UpdateExportFunc(endpoint, newName, oldProperties)
}

func (m *ExporterMock) UnexportService(endpoint *domain.ExportEndpoint) {
	if m.UnexportServiceFunc == nil {
		return
	}
	m.UnexportServiceFunc(endpoint)
}
