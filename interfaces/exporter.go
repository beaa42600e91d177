// Package interfaces declares the contracts between the dispatcher core and
// its collaborators: exporters, endpoint listeners, the imports registry and
// the generic cache. Implementations live in service/ and adapters/.
package interfaces

import "github.com/elrhedda/ipopo/domain"

// Exporter turns a local service into a network-reachable endpoint for one or
// more transport kinds. Concrete exporters (JSON-RPC, XML-RPC, ...) are
// provided by other components and registered on the dispatcher at runtime.
type Exporter interface {
	// Handles reports whether this exporter covers at least one of the
	// requested export configurations.
	Handles(configurations []string) bool

	// ExportService creates an endpoint for the service.
	// Returns:
	// 1) (endpoint, nil) when the export succeeded;
	// 2) (nil, nil) when the exporter declines the service;
	// 3) (nil, err) when endpoint creation failed (the dispatcher logs and
	//    skips this exporter, siblings still proceed).
	ExportService(ref domain.ServiceReference, name, frameworkUID string) (*domain.ExportEndpoint, error)

	// UpdateExport applies a service property change to an existing endpoint.
	// A non-nil error means the endpoint cannot be kept (typically a naming
	// conflict); the dispatcher then unexports it.
	UpdateExport(endpoint *domain.ExportEndpoint, newName string, oldProperties map[string]any) error

	// UnexportService releases everything the exporter allocated for the
	// endpoint. Must tolerate endpoints it no longer knows.
	UnexportService(endpoint *domain.ExportEndpoint)
}
