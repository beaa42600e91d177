package interfaces

import "github.com/elrhedda/ipopo/domain"

// ExportCatalog is the read side of the dispatcher served to peers: the
// locally exported endpoints and their wire records.
type ExportCatalog interface {
	// FrameworkUID returns the UID stamped as sender on outgoing records.
	FrameworkUID() string

	// GetEndpoint returns a copy of the exported endpoint with the given
	// UID, or an unknown_endpoint error.
	GetEndpoint(uid string) (*domain.ExportEndpoint, error)

	// Records returns the wire records of every exported endpoint.
	Records() []domain.EndpointRecord
}
