package interfaces

import "github.com/elrhedda/ipopo/domain"

// ImportsRegistry stores endpoints discovered on peer frameworks. The
// discovery servlet and the peer watcher feed it; importer components consume
// it to create local proxies.
type ImportsRegistry interface {
	// Add registers a discovered endpoint.
	// Returns:
	// 1) nil on success;
	// 2) duplicate_uid when an endpoint with the same UID is already known;
	// 3) internal_error when the backing store fails.
	Add(endpoint *domain.ImportEndpoint) error

	// Remove forgets the endpoint with the given UID.
	// Returns unknown_endpoint when the UID is not known.
	Remove(uid string) error

	// Get returns a copy of the endpoint with the given UID, or
	// unknown_endpoint.
	Get(uid string) (*domain.ImportEndpoint, error)

	// List returns a snapshot of all known imported endpoints.
	List() ([]*domain.ImportEndpoint, error)

	// LostFramework drops every endpoint announced by the given framework,
	// returning the removed endpoints. Used when a peer disappears.
	LostFramework(frameworkUID string) ([]*domain.ImportEndpoint, error)
}
