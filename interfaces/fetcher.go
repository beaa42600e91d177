package interfaces

import (
	"context"

	"github.com/elrhedda/ipopo/domain"
)

// EndpointFetcher pulls the discovery catalog of a remote peer. The returned
// endpoints carry the peer's host as their server address.
type EndpointFetcher interface {
	// FetchEndpoints lists every endpoint the peer currently exports.
	FetchEndpoints(ctx context.Context, host string, port int, path string) ([]*domain.ImportEndpoint, error)
}
