package mock

import (
	"context"

	"github.com/elrhedda/ipopo/domain"
)

// EndpointFetcherMock implements interfaces.EndpointFetcher.
type EndpointFetcherMock struct {
	FetchEndpointsFunc func(ctx context.Context, host string, port int, path string) ([]*domain.ImportEndpoint, error)
}

func (m *EndpointFetcherMock) FetchEndpoints(ctx context.Context, host string, port int, path string) ([]*domain.ImportEndpoint, error) {
	if m.FetchEndpointsFunc == nil {
		return nil, nil
	}
	return m.FetchEndpointsFunc(ctx, host, port, path)
}
