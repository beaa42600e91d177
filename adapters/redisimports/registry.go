package redisimports

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/go-redis/redis/v8"

	"github.com/elrhedda/ipopo/domain"
	"github.com/elrhedda/ipopo/helpers"
	"github.com/elrhedda/ipopo/interfaces"
	"github.com/elrhedda/ipopo/service"
)

const (
	keyPrefix = "import-endpoint"

	operationTimeout = 5 * time.Second
)

// Registry is an imports registry backed by a shared cache. Unlike the
// in-process registry it survives restarts and is visible to every process
// pointed at the same redis, at the price of a read-then-write race on Add
// when two writers race for the same UID.
type Registry struct {
	logger log.Logger
	cache  interfaces.Cache[*domain.ImportEndpoint]
	ttlMs  int
}

// NewRegistry creates an imports registry on top of the given cache.
//
// Parameters:
//   - logger: operational logging.
//   - cache: storage for the endpoints, keyed by endpoint UID.
//   - ttlMs: lifetime of a stored endpoint in milliseconds; non-positive
//     keeps endpoints until they are removed explicitly. With a TTL an
//     endpoint ages out unless a peer watcher re-adds it on a later poll.
func NewRegistry(logger log.Logger, cache interfaces.Cache[*domain.ImportEndpoint], ttlMs int) *Registry {
	return &Registry{
		logger: log.With(helpers.NilPanic(logger, "adapters.redisimports.registry.go: logger is required"),
			"component", "redis_imports_registry"),
		cache: helpers.NilPanic(cache, "adapters.redisimports.registry.go: cache is required"),
		ttlMs: ttlMs,
	}
}

// NewRedisRegistry creates an imports registry storing its endpoints in
// redis. See NewRegistry for the ttlMs semantics.
func NewRedisRegistry(logger log.Logger, client redis.UniversalClient, ttlMs int) *Registry {
	cache := NewCache(client, keyPrefix, marshalEndpoint, unmarshalEndpoint)
	return NewRegistry(logger, cache, ttlMs)
}

// Add stores a discovered endpoint. It returns a bad_parameter error for a
// nil endpoint or an empty UID and a duplicate_uid error when the UID is
// already known.
func (r *Registry) Add(endpoint *domain.ImportEndpoint) error {
	if endpoint == nil {
		return service.NewBadParameterError("nil endpoint", nil)
	}
	if endpoint.UID == "" {
		return service.NewBadParameterError("endpoint without uid", nil)
	}

	ctx, cancel := r.operationContext()
	defer cancel()

	_, err := r.cache.ReadValue(ctx, endpoint.UID)
	if err == nil {
		return service.NewDuplicateUIDError(endpoint.UID)
	}
	if !service.IsEntityNotFoundError(err) {
		return err
	}

	if err := r.cache.WriteValue(ctx, endpoint.UID, endpoint, r.ttlMs); err != nil {
		return err
	}
	level.Debug(r.logger).Log("msg", "imported endpoint added",
		"uid", endpoint.UID, "name", endpoint.Name, "framework_uid", endpoint.FrameworkUID)
	return nil
}

// Remove forgets a discovered endpoint, returning an unknown_endpoint error
// when the UID is not known.
func (r *Registry) Remove(uid string) error {
	ctx, cancel := r.operationContext()
	defer cancel()

	if _, err := r.cache.ReadValue(ctx, uid); err != nil {
		return mapNotFound(err, uid)
	}
	if err := r.cache.DeleteValue(ctx, uid); err != nil {
		return err
	}
	level.Debug(r.logger).Log("msg", "imported endpoint removed", "uid", uid)
	return nil
}

// Get returns the endpoint with the given UID, or an unknown_endpoint error.
func (r *Registry) Get(uid string) (*domain.ImportEndpoint, error) {
	ctx, cancel := r.operationContext()
	defer cancel()

	endpoint, err := r.cache.ReadValue(ctx, uid)
	if err != nil {
		return nil, mapNotFound(err, uid)
	}
	return endpoint, nil
}

// List returns all stored endpoints, ordered by name then UID.
func (r *Registry) List() ([]*domain.ImportEndpoint, error) {
	ctx, cancel := r.operationContext()
	defer cancel()

	endpoints, err := r.cache.ListAllValues(ctx)
	if err != nil {
		return nil, err
	}
	sortEndpoints(endpoints)
	return endpoints, nil
}

// LostFramework drops every endpoint announced by the given framework and
// returns the removed endpoints. An empty framework UID removes nothing.
func (r *Registry) LostFramework(frameworkUID string) ([]*domain.ImportEndpoint, error) {
	if frameworkUID == "" {
		return nil, nil
	}

	ctx, cancel := r.operationContext()
	defer cancel()

	endpoints, err := r.cache.ListAllValues(ctx)
	if err != nil {
		return nil, err
	}

	removed := make([]*domain.ImportEndpoint, 0)
	for _, endpoint := range endpoints {
		if endpoint.FrameworkUID != frameworkUID {
			continue
		}
		if err := r.cache.DeleteValue(ctx, endpoint.UID); err != nil {
			level.Warn(r.logger).Log("msg", "error removing endpoint of lost framework",
				"uid", endpoint.UID, "framework_uid", frameworkUID, "err", err)
			continue
		}
		removed = append(removed, endpoint)
	}
	sortEndpoints(removed)
	if len(removed) > 0 {
		level.Info(r.logger).Log("msg", "dropped endpoints of lost framework",
			"framework_uid", frameworkUID, "count", len(removed))
	}
	return removed, nil
}

func (r *Registry) operationContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), operationTimeout)
}

// mapNotFound turns the cache level entity_not_found into the registry level
// unknown_endpoint, leaving other errors untouched.
func mapNotFound(err error, uid string) error {
	if service.IsEntityNotFoundError(err) {
		return service.NewUnknownEndpointError(uid)
	}
	return err
}

func marshalEndpoint(endpoint *domain.ImportEndpoint) ([]byte, error) {
	return json.Marshal(endpoint)
}

func unmarshalEndpoint(data []byte) (*domain.ImportEndpoint, error) {
	endpoint := &domain.ImportEndpoint{}
	if err := json.Unmarshal(data, endpoint); err != nil {
		return nil, err
	}
	return endpoint, nil
}

func sortEndpoints(endpoints []*domain.ImportEndpoint) {
	sort.Slice(endpoints, func(i, j int) bool {
		if endpoints[i].Name != endpoints[j].Name {
			return endpoints[i].Name < endpoints[j].Name
		}
		return endpoints[i].UID < endpoints[j].UID
	})
}
