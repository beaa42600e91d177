package service

import (
	"sort"
	"sync"

	"github.com/elrhedda/ipopo/domain"
	"github.com/elrhedda/ipopo/interfaces"
)

// serviceRecord tracks one exported service: the reference it was exported
// from and the UIDs of the endpoints created for it. A record may exist with
// no UIDs when no exporter produced an endpoint yet.
type serviceRecord struct {
	ref  domain.ServiceReference
	uids map[string]struct{}
}

// EndpointIndex stores export endpoints, the exporter that created each of
// them and the per-service endpoint records. All three maps move together
// under one mutex, so a concurrent reader never observes an endpoint without
// its exporter or a record pointing at a missing endpoint.
type EndpointIndex struct {
	mu        sync.Mutex
	endpoints map[string]*domain.ExportEndpoint
	exporters map[string]interfaces.Exporter
	records   map[string]*serviceRecord
}

// NewEndpointIndex creates an empty index.
func NewEndpointIndex() *EndpointIndex {
	return &EndpointIndex{
		endpoints: map[string]*domain.ExportEndpoint{},
		exporters: map[string]interfaces.Exporter{},
		records:   map[string]*serviceRecord{},
	}
}

// Put indexes an endpoint together with the exporter that created it and
// adds its UID to the record of the service it was exported from. It returns
// a duplicate_uid error when the UID is already indexed, leaving the index
// untouched.
func (x *EndpointIndex) Put(endpoint *domain.ExportEndpoint, exporter interfaces.Exporter) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, ok := x.endpoints[endpoint.UID]; ok {
		return NewDuplicateUIDError(endpoint.UID)
	}
	x.endpoints[endpoint.UID] = endpoint
	x.exporters[endpoint.UID] = exporter
	record := x.ensureRecordLocked(endpoint.Reference)
	record.uids[endpoint.UID] = struct{}{}
	return nil
}

// Get returns a detached copy of the endpoint with the given UID, or an
// unknown_endpoint error.
func (x *EndpointIndex) Get(uid string) (*domain.ExportEndpoint, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	endpoint, ok := x.endpoints[uid]
	if !ok {
		return nil, NewUnknownEndpointError(uid)
	}
	return endpoint.Copy(), nil
}

// Endpoints returns detached copies of the indexed endpoints, sorted by name
// then UID. A non-empty kind keeps only endpoints exported with that
// configuration and a non-empty name keeps only endpoints with that exact
// name.
func (x *EndpointIndex) Endpoints(kind string, name string) []*domain.ExportEndpoint {
	x.mu.Lock()
	defer x.mu.Unlock()

	result := make([]*domain.ExportEndpoint, 0, len(x.endpoints))
	for _, endpoint := range x.endpoints {
		if kind != "" && !endpoint.HasConfiguration(kind) {
			continue
		}
		if name != "" && endpoint.Name != name {
			continue
		}
		result = append(result, endpoint.Copy())
	}
	sortEndpoints(result)
	return result
}

// Remove deletes the endpoint with the given UID from every map, including
// its service record, and returns the stored endpoint and its exporter. The
// caller owns the returned endpoint after removal.
func (x *EndpointIndex) Remove(uid string) (*domain.ExportEndpoint, interfaces.Exporter, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	endpoint, ok := x.endpoints[uid]
	if !ok {
		return nil, nil, NewUnknownEndpointError(uid)
	}
	exporter := x.exporters[uid]
	delete(x.endpoints, uid)
	delete(x.exporters, uid)
	if record, ok := x.records[endpoint.Reference.ServiceID()]; ok {
		delete(record.uids, uid)
	}
	return endpoint, exporter, nil
}

// EnsureRecord creates an empty record for the service if none exists yet.
// The record marks the service as exported even before any exporter produced
// an endpoint, so exporters bound later pick it up.
func (x *EndpointIndex) EnsureRecord(ref domain.ServiceReference) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.ensureRecordLocked(ref)
}

// HasRecord reports whether the service is on record.
func (x *EndpointIndex) HasRecord(serviceID string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	_, ok := x.records[serviceID]
	return ok
}

// RecordUIDs returns the endpoint UIDs recorded for the service, sorted.
func (x *EndpointIndex) RecordUIDs(serviceID string) []string {
	x.mu.Lock()
	defer x.mu.Unlock()

	record, ok := x.records[serviceID]
	if !ok {
		return nil
	}
	return sortedUIDsLocked(record)
}

// DiscardFromRecord drops one UID from the service record, keeping the
// record itself in place. Unknown services and UIDs are ignored.
func (x *EndpointIndex) DiscardFromRecord(serviceID string, uid string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if record, ok := x.records[serviceID]; ok {
		delete(record.uids, uid)
	}
}

func (x *EndpointIndex) ensureRecordLocked(ref domain.ServiceReference) *serviceRecord {
	record, ok := x.records[ref.ServiceID()]
	if !ok {
		record = &serviceRecord{ref: ref, uids: map[string]struct{}{}}
		x.records[ref.ServiceID()] = record
	}
	return record
}

// lookup returns the stored endpoint and its exporter without copying.
func (x *EndpointIndex) lookup(uid string) (*domain.ExportEndpoint, interfaces.Exporter, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()

	endpoint, ok := x.endpoints[uid]
	if !ok {
		return nil, nil, false
	}
	return endpoint, x.exporters[uid], true
}

// refresh sets the stored endpoint's name and properties after a service
// update and returns a detached copy of the refreshed endpoint.
func (x *EndpointIndex) refresh(uid string, name string, properties map[string]any) (*domain.ExportEndpoint, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()

	endpoint, ok := x.endpoints[uid]
	if !ok {
		return nil, false
	}
	endpoint.Name = name
	endpoint.Properties = domain.CopyProperties(properties)
	return endpoint.Copy(), true
}

// popRecord removes the whole record of a service and returns its UIDs,
// sorted. It returns nil when the service is not on record.
func (x *EndpointIndex) popRecord(serviceID string) []string {
	x.mu.Lock()
	defer x.mu.Unlock()

	record, ok := x.records[serviceID]
	if !ok {
		return nil
	}
	delete(x.records, serviceID)
	return sortedUIDsLocked(record)
}

// removePair deletes the endpoint and exporter entries of a UID whose record
// was already popped.
func (x *EndpointIndex) removePair(uid string) (*domain.ExportEndpoint, interfaces.Exporter, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()

	endpoint, ok := x.endpoints[uid]
	if !ok {
		return nil, nil, false
	}
	exporter := x.exporters[uid]
	delete(x.endpoints, uid)
	delete(x.exporters, uid)
	return endpoint, exporter, true
}

// recordedRefs returns the references of every service on record, sorted by
// service ID.
func (x *EndpointIndex) recordedRefs() []domain.ServiceReference {
	x.mu.Lock()
	defer x.mu.Unlock()

	ids := make([]string, 0, len(x.records))
	for id := range x.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	refs := make([]domain.ServiceReference, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, x.records[id].ref)
	}
	return refs
}

// removeByExporter deletes every endpoint created by the given exporter from
// all maps and returns the stored endpoints, sorted by name then UID.
func (x *EndpointIndex) removeByExporter(exporter interfaces.Exporter) []*domain.ExportEndpoint {
	x.mu.Lock()
	defer x.mu.Unlock()

	var removed []*domain.ExportEndpoint
	for uid, owner := range x.exporters {
		if owner != exporter {
			continue
		}
		endpoint := x.endpoints[uid]
		delete(x.endpoints, uid)
		delete(x.exporters, uid)
		if record, ok := x.records[endpoint.Reference.ServiceID()]; ok {
			delete(record.uids, uid)
		}
		removed = append(removed, endpoint)
	}
	sortEndpoints(removed)
	return removed
}

// snapshot returns detached copies of every indexed endpoint, sorted by name
// then UID.
func (x *EndpointIndex) snapshot() []*domain.ExportEndpoint {
	x.mu.Lock()
	defer x.mu.Unlock()

	result := make([]*domain.ExportEndpoint, 0, len(x.endpoints))
	for _, endpoint := range x.endpoints {
		result = append(result, endpoint.Copy())
	}
	sortEndpoints(result)
	return result
}

func sortedUIDsLocked(record *serviceRecord) []string {
	uids := make([]string, 0, len(record.uids))
	for uid := range record.uids {
		uids = append(uids, uid)
	}
	sort.Strings(uids)
	return uids
}

func sortEndpoints(endpoints []*domain.ExportEndpoint) {
	sort.Slice(endpoints, func(i, j int) bool {
		if endpoints[i].Name != endpoints[j].Name {
			return endpoints[i].Name < endpoints[j].Name
		}
		return endpoints[i].UID < endpoints[j].UID
	})
}
