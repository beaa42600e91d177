package service

import (
	"strings"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/elrhedda/ipopo/domain"
	"github.com/elrhedda/ipopo/helpers"
	"github.com/elrhedda/ipopo/interfaces"
)

// Dispatcher coordinates remote service exports. It reacts to service
// lifecycle events by creating, updating and destroying endpoints through
// the registered exporters, keeps the endpoint index consistent and tells
// endpoint listeners about every change.
//
// Listener callbacks run synchronously on the goroutine that triggered the
// change and must not call back into the dispatcher's mutating operations.
type Dispatcher struct {
	logger       log.Logger
	frameworkUID string
	index        *EndpointIndex
	listeners    *ListenerHub

	mu        sync.RWMutex
	exporters []interfaces.Exporter
	closed    bool

	// notifyMu serializes index commits with the broadcasts describing them
	// and with listener registration, so a listener that registers in the
	// middle of a change sees the change either in its initial snapshot or
	// as an event, never in both and never in neither.
	notifyMu sync.Mutex
}

// exportPair is an endpoint waiting to be committed together with the
// exporter that created it.
type exportPair struct {
	endpoint *domain.ExportEndpoint
	exporter interfaces.Exporter
}

// NewDispatcher creates a dispatcher publishing endpoints under the given
// framework UID.
func NewDispatcher(logger log.Logger, frameworkUID string) *Dispatcher {
	logger = helpers.NilPanic(logger, "service.dispatcher.go: logger is required")

	return &Dispatcher{
		logger:       log.With(logger, "component", "dispatcher"),
		frameworkUID: helpers.StrPanic(frameworkUID, "service.dispatcher.go: frameworkUID is required"),
		index:        NewEndpointIndex(),
		listeners:    NewListenerHub(logger),
	}
}

// FrameworkUID returns the UID this dispatcher publishes endpoints under.
func (d *Dispatcher) FrameworkUID() string {
	return d.frameworkUID
}

// ServiceChanged routes a service lifecycle event. A registration exports
// the service. A modification updates the service when it is already on
// record and exports it otherwise. An unregistration, or a modification that
// took the service out of scope, unexports a service on record. Any other
// combination is a no-op.
func (d *Dispatcher) ServiceChanged(event domain.ServiceEvent) {
	switch event.Kind {
	case domain.ServiceRegistered:
		d.ExportService(event.Ref)
	case domain.ServiceModified:
		if d.index.HasRecord(event.Ref.ServiceID()) {
			d.UpdateService(event.Ref, event.PreviousProperties)
		} else {
			d.ExportService(event.Ref)
		}
	case domain.ServiceUnregistering, domain.ServiceModifiedEndmatch:
		if d.index.HasRecord(event.Ref.ServiceID()) {
			d.UnexportService(event.Ref)
		}
	}
}

// ExportService creates endpoints for a service through every exporter that
// matches its exported configurations and broadcasts the created endpoints
// as one batch. The service goes on record even when no endpoint could be
// created, so exporters registered later pick it up.
func (d *Dispatcher) ExportService(ref domain.ServiceReference) {
	if d.isClosed() {
		return
	}
	d.index.EnsureRecord(ref)

	exporters := d.snapshotExporters()
	if len(exporters) == 0 {
		level.Warn(d.logger).Log("msg", "no exporter registered yet", "service_id", ref.ServiceID())
		return
	}

	configurations := exportConfigurations(ref)
	candidates := make([]interfaces.Exporter, 0, len(exporters))
	for _, exporter := range exporters {
		if exporterMatches(exporter, configurations) {
			candidates = append(candidates, exporter)
		}
	}
	if len(candidates) == 0 {
		level.Warn(d.logger).Log("msg", "no exporter matches the service configurations",
			"service_id", ref.ServiceID(), "configurations", joinConfigurations(configurations))
		return
	}

	name := endpointName(ref)
	pairs := make([]*exportPair, 0, len(candidates))
	for _, exporter := range candidates {
		endpoint, err := exporter.ExportService(ref, name, d.frameworkUID)
		if err != nil {
			level.Error(d.logger).Log("msg", "error exporting service",
				"service_id", ref.ServiceID(), "err", err)
			continue
		}
		if endpoint == nil {
			continue
		}
		pairs = append(pairs, &exportPair{endpoint: endpoint, exporter: exporter})
	}
	if len(pairs) == 0 {
		level.Warn(d.logger).Log("msg", "no endpoint created for service", "service_id", ref.ServiceID())
		return
	}
	d.commitExports(pairs)
}

// UpdateService propagates a service property change to every endpoint of
// the service. A change of the exported configurations re-exports the
// service from scratch. An endpoint whose exporter rejects the new
// properties is destroyed and its removal broadcast with the pre-change
// properties.
func (d *Dispatcher) UpdateService(ref domain.ServiceReference, oldProperties map[string]any) {
	if d.isClosed() {
		return
	}
	serviceID := ref.ServiceID()
	if !d.index.HasRecord(serviceID) {
		return
	}

	if oldProperties != nil && !sameConfigurations(oldProperties, ref.Properties()) {
		level.Info(d.logger).Log("msg", "exported configurations changed, re-exporting service",
			"service_id", serviceID)
		d.UnexportService(ref)
		d.ExportService(ref)
		return
	}

	name := endpointName(ref)
	properties := ref.Properties()
	for _, uid := range d.index.RecordUIDs(serviceID) {
		endpoint, exporter, ok := d.index.lookup(uid)
		if !ok {
			level.Warn(d.logger).Log("msg", "recorded endpoint is gone, discarding its uid",
				"service_id", serviceID, "uid", uid)
			d.index.DiscardFromRecord(serviceID, uid)
			continue
		}
		if err := exporter.UpdateExport(endpoint, name, oldProperties); err != nil {
			level.Error(d.logger).Log("msg", "error updating endpoint, removing it",
				"service_id", serviceID, "uid", uid, "err", err)
			d.dropEndpoint(uid, oldProperties)
			continue
		}
		d.notifyMu.Lock()
		if updated, ok := d.index.refresh(uid, name, properties); ok {
			d.listeners.NotifyUpdated(updated, oldProperties)
		}
		d.notifyMu.Unlock()
	}
}

// UnexportService destroys every endpoint of a service and takes the service
// off record. Unexporting a service that is not on record is a no-op.
func (d *Dispatcher) UnexportService(ref domain.ServiceReference) {
	serviceID := ref.ServiceID()

	d.notifyMu.Lock()
	defer d.notifyMu.Unlock()
	for _, uid := range d.index.popRecord(serviceID) {
		endpoint, exporter, ok := d.index.removePair(uid)
		if !ok {
			level.Warn(d.logger).Log("msg", "recorded endpoint is gone",
				"service_id", serviceID, "uid", uid)
			continue
		}
		exporter.UnexportService(endpoint)
		d.listeners.NotifyRemoved(endpoint.Copy(), nil)
	}
}

// AddExporter registers an exporter and retroactively exports every service
// on record through it, broadcasting each new endpoint on its own. Adding
// the same exporter again is a no-op.
func (d *Dispatcher) AddExporter(exporter interfaces.Exporter) {
	if d.isClosed() {
		return
	}

	d.mu.Lock()
	for _, known := range d.exporters {
		if known == exporter {
			d.mu.Unlock()
			return
		}
	}
	d.exporters = append(d.exporters, exporter)
	d.mu.Unlock()

	for _, ref := range d.index.recordedRefs() {
		if !exporterMatches(exporter, exportConfigurations(ref)) {
			continue
		}
		endpoint, err := exporter.ExportService(ref, endpointName(ref), d.frameworkUID)
		if err != nil {
			level.Error(d.logger).Log("msg", "error exporting recorded service with new exporter",
				"service_id", ref.ServiceID(), "err", err)
			continue
		}
		if endpoint == nil {
			continue
		}
		d.commitExports([]*exportPair{{endpoint: endpoint, exporter: exporter}})
	}
}

// RemoveExporter unregisters an exporter, destroys every endpoint it created
// and broadcasts a removal for each of them. Removing an unknown exporter
// only runs the endpoint cleanup, which finds nothing.
func (d *Dispatcher) RemoveExporter(exporter interfaces.Exporter) {
	d.mu.Lock()
	for i, known := range d.exporters {
		if known == exporter {
			d.exporters = append(d.exporters[:i], d.exporters[i+1:]...)
			break
		}
	}
	d.mu.Unlock()

	d.notifyMu.Lock()
	defer d.notifyMu.Unlock()
	for _, endpoint := range d.index.removeByExporter(exporter) {
		exporter.UnexportService(endpoint)
		d.listeners.NotifyRemoved(endpoint.Copy(), nil)
	}
}

// AddListener registers an endpoint listener and immediately delivers the
// current endpoints to it as one batch, so the listener converges on the
// live state without a gap.
func (d *Dispatcher) AddListener(listener interfaces.EndpointListener) {
	if d.isClosed() {
		return
	}

	d.notifyMu.Lock()
	defer d.notifyMu.Unlock()
	if d.listeners.Add(listener) {
		d.listeners.SeedListener(listener, d.index.snapshot())
	}
}

// RemoveListener unregisters an endpoint listener.
func (d *Dispatcher) RemoveListener(listener interfaces.EndpointListener) {
	d.listeners.Remove(listener)
}

// GetEndpoint returns a detached copy of the exported endpoint with the
// given UID, or an unknown_endpoint error.
func (d *Dispatcher) GetEndpoint(uid string) (*domain.ExportEndpoint, error) {
	return d.index.Get(uid)
}

// GetEndpoints returns detached copies of the exported endpoints, optionally
// filtered by configuration kind and endpoint name.
func (d *Dispatcher) GetEndpoints(kind string, name string) []*domain.ExportEndpoint {
	return d.index.Endpoints(kind, name)
}

// Records returns the wire records of every exported endpoint, stamped with
// this framework's UID as sender.
func (d *Dispatcher) Records() []domain.EndpointRecord {
	endpoints := d.index.Endpoints("", "")
	records := make([]domain.EndpointRecord, 0, len(endpoints))
	for _, endpoint := range endpoints {
		records = append(records, domain.MakeRecord(&endpoint.Endpoint, d.frameworkUID))
	}
	return records
}

// Close marks the dispatcher as closed. Exports, updates and registrations
// become no-ops while unexports keep working, so services going down during
// shutdown still clean up their endpoints.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

// commitExports stores freshly created endpoints and broadcasts the batch of
// endpoints that made it into the index. An endpoint that clashes with an
// already indexed UID is destroyed right away.
func (d *Dispatcher) commitExports(pairs []*exportPair) {
	d.notifyMu.Lock()
	defer d.notifyMu.Unlock()

	committed := make([]*domain.ExportEndpoint, 0, len(pairs))
	for _, pair := range pairs {
		if err := d.index.Put(pair.endpoint, pair.exporter); err != nil {
			level.Error(d.logger).Log("msg", "error storing new endpoint",
				"uid", pair.endpoint.UID, "err", err)
			pair.exporter.UnexportService(pair.endpoint)
			continue
		}
		committed = append(committed, pair.endpoint.Copy())
	}
	d.listeners.NotifyAdded(committed)
}

// dropEndpoint removes one endpoint from the index, tears it down at its
// exporter and broadcasts the removal.
func (d *Dispatcher) dropEndpoint(uid string, oldProperties map[string]any) {
	d.notifyMu.Lock()
	defer d.notifyMu.Unlock()

	endpoint, exporter, err := d.index.Remove(uid)
	if err != nil {
		return
	}
	exporter.UnexportService(endpoint)
	d.listeners.NotifyRemoved(endpoint.Copy(), oldProperties)
}

func (d *Dispatcher) isClosed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.closed
}

func (d *Dispatcher) snapshotExporters() []interfaces.Exporter {
	d.mu.RLock()
	defer d.mu.RUnlock()
	exporters := make([]interfaces.Exporter, len(d.exporters))
	copy(exporters, d.exporters)
	return exporters
}

// endpointName returns the endpoint name configured on the service, or a
// name derived from the service ID.
func endpointName(ref domain.ServiceReference) string {
	if name, ok := ref.Property(domain.PropEndpointName).(string); ok && name != "" {
		return name
	}
	return "service_" + ref.ServiceID()
}

// exportConfigurations returns the configuration kinds a service asks to be
// exported with. Nil means every configuration is accepted: the property is
// absent, empty or carries the wildcard.
func exportConfigurations(ref domain.ServiceReference) []string {
	return normalizeConfigurations(ref.Property(domain.PropExportedConfigs))
}

func normalizeConfigurations(value any) []string {
	switch v := value.(type) {
	case string:
		if v == "" || v == "*" {
			return nil
		}
		return []string{v}
	case []string:
		configurations := make([]string, 0, len(v))
		for _, kind := range v {
			if kind == "*" {
				return nil
			}
			if kind != "" {
				configurations = append(configurations, kind)
			}
		}
		if len(configurations) == 0 {
			return nil
		}
		return configurations
	case []any:
		configurations := make([]string, 0, len(v))
		for _, item := range v {
			kind, ok := item.(string)
			if !ok {
				continue
			}
			if kind == "*" {
				return nil
			}
			if kind != "" {
				configurations = append(configurations, kind)
			}
		}
		if len(configurations) == 0 {
			return nil
		}
		return configurations
	default:
		return nil
	}
}

func exporterMatches(exporter interfaces.Exporter, configurations []string) bool {
	return len(configurations) == 0 || exporter.Handles(configurations)
}

func sameConfigurations(oldProperties map[string]any, newProperties map[string]any) bool {
	return equalStringSets(
		normalizeConfigurations(oldProperties[domain.PropExportedConfigs]),
		normalizeConfigurations(newProperties[domain.PropExportedConfigs]))
}

func equalStringSets(a []string, b []string) bool {
	setA := make(map[string]struct{}, len(a))
	for _, item := range a {
		setA[item] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, item := range b {
		setB[item] = struct{}{}
	}
	if len(setA) != len(setB) {
		return false
	}
	for item := range setA {
		if _, ok := setB[item]; !ok {
			return false
		}
	}
	return true
}

func joinConfigurations(configurations []string) string {
	if len(configurations) == 0 {
		return "*"
	}
	return strings.Join(configurations, ",")
}
