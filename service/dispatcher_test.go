package service

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elrhedda/ipopo/domain"
	"github.com/elrhedda/ipopo/interfaces/mock"
)

// newStubExporter builds an exporter that handles one configuration kind and
// creates an endpoint for every exported service.
func newStubExporter(kind string) *mock.ExporterMock {
	return &mock.ExporterMock{
		HandlesFunc: func(configurations []string) bool {
			for _, configuration := range configurations {
				if configuration == kind {
					return true
				}
			}
			return false
		},
		ExportServiceFunc: func(ref domain.ServiceReference, name string, frameworkUID string) (*domain.ExportEndpoint, error) {
			return domain.NewExportEndpoint(name, frameworkUID,
				[]string{kind}, []string{"sample.spec"}, ref, nil, ref.Properties()), nil
		},
	}
}

func TestDispatcherExportLifecycle(t *testing.T) {
	dispatcher := NewDispatcher(log.NewNopLogger(), "framework-a")

	var unexported []string
	exporter := newStubExporter("jsonrpc")
	exporter.UnexportServiceFunc = func(endpoint *domain.ExportEndpoint) {
		unexported = append(unexported, endpoint.UID)
	}
	dispatcher.AddExporter(exporter)

	var added [][]*domain.ExportEndpoint
	var updated []*domain.ExportEndpoint
	var updatedOld []map[string]any
	var removed []*domain.ExportEndpoint
	dispatcher.AddListener(&mock.EndpointListenerMock{
		EndpointsAddedFunc: func(endpoints []*domain.ExportEndpoint) {
			added = append(added, endpoints)
		},
		EndpointUpdatedFunc: func(endpoint *domain.ExportEndpoint, old map[string]any) {
			updated = append(updated, endpoint)
			updatedOld = append(updatedOld, old)
		},
		EndpointRemovedFunc: func(endpoint *domain.ExportEndpoint, old map[string]any) {
			removed = append(removed, endpoint)
		},
	})

	ref := domain.NewServiceRef("42", map[string]any{
		domain.PropExportedConfigs: "jsonrpc",
		domain.PropEndpointName:    "echo",
	})
	dispatcher.ServiceChanged(domain.ServiceEvent{Kind: domain.ServiceRegistered, Ref: ref})

	require.Len(t, added, 1)
	require.Len(t, added[0], 1)
	endpoint := added[0][0]
	assert.Equal(t, "echo", endpoint.Name)
	assert.Equal(t, "framework-a", endpoint.FrameworkUID)
	assert.True(t, endpoint.HasConfiguration("jsonrpc"))

	got, err := dispatcher.GetEndpoint(endpoint.UID)
	require.NoError(t, err)
	assert.Equal(t, "echo", got.Name)

	// A modification updates the endpoint in place.
	old := ref.Update(map[string]any{"weight": 10})
	dispatcher.ServiceChanged(domain.ServiceEvent{
		Kind: domain.ServiceModified, Ref: ref, PreviousProperties: old,
	})
	require.Len(t, updated, 1)
	assert.Equal(t, endpoint.UID, updated[0].UID)
	assert.Equal(t, old, updatedOld[0])
	assert.Empty(t, removed)

	// Unregistration destroys the endpoint and its record.
	dispatcher.ServiceChanged(domain.ServiceEvent{Kind: domain.ServiceUnregistering, Ref: ref})
	require.Len(t, removed, 1)
	assert.Equal(t, endpoint.UID, removed[0].UID)
	assert.Equal(t, []string{endpoint.UID}, unexported)
	assert.Empty(t, dispatcher.GetEndpoints("", ""))
	assert.False(t, dispatcher.index.HasRecord("42"))

	// A second unregistration finds nothing to do.
	dispatcher.ServiceChanged(domain.ServiceEvent{Kind: domain.ServiceUnregistering, Ref: ref})
	assert.Len(t, removed, 1)
	assert.Len(t, unexported, 1)
}

func TestDispatcherExporterFiltering(t *testing.T) {
	dispatcher := NewDispatcher(log.NewNopLogger(), "framework-a")

	jsonCalls, xmlCalls := 0, 0
	jsonExporter := newStubExporter("jsonrpc")
	jsonExport := jsonExporter.ExportServiceFunc
	jsonExporter.ExportServiceFunc = func(ref domain.ServiceReference, name string, frameworkUID string) (*domain.ExportEndpoint, error) {
		jsonCalls++
		return jsonExport(ref, name, frameworkUID)
	}
	xmlExporter := newStubExporter("xmlrpc")
	xmlExport := xmlExporter.ExportServiceFunc
	xmlExporter.ExportServiceFunc = func(ref domain.ServiceReference, name string, frameworkUID string) (*domain.ExportEndpoint, error) {
		xmlCalls++
		return xmlExport(ref, name, frameworkUID)
	}
	dispatcher.AddExporter(jsonExporter)
	dispatcher.AddExporter(xmlExporter)

	// A single configuration reaches only the exporter handling it.
	dispatcher.ExportService(domain.NewServiceRef("1", map[string]any{
		domain.PropExportedConfigs: "jsonrpc",
	}))
	assert.Equal(t, 1, jsonCalls)
	assert.Equal(t, 0, xmlCalls)

	// The wildcard and an absent property reach every exporter.
	dispatcher.ExportService(domain.NewServiceRef("2", map[string]any{
		domain.PropExportedConfigs: "*",
	}))
	dispatcher.ExportService(domain.NewServiceRef("3", nil))
	assert.Equal(t, 3, jsonCalls)
	assert.Equal(t, 2, xmlCalls)

	// A configuration list reaches every exporter handling one element.
	dispatcher.ExportService(domain.NewServiceRef("4", map[string]any{
		domain.PropExportedConfigs: []string{"xmlrpc", "soap"},
	}))
	assert.Equal(t, 3, jsonCalls)
	assert.Equal(t, 3, xmlCalls)

	// A wildcard inside a list also reaches every exporter.
	dispatcher.ExportService(domain.NewServiceRef("5", map[string]any{
		domain.PropExportedConfigs: []any{"soap", "*"},
	}))
	assert.Equal(t, 4, jsonCalls)
	assert.Equal(t, 4, xmlCalls)

	assert.Len(t, dispatcher.GetEndpoints("jsonrpc", ""), 4)
	assert.Len(t, dispatcher.GetEndpoints("xmlrpc", ""), 4)

	// No matching exporter: no endpoint, but the service goes on record.
	dispatcher.ExportService(domain.NewServiceRef("6", map[string]any{
		domain.PropExportedConfigs: "mqtt",
	}))
	assert.Equal(t, 4, jsonCalls)
	assert.Equal(t, 4, xmlCalls)
	assert.True(t, dispatcher.index.HasRecord("6"))
	assert.Len(t, dispatcher.GetEndpoints("", ""), 8)
}

func TestDispatcherLateExporter(t *testing.T) {
	dispatcher := NewDispatcher(log.NewNopLogger(), "framework-a")

	var added [][]*domain.ExportEndpoint
	dispatcher.AddListener(&mock.EndpointListenerMock{
		EndpointsAddedFunc: func(endpoints []*domain.ExportEndpoint) {
			added = append(added, endpoints)
		},
	})

	refA := domain.NewServiceRef("1", map[string]any{domain.PropEndpointName: "alpha"})
	refB := domain.NewServiceRef("2", map[string]any{domain.PropEndpointName: "beta"})
	dispatcher.ExportService(refA)
	dispatcher.ExportService(refB)
	assert.Empty(t, dispatcher.GetEndpoints("", ""))
	assert.Empty(t, added)
	assert.True(t, dispatcher.index.HasRecord("1"))
	assert.True(t, dispatcher.index.HasRecord("2"))

	// The exporter registered later exports every service on record, one
	// broadcast per endpoint.
	dispatcher.AddExporter(newStubExporter("jsonrpc"))

	endpoints := dispatcher.GetEndpoints("", "")
	require.Len(t, endpoints, 2)
	assert.Equal(t, "alpha", endpoints[0].Name)
	assert.Equal(t, "beta", endpoints[1].Name)
	require.Len(t, added, 2)
	assert.Len(t, added[0], 1)
	assert.Len(t, added[1], 1)
}

func TestDispatcherExporterErrorsSkipped(t *testing.T) {
	dispatcher := NewDispatcher(log.NewNopLogger(), "framework-a")

	failing := &mock.ExporterMock{
		ExportServiceFunc: func(domain.ServiceReference, string, string) (*domain.ExportEndpoint, error) {
			return nil, errors.New("port already bound")
		},
	}
	declining := &mock.ExporterMock{}
	working := newStubExporter("jsonrpc")
	dispatcher.AddExporter(failing)
	dispatcher.AddExporter(declining)
	dispatcher.AddExporter(working)

	var added [][]*domain.ExportEndpoint
	dispatcher.AddListener(&mock.EndpointListenerMock{
		EndpointsAddedFunc: func(endpoints []*domain.ExportEndpoint) {
			added = append(added, endpoints)
		},
	})

	dispatcher.ExportService(domain.NewServiceRef("1", nil))

	endpoints := dispatcher.GetEndpoints("", "")
	require.Len(t, endpoints, 1)
	require.Len(t, added, 1)
	assert.Len(t, added[0], 1)
}

func TestDispatcherDuplicateUID(t *testing.T) {
	dispatcher := NewDispatcher(log.NewNopLogger(), "framework-a")

	fixedEndpoint := func(ref domain.ServiceReference, name string, frameworkUID string) *domain.ExportEndpoint {
		endpoint := domain.NewExportEndpoint(name, frameworkUID, nil, []string{"sample.spec"}, ref, nil, nil)
		endpoint.UID = "fixed-uid"
		return endpoint
	}
	first := &mock.ExporterMock{
		ExportServiceFunc: func(ref domain.ServiceReference, name string, frameworkUID string) (*domain.ExportEndpoint, error) {
			return fixedEndpoint(ref, name, frameworkUID), nil
		},
	}
	var orphaned []string
	second := &mock.ExporterMock{
		ExportServiceFunc: func(ref domain.ServiceReference, name string, frameworkUID string) (*domain.ExportEndpoint, error) {
			return fixedEndpoint(ref, name, frameworkUID), nil
		},
		UnexportServiceFunc: func(endpoint *domain.ExportEndpoint) {
			orphaned = append(orphaned, endpoint.UID)
		},
	}
	dispatcher.AddExporter(first)
	dispatcher.AddExporter(second)

	var added [][]*domain.ExportEndpoint
	dispatcher.AddListener(&mock.EndpointListenerMock{
		EndpointsAddedFunc: func(endpoints []*domain.ExportEndpoint) {
			added = append(added, endpoints)
		},
	})

	dispatcher.ExportService(domain.NewServiceRef("1", nil))

	// The first endpoint wins, the clashing one is torn down right away.
	assert.Len(t, dispatcher.GetEndpoints("", ""), 1)
	assert.Equal(t, []string{"fixed-uid"}, orphaned)
	require.Len(t, added, 1)
	assert.Len(t, added[0], 1)
}

func TestDispatcherUpdateRefreshesEndpoint(t *testing.T) {
	dispatcher := NewDispatcher(log.NewNopLogger(), "framework-a")

	var gotName string
	var gotOld map[string]any
	exporter := newStubExporter("jsonrpc")
	exporter.UpdateExportFunc = func(endpoint *domain.ExportEndpoint, newName string, oldProperties map[string]any) error {
		gotName = newName
		gotOld = oldProperties
		return nil
	}
	dispatcher.AddExporter(exporter)

	ref := domain.NewServiceRef("7", map[string]any{
		domain.PropExportedConfigs: "jsonrpc",
		domain.PropEndpointName:    "before",
	})
	dispatcher.ExportService(ref)
	uid := dispatcher.GetEndpoints("", "")[0].UID

	var updated []*domain.ExportEndpoint
	dispatcher.AddListener(&mock.EndpointListenerMock{
		EndpointUpdatedFunc: func(endpoint *domain.ExportEndpoint, old map[string]any) {
			updated = append(updated, endpoint)
		},
	})

	old := ref.Update(map[string]any{domain.PropEndpointName: "after"})
	dispatcher.UpdateService(ref, old)

	assert.Equal(t, "after", gotName)
	assert.Equal(t, old, gotOld)
	require.Len(t, updated, 1)
	assert.Equal(t, "after", updated[0].Name)
	assert.Equal(t, "after", updated[0].Properties[domain.PropEndpointName])

	stored, err := dispatcher.GetEndpoint(uid)
	require.NoError(t, err)
	assert.Equal(t, "after", stored.Name)
	assert.Equal(t, "after", stored.Properties[domain.PropEndpointName])
}

func TestDispatcherUpdateFailureRemovesEndpoint(t *testing.T) {
	dispatcher := NewDispatcher(log.NewNopLogger(), "framework-a")

	var torndown []string
	exporter := newStubExporter("jsonrpc")
	exporter.UpdateExportFunc = func(*domain.ExportEndpoint, string, map[string]any) error {
		return errors.New("endpoint name already in use")
	}
	exporter.UnexportServiceFunc = func(endpoint *domain.ExportEndpoint) {
		torndown = append(torndown, endpoint.UID)
	}
	dispatcher.AddExporter(exporter)

	ref := domain.NewServiceRef("7", map[string]any{domain.PropExportedConfigs: "jsonrpc"})
	dispatcher.ExportService(ref)
	uid := dispatcher.GetEndpoints("", "")[0].UID

	var removed []*domain.ExportEndpoint
	var removedOld []map[string]any
	dispatcher.AddListener(&mock.EndpointListenerMock{
		EndpointRemovedFunc: func(endpoint *domain.ExportEndpoint, old map[string]any) {
			removed = append(removed, endpoint)
			removedOld = append(removedOld, old)
		},
	})

	old := ref.Update(map[string]any{"weight": 1})
	dispatcher.UpdateService(ref, old)

	require.Len(t, removed, 1)
	assert.Equal(t, uid, removed[0].UID)
	assert.Equal(t, old, removedOld[0])
	assert.Equal(t, []string{uid}, torndown)
	assert.Empty(t, dispatcher.GetEndpoints("", ""))
	assert.True(t, dispatcher.index.HasRecord("7"))
	assert.Empty(t, dispatcher.index.RecordUIDs("7"))
}

func TestDispatcherUpdateConfigurationChange(t *testing.T) {
	dispatcher := NewDispatcher(log.NewNopLogger(), "framework-a")
	dispatcher.AddExporter(newStubExporter("jsonrpc"))
	dispatcher.AddExporter(newStubExporter("xmlrpc"))

	ref := domain.NewServiceRef("9", map[string]any{domain.PropExportedConfigs: "jsonrpc"})
	dispatcher.ExportService(ref)
	before := dispatcher.GetEndpoints("", "")
	require.Len(t, before, 1)
	require.True(t, before[0].HasConfiguration("jsonrpc"))

	var removed, added int
	dispatcher.AddListener(&mock.EndpointListenerMock{
		EndpointsAddedFunc:  func(endpoints []*domain.ExportEndpoint) { added += len(endpoints) },
		EndpointRemovedFunc: func(*domain.ExportEndpoint, map[string]any) { removed++ },
	})

	// Switching configurations re-exports the service from scratch.
	old := ref.Update(map[string]any{domain.PropExportedConfigs: "xmlrpc"})
	dispatcher.UpdateService(ref, old)

	after := dispatcher.GetEndpoints("", "")
	require.Len(t, after, 1)
	assert.True(t, after[0].HasConfiguration("xmlrpc"))
	assert.NotEqual(t, before[0].UID, after[0].UID)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, added)
}

func TestDispatcherUpdateRepairsRecord(t *testing.T) {
	dispatcher := NewDispatcher(log.NewNopLogger(), "framework-a")
	dispatcher.AddExporter(newStubExporter("jsonrpc"))

	ref := domain.NewServiceRef("3", map[string]any{domain.PropExportedConfigs: "jsonrpc"})
	dispatcher.ExportService(ref)
	uid := dispatcher.GetEndpoints("", "")[0].UID

	// Break the endpoint entry while keeping its UID on record.
	_, _, ok := dispatcher.index.removePair(uid)
	require.True(t, ok)
	require.Equal(t, []string{uid}, dispatcher.index.RecordUIDs("3"))

	updates := 0
	dispatcher.AddListener(&mock.EndpointListenerMock{
		EndpointUpdatedFunc: func(*domain.ExportEndpoint, map[string]any) { updates++ },
	})

	old := ref.Update(map[string]any{"weight": 2})
	dispatcher.UpdateService(ref, old)

	assert.Empty(t, dispatcher.index.RecordUIDs("3"))
	assert.Zero(t, updates)
}

func TestDispatcherRemoveExporter(t *testing.T) {
	dispatcher := NewDispatcher(log.NewNopLogger(), "framework-a")

	var torndown []string
	jsonExporter := newStubExporter("jsonrpc")
	jsonExporter.UnexportServiceFunc = func(endpoint *domain.ExportEndpoint) {
		torndown = append(torndown, endpoint.UID)
	}
	xmlExporter := newStubExporter("xmlrpc")
	dispatcher.AddExporter(jsonExporter)
	dispatcher.AddExporter(xmlExporter)

	ref := domain.NewServiceRef("5", map[string]any{
		domain.PropExportedConfigs: []string{"jsonrpc", "xmlrpc"},
	})
	dispatcher.ExportService(ref)
	require.Len(t, dispatcher.GetEndpoints("", ""), 2)

	var removed []*domain.ExportEndpoint
	dispatcher.AddListener(&mock.EndpointListenerMock{
		EndpointRemovedFunc: func(endpoint *domain.ExportEndpoint, _ map[string]any) {
			removed = append(removed, endpoint)
		},
	})

	dispatcher.RemoveExporter(jsonExporter)

	remaining := dispatcher.GetEndpoints("", "")
	require.Len(t, remaining, 1)
	assert.True(t, remaining[0].HasConfiguration("xmlrpc"))
	require.Len(t, removed, 1)
	assert.True(t, removed[0].HasConfiguration("jsonrpc"))
	assert.Equal(t, []string{removed[0].UID}, torndown)
	assert.Equal(t, []string{remaining[0].UID}, dispatcher.index.RecordUIDs("5"))

	// Removing it again finds nothing.
	dispatcher.RemoveExporter(jsonExporter)
	assert.Len(t, removed, 1)
}

func TestDispatcherLateListenerSnapshot(t *testing.T) {
	dispatcher := NewDispatcher(log.NewNopLogger(), "framework-a")
	dispatcher.AddExporter(newStubExporter("jsonrpc"))
	dispatcher.ExportService(domain.NewServiceRef("1", map[string]any{domain.PropEndpointName: "alpha"}))
	dispatcher.ExportService(domain.NewServiceRef("2", map[string]any{domain.PropEndpointName: "beta"}))

	var batches [][]*domain.ExportEndpoint
	listener := &mock.EndpointListenerMock{
		EndpointsAddedFunc: func(endpoints []*domain.ExportEndpoint) {
			batches = append(batches, endpoints)
		},
	}
	dispatcher.AddListener(listener)

	require.Len(t, batches, 1)
	require.Len(t, batches[0], 2)
	assert.Equal(t, "alpha", batches[0][0].Name)
	assert.Equal(t, "beta", batches[0][1].Name)

	// Registering the same listener again does not replay the snapshot.
	dispatcher.AddListener(listener)
	assert.Len(t, batches, 1)

	// An empty dispatcher seeds nothing.
	empty := NewDispatcher(log.NewNopLogger(), "framework-b")
	calls := 0
	empty.AddListener(&mock.EndpointListenerMock{
		EndpointsAddedFunc: func([]*domain.ExportEndpoint) { calls++ },
	})
	assert.Zero(t, calls)
}

func TestDispatcherClose(t *testing.T) {
	dispatcher := NewDispatcher(log.NewNopLogger(), "framework-a")

	exports := 0
	exporter := newStubExporter("jsonrpc")
	export := exporter.ExportServiceFunc
	exporter.ExportServiceFunc = func(ref domain.ServiceReference, name string, frameworkUID string) (*domain.ExportEndpoint, error) {
		exports++
		return export(ref, name, frameworkUID)
	}
	dispatcher.AddExporter(exporter)

	ref := domain.NewServiceRef("1", map[string]any{domain.PropExportedConfigs: "jsonrpc"})
	dispatcher.ExportService(ref)
	require.Equal(t, 1, exports)

	dispatcher.Close()

	dispatcher.ExportService(domain.NewServiceRef("2", map[string]any{domain.PropExportedConfigs: "jsonrpc"}))
	assert.Equal(t, 1, exports)
	dispatcher.UpdateService(ref, map[string]any{domain.PropExportedConfigs: "jsonrpc"})

	// Unexports still run, so shutdown cleans up endpoints.
	dispatcher.UnexportService(ref)
	assert.Empty(t, dispatcher.GetEndpoints("", ""))
}

func TestDispatcherRecords(t *testing.T) {
	dispatcher := NewDispatcher(log.NewNopLogger(), "framework-a")
	assert.Empty(t, dispatcher.Records())

	dispatcher.AddExporter(newStubExporter("jsonrpc"))
	dispatcher.ExportService(domain.NewServiceRef("1", map[string]any{
		domain.PropExportedConfigs: "jsonrpc",
		domain.PropEndpointName:    "echo",
	}))

	records := dispatcher.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "framework-a", records[0].Sender)
	assert.Equal(t, "echo", records[0].Name)
	assert.NoError(t, records[0].Validate())
}

func TestDispatcherConcurrentExports(t *testing.T) {
	dispatcher := NewDispatcher(log.NewNopLogger(), "framework-a")
	dispatcher.AddExporter(newStubExporter("jsonrpc"))

	var added int64
	dispatcher.AddListener(&mock.EndpointListenerMock{
		EndpointsAddedFunc: func(endpoints []*domain.ExportEndpoint) {
			atomic.AddInt64(&added, int64(len(endpoints)))
		},
	})

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dispatcher.ExportService(domain.NewServiceRef(
				fmt.Sprintf("service-%02d", i),
				map[string]any{domain.PropExportedConfigs: "jsonrpc"}))
		}(i)
	}
	wg.Wait()

	assert.Len(t, dispatcher.GetEndpoints("", ""), 25)
	assert.EqualValues(t, 25, atomic.LoadInt64(&added))
}
