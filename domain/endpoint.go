// Package domain holds the core remote-services data model: endpoints, the
// wire record exchanged between frameworks, and service references/events.
package domain

import (
	"github.com/google/uuid"
)

// Property keys understood by the dispatcher and the discovery protocol.
// These names are part of the wire contract and must not change.
const (
	// PropExportedConfigs restricts which exporter kinds may export the
	// service ("*" or absent means all).
	PropExportedConfigs = "exported.configs"
	// PropExportedInterfaces lists the interfaces a service asks to export.
	PropExportedInterfaces = "exported.interfaces"
	// PropImported marks an endpoint that was received from a peer.
	PropImported = "imported"
	// PropImportedConfigs carries the original exported.configs value on the
	// import side.
	PropImportedConfigs = "imported.configs"
	// PropFrameworkUID identifies the framework that created the endpoint.
	PropFrameworkUID = "framework.uid"
	// PropEndpointName overrides the generated endpoint name.
	PropEndpointName = "endpoint.name"
)

// Endpoint is a remote-accessible handle to a service. UID is assigned at
// creation and never changes; Name may change on update.
type Endpoint struct {
	UID            string
	Name           string
	FrameworkUID   string
	Configurations []string
	Specifications []string
	Properties     map[string]any
}

// Copy returns a detached snapshot: fresh slices and a fresh top-level
// properties map. Nested property values are shared.
func (e *Endpoint) Copy() Endpoint {
	return Endpoint{
		UID:            e.UID,
		Name:           e.Name,
		FrameworkUID:   e.FrameworkUID,
		Configurations: copyStrings(e.Configurations),
		Specifications: copyStrings(e.Specifications),
		Properties:     CopyProperties(e.Properties),
	}
}

// HasConfiguration reports whether the endpoint is reachable over the given
// transport kind.
func (e *Endpoint) HasConfiguration(kind string) bool {
	for _, c := range e.Configurations {
		if c == kind {
			return true
		}
	}
	return false
}

// ExportEndpoint is an endpoint created locally by an exporter. It keeps a
// back-reference to the service it wraps and to the wrapped instance so the
// direct-invoke helper can reach it.
type ExportEndpoint struct {
	Endpoint

	Reference ServiceReference
	Instance  any
}

// NewExportEndpoint builds an export endpoint with a freshly assigned UID.
// Slices and the properties map are copied so later caller mutations do not
// leak into the endpoint.
func NewExportEndpoint(name, frameworkUID string, configurations, specifications []string, ref ServiceReference, instance any, properties map[string]any) *ExportEndpoint {
	return &ExportEndpoint{
		Endpoint: Endpoint{
			UID:            uuid.NewString(),
			Name:           name,
			FrameworkUID:   frameworkUID,
			Configurations: copyStrings(configurations),
			Specifications: copyStrings(specifications),
			Properties:     CopyProperties(properties),
		},
		Reference: ref,
		Instance:  instance,
	}
}

// Copy returns a detached snapshot sharing only Reference and Instance.
func (e *ExportEndpoint) Copy() *ExportEndpoint {
	return &ExportEndpoint{
		Endpoint:  e.Endpoint.Copy(),
		Reference: e.Reference,
		Instance:  e.Instance,
	}
}

// ImportEndpoint is an endpoint received from a peer framework. Server is the
// network host that announced it.
type ImportEndpoint struct {
	Endpoint

	Server string
}

// Copy returns a detached snapshot.
func (e *ImportEndpoint) Copy() *ImportEndpoint {
	return &ImportEndpoint{
		Endpoint: e.Endpoint.Copy(),
		Server:   e.Server,
	}
}

// CopyProperties returns a fresh top-level map with the same entries. A nil
// input yields an empty, usable map.
func CopyProperties(properties map[string]any) map[string]any {
	out := make(map[string]any, len(properties))
	for k, v := range properties {
		out[k] = v
	}
	return out
}

func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
