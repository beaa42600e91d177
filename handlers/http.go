// Package handlers contains the http surface of the discovery protocol: the
// registry servlet that peers query for the local endpoint catalog and push
// their own endpoints to.
package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/labstack/echo/v4"

	"github.com/elrhedda/ipopo/domain"
	"github.com/elrhedda/ipopo/helpers"
	"github.com/elrhedda/ipopo/interfaces"
	"github.com/elrhedda/ipopo/service"
)

// DefaultServletPath is where peers expect the registry servlet unless
// configured otherwise.
const DefaultServletPath = "/pelix-dispatcher"

// RegistryServlet answers catalog queries from peers and ingests the
// endpoint records they push. Responses carry application/json for endpoint
// payloads and text/plain for status bodies; both are part of the wire
// contract.
type RegistryServlet struct {
	logger  log.Logger
	catalog interfaces.ExportCatalog
	imports interfaces.ImportsRegistry
	path    string

	mu    sync.Mutex
	ports []int
}

// NewRegistryServlet creates the servlet.
//
// Parameters:
//   - logger: operational logging.
//   - catalog: read side of the local dispatcher, serves the GET surface.
//   - imports: registry that receives the endpoints peers push.
//   - path: base path to mount under; empty means DefaultServletPath.
func NewRegistryServlet(logger log.Logger, catalog interfaces.ExportCatalog, imports interfaces.ImportsRegistry, path string) *RegistryServlet {
	if path == "" {
		path = DefaultServletPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	path = strings.TrimSuffix(path, "/")

	return &RegistryServlet{
		logger: log.With(helpers.NilPanic(logger, "handlers.http.go: logger is required"),
			"component", "registry_servlet"),
		catalog: helpers.NilPanic(catalog, "handlers.http.go: catalog is required"),
		imports: helpers.NilPanic(imports, "handlers.http.go: imports registry is required"),
		path:    path,
	}
}

// Path returns the base path the servlet mounts under.
func (s *RegistryServlet) Path() string {
	return s.path
}

// RegisterRoutes mounts the servlet routes on the echo instance. Every other
// path under the base answers 404 "Unhandled path".
func (s *RegistryServlet) RegisterRoutes(e *echo.Echo) {
	e.GET(s.path+"/endpoints", s.listEndpoints)
	e.POST(s.path+"/endpoints", s.receiveEndpoints)
	e.GET(s.path+"/endpoint/:uid", s.getEndpoint)
	e.Any(s.path, s.unhandledPath)
	e.Any(s.path+"/*", s.unhandledPath)
}

// listEndpoints (GET {path}/endpoints) answers the full local catalog as a
// JSON array of wire records, [] when nothing is exported.
func (s *RegistryServlet) listEndpoints(c echo.Context) error {
	return c.JSON(http.StatusOK, s.catalog.Records())
}

// getEndpoint (GET {path}/endpoint/:uid) answers one wire record, or 404
// when the UID is not exported here.
func (s *RegistryServlet) getEndpoint(c echo.Context) error {
	uid := c.Param("uid")
	endpoint, err := s.catalog.GetEndpoint(uid)
	if err != nil {
		return c.String(http.StatusNotFound, "Unknown UID: "+uid)
	}
	return c.JSON(http.StatusOK, domain.MakeRecord(&endpoint.Endpoint, s.catalog.FrameworkUID()))
}

// receiveEndpoints (POST {path}/endpoints) ingests the records a peer
// pushes. An empty body is tolerated as a no-op; a body that does not parse
// as a record array answers 400. Storage failures are logged and do not fail
// the push.
func (s *RegistryServlet) receiveEndpoints(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.String(http.StatusBadRequest, "Unreadable request body: "+err.Error())
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return c.String(http.StatusOK, "OK")
	}

	var records []domain.EndpointRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return c.String(http.StatusBadRequest, "Invalid endpoint records: "+err.Error())
	}

	s.RegisterInbound(records, c.RealIP())
	return c.String(http.StatusOK, "OK")
}

func (s *RegistryServlet) unhandledPath(c echo.Context) error {
	return c.String(http.StatusNotFound, "Unhandled path")
}

// RegisterInbound stores the endpoints described by pushed records, tagging
// each with the address of the host that announced them. Records sent by
// this framework itself, invalid records and duplicates are skipped. It
// returns how many endpoints were added.
//
// Called from receiveEndpoints and directly by discovery providers that
// obtain records out of band.
func (s *RegistryServlet) RegisterInbound(records []domain.EndpointRecord, senderAddress string) int {
	added := 0
	for _, record := range records {
		if record.Sender == s.catalog.FrameworkUID() {
			continue
		}
		endpoint, err := record.ToImport(senderAddress)
		if err != nil {
			level.Warn(s.logger).Log("msg", "discarding invalid pushed record",
				"uid", record.UID, "sender", record.Sender, "err", err)
			continue
		}
		if err := s.imports.Add(endpoint); err != nil {
			if service.IsDuplicateUIDError(err) {
				level.Debug(s.logger).Log("msg", "pushed endpoint already known", "uid", record.UID)
			} else {
				level.Warn(s.logger).Log("msg", "error storing pushed endpoint",
					"uid", record.UID, "err", err)
			}
			continue
		}
		added++
	}
	return added
}

// BoundTo records that the servlet became reachable on a listening port.
func (s *RegistryServlet) BoundTo(port int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.ports {
		if p == port {
			return
		}
	}
	s.ports = append(s.ports, port)
	level.Info(s.logger).Log("msg", "servlet bound", "port", port, "path", s.path)
}

// UnboundFrom records that the servlet stopped serving on a port.
func (s *RegistryServlet) UnboundFrom(port int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.ports {
		if p == port {
			s.ports = append(s.ports[:i], s.ports[i+1:]...)
			level.Info(s.logger).Log("msg", "servlet unbound", "port", port)
			return
		}
	}
}

// Active reports whether the servlet is reachable on at least one port.
// RegisterInbound keeps working either way.
func (s *RegistryServlet) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ports) > 0
}

// Access returns the first bound port and the servlet path for discovery
// providers that advertise this framework. The port is 0 while the servlet
// is unbound.
func (s *RegistryServlet) Access() (int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ports) == 0 {
		return 0, ""
	}
	return s.ports[0], s.path
}
