// Package peerhttp is the client side of the discovery protocol: it pushes
// endpoint announcements to remote servlets and pulls their catalogs.
package peerhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/elrhedda/ipopo/domain"
	"github.com/elrhedda/ipopo/helpers"
	"github.com/elrhedda/ipopo/service"
)

const requestTimeout = 5 * time.Second

// NewClient creates a Client that talks to peer discovery servlets over HTTP:
// POST http://host:port{path}/endpoints to announce, GET .../endpoints and
// GET .../endpoint/{uid} to read a peer catalog. Panics on nil logger or nil
// http client.
//
// Parameters: logger — component logger; httpClient — HTTP client shared by
// all calls (timeout recommended; main uses 10s).
//
// Returns: *Client, which also implements interfaces.EndpointFetcher.
//
// Called from cmd/main.go when peers are configured.
func NewClient(logger log.Logger, httpClient *http.Client) *Client {
	return &Client{
		logger: log.With(helpers.NilPanic(logger, "adapters.peerhttp.client.go: logger is required"),
			"component", "peer_client"),
		client: helpers.NilPanic(httpClient, "adapters.peerhttp.client.go: http client is required"),
	}
}

// Client implements the discovery protocol's client role. Used by
// service.PeerWatcher to poll peer catalogs and by the daemon to announce
// local endpoints when it starts. Holds a logger and an http.Client.
type Client struct {
	logger log.Logger
	client *http.Client
}

// AnnounceTo performs POST http://host:port{path}/endpoints with the given
// records as a JSON array, with a 5s timeout. Announcing is best effort:
// network errors and non-2xx statuses are logged and swallowed, because the
// peer can always poll the catalog later. An empty record list sends nothing.
//
// Parameters: host, port, path — the peer servlet location (path as mounted,
// e.g. /pelix-dispatcher); records — the wire records to push.
//
// Called from cmd/main.go at startup for every configured peer.
func (c *Client) AnnounceTo(ctx context.Context, host string, port int, path string, records []domain.EndpointRecord) {
	if len(records) == 0 {
		return
	}
	body, err := json.Marshal(records)
	if err != nil {
		level.Error(c.logger).Log("msg", "error encoding endpoint records", "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	reqURL := endpointsURL(host, port, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		level.Error(c.logger).Log("msg", "error building announcement request", "peer", reqURL, "err", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		level.Warn(c.logger).Log("msg", "error announcing endpoints to peer", "peer", reqURL, "err", err)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		level.Warn(c.logger).Log("msg", "peer rejected endpoint announcement",
			"peer", reqURL, "status", resp.StatusCode)
		return
	}
	level.Debug(c.logger).Log("msg", "endpoints announced", "peer", reqURL, "records", len(records))
}

// FetchEndpoints performs GET http://host:port{path}/endpoints with a 5s
// timeout. On 404 returns an empty list (the peer mounts no catalog there);
// on 200 parses the record array, converts each record to an import endpoint
// tagged with the peer host and skips records that fail validation (logged).
//
// Returns: ([]*domain.ImportEndpoint, nil) on 200 (possibly empty) or 404;
// (nil, error) on other status, network error or JSON parse error.
//
// Called from service.PeerWatcher on every poll tick.
func (c *Client) FetchEndpoints(ctx context.Context, host string, port int, path string) ([]*domain.ImportEndpoint, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	reqURL := endpointsURL(host, port, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, service.NewInternalError("building catalog request", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, service.NewInternalError("fetching peer catalog", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return []*domain.ImportEndpoint{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, service.NewInternalError(fmt.Sprintf("peer catalog returned %d", resp.StatusCode), nil)
	}

	var records []domain.EndpointRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, service.NewBadParameterError("decoding peer catalog", err)
	}
	endpoints := make([]*domain.ImportEndpoint, 0, len(records))
	for _, record := range records {
		endpoint, err := record.ToImport(host)
		if err != nil {
			level.Warn(c.logger).Log("msg", "skipping invalid record from peer",
				"peer", reqURL, "uid", record.UID, "err", err)
			continue
		}
		endpoints = append(endpoints, endpoint)
	}
	return endpoints, nil
}

// FetchEndpoint performs GET http://host:port{path}/endpoint/{uid} with a 5s
// timeout and converts the single returned record. The uid is substituted via
// url.PathEscape.
//
// Returns: the import endpoint on 200; an unknown_endpoint error on 404; an
// internal_error on other statuses, network errors or an invalid record.
func (c *Client) FetchEndpoint(ctx context.Context, host string, port int, path string, uid string) (*domain.ImportEndpoint, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	reqURL := baseURL(host, port, path) + "/endpoint/" + url.PathEscape(uid)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, service.NewInternalError("building endpoint request", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, service.NewInternalError("fetching peer endpoint", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, service.NewUnknownEndpointError(uid)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, service.NewInternalError(fmt.Sprintf("peer endpoint returned %d", resp.StatusCode), nil)
	}

	var record domain.EndpointRecord
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, service.NewBadParameterError("decoding peer endpoint", err)
	}
	endpoint, err := record.ToImport(host)
	if err != nil {
		return nil, service.NewBadParameterError("invalid record from peer", err)
	}
	return endpoint, nil
}

func baseURL(host string, port int, path string) string {
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port)) + path
}

func endpointsURL(host string, port int, path string) string {
	return baseURL(host, port, path) + "/endpoints"
}
