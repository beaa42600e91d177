package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/elrhedda/ipopo/handlers"
	"github.com/elrhedda/ipopo/service"
)

// Env variable names.
const (
	envHTTPPort        = "SERVICE_PORT_HTTP"
	envFrameworkUID    = "FRAMEWORK_UID"
	envServletPath     = "SERVLET_PATH"
	envRedisAddr       = "REDIS_ADDR"
	envRedisTTLMs      = "REDIS_TTL_MS"
	envPeersConfigPath = "PEERS_CONFIG_PATH"
)

const (
	defaultPollIntervalMs   = 30000
	defaultFailureThreshold = 3
)

// Config holds the full daemon configuration loaded by LoadConfig from
// environment variables and the optional peers YAML file. An empty RedisAddr
// selects the in-process imports registry. Peers is empty when no peers file
// is configured; the discovery loop then stays idle.
type Config struct {
	HTTPPort         int
	FrameworkUID     string
	ServletPath      string
	RedisAddr        string
	RedisTTLMs       int
	Peers            []service.Peer
	PollInterval     time.Duration
	FailureThreshold int
}

// yamlPeers is the root struct for peers YAML unmarshalling.
type yamlPeers struct {
	PollIntervalMs   int        `yaml:"poll_interval_ms"`
	FailureThreshold int        `yaml:"failure_threshold"`
	Peers            []yamlPeer `yaml:"peers"`
}

// yamlPeer is one peer entry: host, port and the optional servlet path on
// that peer.
type yamlPeer struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// loadYAMLPeers reads the YAML file at path and unmarshals it into
// yamlPeers.
//
// Parameter path — absolute path to the file (LoadConfig converts
// PEERS_CONFIG_PATH to absolute via filepath.Abs).
//
// Returns: (*yamlPeers, nil) on successful read and yaml.Unmarshal;
// (nil, error) on os.ReadFile or yaml.Unmarshal error.
//
// Called only from LoadConfig.
func loadYAMLPeers(path string) (*yamlPeers, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out yamlPeers
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LoadConfig builds the daemon config from environment variables and the
// optional peers YAML at PEERS_CONFIG_PATH. SERVICE_PORT_HTTP is required
// (1-65535). FRAMEWORK_UID defaults to a fresh uuid, SERVLET_PATH to the
// standard registry path. REDIS_ADDR switches the imports registry to redis;
// REDIS_TTL_MS then bounds the lifetime of stored endpoints (0 keeps them
// forever). Peer entries must carry a host and a valid port; a peer without
// a path uses the standard registry path.
//
// Returns: (*Config, nil) on success; (nil, error) on an invalid port,
// unreadable or invalid peers file, or an invalid peer entry.
//
// Called only from main at startup.
func LoadConfig() (*Config, error) {
	httpPortStr := strings.TrimSpace(os.Getenv(envHTTPPort))
	httpPort, err := strconv.Atoi(httpPortStr)
	if err != nil || httpPortStr == "" {
		return nil, fmt.Errorf("%s must be a valid port (1-65535)", envHTTPPort)
	}
	if httpPort <= 0 || httpPort > 65535 {
		return nil, fmt.Errorf("%s must be 1-65535, got %d", envHTTPPort, httpPort)
	}

	frameworkUID := strings.TrimSpace(os.Getenv(envFrameworkUID))
	if frameworkUID == "" {
		frameworkUID = uuid.NewString()
	}

	servletPath := strings.TrimSpace(os.Getenv(envServletPath))
	if servletPath == "" {
		servletPath = handlers.DefaultServletPath
	}

	redisAddr := strings.TrimSpace(os.Getenv(envRedisAddr))
	redisTTLMs := 0
	if redisTTLMsStr := strings.TrimSpace(os.Getenv(envRedisTTLMs)); redisTTLMsStr != "" {
		redisTTLMs, err = strconv.Atoi(redisTTLMsStr)
		if err != nil || redisTTLMs < 0 {
			return nil, fmt.Errorf("%s must be a non-negative integer (ms), got %q", envRedisTTLMs, redisTTLMsStr)
		}
	}

	config := &Config{
		HTTPPort:         httpPort,
		FrameworkUID:     frameworkUID,
		ServletPath:      servletPath,
		RedisAddr:        redisAddr,
		RedisTTLMs:       redisTTLMs,
		PollInterval:     defaultPollIntervalMs * time.Millisecond,
		FailureThreshold: defaultFailureThreshold,
	}

	peersPath := strings.TrimSpace(os.Getenv(envPeersConfigPath))
	if peersPath == "" {
		return config, nil
	}
	if !filepath.IsAbs(peersPath) {
		abs, absErr := filepath.Abs(peersPath)
		if absErr != nil {
			return nil, absErr
		}
		peersPath = abs
	}
	raw, err := loadYAMLPeers(peersPath)
	if err != nil {
		return nil, fmt.Errorf("load peers config %s: %w", peersPath, err)
	}

	if raw.PollIntervalMs < 0 {
		return nil, fmt.Errorf("poll_interval_ms must be non-negative, got %d", raw.PollIntervalMs)
	}
	if raw.PollIntervalMs > 0 {
		config.PollInterval = time.Duration(raw.PollIntervalMs) * time.Millisecond
	}
	if raw.FailureThreshold < 0 {
		return nil, fmt.Errorf("failure_threshold must be non-negative, got %d", raw.FailureThreshold)
	}
	if raw.FailureThreshold > 0 {
		config.FailureThreshold = raw.FailureThreshold
	}

	peers := make([]service.Peer, 0, len(raw.Peers))
	for i, peer := range raw.Peers {
		host := strings.TrimSpace(peer.Host)
		if host == "" {
			return nil, fmt.Errorf("peer %d: host is required", i)
		}
		if peer.Port <= 0 || peer.Port > 65535 {
			return nil, fmt.Errorf("peer %d: port must be 1-65535, got %d", i, peer.Port)
		}
		path := strings.TrimSpace(peer.Path)
		if path == "" {
			path = handlers.DefaultServletPath
		}
		peers = append(peers, service.Peer{Host: host, Port: peer.Port, Path: path})
	}
	config.Peers = peers

	return config, nil
}
