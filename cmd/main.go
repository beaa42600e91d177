package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/labstack/echo/v4"

	"github.com/elrhedda/ipopo/adapters/peerhttp"
	"github.com/elrhedda/ipopo/adapters/redisimports"
	"github.com/elrhedda/ipopo/handlers"
	"github.com/elrhedda/ipopo/interfaces"
	"github.com/elrhedda/ipopo/service"
)

func main() {
	// Initialize logger
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.WithPrefix(logger, "ts", log.DefaultTimestampUTC)
	logger = log.WithPrefix(logger, "caller", log.DefaultCaller)

	level.Info(logger).Log("msg", "Starting remote services dispatcher")

	// Load configuration
	config, err := LoadConfig()
	if err != nil {
		level.Error(logger).Log("msg", "Failed to load configuration", "err", err)
		os.Exit(1)
	}
	level.Info(logger).Log(
		"msg", "Configuration loaded",
		"service_port_http", config.HTTPPort,
		"framework_uid", config.FrameworkUID,
		"servlet_path", config.ServletPath,
		"redis_addr", config.RedisAddr,
		"peers", len(config.Peers),
	)

	// Imports registry: redis-backed when configured, in-process otherwise
	var imports interfaces.ImportsRegistry
	{
		if config.RedisAddr != "" {
			redisClient, err := redisimports.NewRedisUniversalClient(config.RedisAddr)
			if err != nil {
				level.Error(logger).Log("msg", "Failed to create Redis client", "err", err)
				os.Exit(1)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := redisClient.Ping(ctx).Err(); err != nil {
				level.Error(logger).Log("msg", "Failed to connect to Redis", "err", err)
				os.Exit(1)
			}
			level.Info(logger).Log("msg", "Connected to Redis")

			imports = redisimports.NewRedisRegistry(logger, redisClient, config.RedisTTLMs)
		} else {
			imports = service.NewMemoryImports(logger)
		}
	}

	// Dispatcher and its HTTP servlet
	dispatcher := service.NewDispatcher(logger, config.FrameworkUID)
	servlet := handlers.NewRegistryServlet(logger, dispatcher, imports, config.ServletPath)

	var e *echo.Echo
	{
		e = echo.New()
		e.HideBanner = true
		servlet.RegisterRoutes(e)
		e.GET("/health", func(c echo.Context) error {
			return c.String(http.StatusOK, "OK")
		})
	}

	// Peer discovery: announce our catalog and poll the configured peers
	peerClient := peerhttp.NewClient(logger, &http.Client{Timeout: 10 * time.Second})
	watcher := service.NewPeerWatcher(logger, peerClient, imports,
		config.FrameworkUID, config.PollInterval, config.FailureThreshold)
	for _, peer := range config.Peers {
		watcher.AddPeer(peer)
	}
	if len(config.Peers) > 0 {
		watcher.Start()
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			for _, peer := range config.Peers {
				peerClient.AnnounceTo(ctx, peer.Host, peer.Port, peer.Path, dispatcher.Records())
			}
		}()
	}

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	// Start server in a goroutine
	go func() {
		addr := fmt.Sprintf(":%d", config.HTTPPort)
		level.Info(logger).Log("msg", "Starting HTTP server", "addr", addr)
		servlet.BoundTo(config.HTTPPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			level.Error(logger).Log("msg", "HTTP server error", "err", err)
		}
	}()

	// Wait for interrupt signal
	<-quit
	level.Info(logger).Log("msg", "Shutting down server...")

	watcher.Close()
	dispatcher.Close()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		level.Error(logger).Log("msg", "Error during server shutdown", "err", err)
	}
	servlet.UnboundFrom(config.HTTPPort)

	level.Info(logger).Log("msg", "Server stopped")
}
