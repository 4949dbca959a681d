// Package api provides the csvgate REST API server.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/csvgate/csvgate/core/dataset"
	"github.com/csvgate/csvgate/internal/logging"
	"github.com/csvgate/csvgate/internal/server"
)

// gateway backs every data endpoint. Start assigns it before the listener
// accepts traffic.
var gateway *dataset.Gateway

// Start opens the configured dataset and serves the API until the listener
// fails. The gateway stays up across refreshes; a failed refresh leaves the
// previous dataset version serving.
func Start(cfg Config) error {
	// Validate TLS configuration if enabled
	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
			return fmt.Errorf("TLS enabled but cert or key file not specified")
		}
		// Verify TLS files exist
		if _, err := os.Stat(cfg.TLS.CertFile); err != nil {
			return fmt.Errorf("TLS cert file not found: %w", err)
		}
		if _, err := os.Stat(cfg.TLS.KeyFile); err != nil {
			return fmt.Errorf("TLS key file not found: %w", err)
		}
	}

	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 100 // Default page size
	}

	// Initialize WebSocket hub before the dataset opens so refresh events
	// always have somewhere to go
	GlobalHub = NewHub()
	go GlobalHub.Run()
	cfg.Dataset.Events = hubEvents{}

	ServerConfig = cfg

	gw, err := dataset.Open(context.Background(), cfg.Dataset)
	if err != nil {
		return fmt.Errorf("failed to open dataset: %w", err)
	}
	gateway = gw

	// Setup routes
	mux := setupRoutes()

	// Log server startup with appropriate protocol
	protocol := "http"
	wsProtocol := "ws"
	if cfg.TLS.Enabled {
		protocol = "https"
		wsProtocol = "wss"
		logging.Info("TLS enabled", "cert_file", cfg.TLS.CertFile)
	} else {
		logging.Warn("TLS disabled - using plain HTTP",
			"recommendation", "consider using TLS or reverse proxy for production")
	}
	meta := gateway.Describe()
	logging.ServerStartup("rest_api", protocol, cfg.Listen,
		"websocket_protocol", wsProtocol,
		"source", server.AbsPath(cfg.Dataset.Source),
		"rows", meta.TotalRows)

	// Build middleware chain with security headers
	cspConfig := server.APICSPConfig()
	var handler http.Handler = server.SecurityHeadersWithCSP(cspConfig, mux)

	// Apply CORS middleware
	corsConfig := server.CORSConfig{
		AllowedOrigins: cfg.AllowedOrigins,
	}
	handler = server.CORSMiddlewareWithConfig(corsConfig, handler)
	if len(cfg.AllowedOrigins) > 0 {
		logging.SecurityEvent("cors_configured", "api",
			"mode", "restricted",
			"allowed_origins_count", len(cfg.AllowedOrigins))
	} else {
		logging.SecurityEvent("cors_configured", "api",
			"mode", "permissive",
			"note", "allowing all origins (*) - consider restricting for production")
	}

	// Apply logging middleware (outermost)
	handler = logging.CombinedMiddleware(handler)

	// Start server with or without TLS
	if cfg.TLS.Enabled {
		return http.ListenAndServeTLS(cfg.Listen, cfg.TLS.CertFile, cfg.TLS.KeyFile, handler)
	}
	return http.ListenAndServe(cfg.Listen, handler)
}

// setupRoutes configures all HTTP routes.
func setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", handleRoot)
	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/api/metadata", handleMetadata)
	mux.HandleFunc("/api/rows", handleRows)
	mux.HandleFunc("/api/refresh", handleRefresh)
	mux.HandleFunc("/api/events", handleWebSocket)

	return mux
}
