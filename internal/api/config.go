package api

import "github.com/csvgate/csvgate/core/dataset"

// Config holds server configuration.
type Config struct {
	Listen          string         // Listen address, e.g. ":8080"
	Dataset         dataset.Config // Gateway configuration for the served source
	DefaultPageSize int            // Page size applied when a request names none
	TLS             TLSConfig      // TLS configuration
	AllowedOrigins  []string       // CORS allowed origins (empty = allow all)
}

// TLSConfig holds TLS/HTTPS configuration.
type TLSConfig struct {
	Enabled  bool   // Enable HTTPS
	CertFile string // Path to TLS certificate file
	KeyFile  string // Path to TLS private key file
}

// ServerConfig is the active server configuration.
var ServerConfig Config
