package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDefaultCSPConfig(t *testing.T) {
	cfg := DefaultCSPConfig()

	if len(cfg.DefaultSrc) != 1 || cfg.DefaultSrc[0] != "'self'" {
		t.Errorf("DefaultSrc should be ['self'], got %v", cfg.DefaultSrc)
	}

	if len(cfg.FrameAncestors) != 1 || cfg.FrameAncestors[0] != "'none'" {
		t.Errorf("FrameAncestors should be ['none'], got %v", cfg.FrameAncestors)
	}
}

func TestAPICSPConfig(t *testing.T) {
	cfg := APICSPConfig()

	if len(cfg.DefaultSrc) != 1 || cfg.DefaultSrc[0] != "'none'" {
		t.Errorf("API DefaultSrc should be ['none'], got %v", cfg.DefaultSrc)
	}

	if len(cfg.ScriptSrc) != 0 {
		t.Errorf("API ScriptSrc should be empty, got %v", cfg.ScriptSrc)
	}
}

func TestBuildCSPHeader(t *testing.T) {
	tests := []struct {
		name     string
		cfg      CSPConfig
		expected string
	}{
		{
			name: "simple config",
			cfg: CSPConfig{
				DefaultSrc: []string{"'self'"},
				ScriptSrc:  []string{"'self'"},
			},
			expected: "default-src 'self'; script-src 'self'",
		},
		{
			name: "with upgrade-insecure-requests",
			cfg: CSPConfig{
				DefaultSrc:              []string{"'self'"},
				UpgradeInsecureRequests: true,
			},
			expected: "default-src 'self'; upgrade-insecure-requests",
		},
		{
			name: "multiple sources",
			cfg: CSPConfig{
				DefaultSrc: []string{"'self'"},
				ImgSrc:     []string{"'self'", "data:", "https://example.com"},
			},
			expected: "default-src 'self'; img-src 'self' data: https://example.com",
		},
		{
			name: "api config",
			cfg:  APICSPConfig(),
			expected: "default-src 'none'; frame-ancestors 'none'; " +
				"base-uri 'none'; form-action 'none'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.cfg.BuildCSPHeader()
			if result != tt.expected {
				t.Errorf("Expected CSP header:\n%s\nGot:\n%s", tt.expected, result)
			}
		})
	}
}

func TestCSPMiddleware(t *testing.T) {
	cfg := CSPConfig{
		DefaultSrc: []string{"'self'"},
		ScriptSrc:  []string{"'self'"},
	}

	handler := CSPMiddleware(cfg, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	csp := w.Header().Get("Content-Security-Policy")
	expected := "default-src 'self'; script-src 'self'"

	if csp != expected {
		t.Errorf("Expected CSP header '%s', got '%s'", expected, csp)
	}
}

func TestSecurityHeadersWithCSP(t *testing.T) {
	cfg := APICSPConfig()

	handler := SecurityHeadersWithCSP(cfg, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/api/metadata", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	// Check all security headers are present
	headers := []string{
		"X-Content-Type-Options",
		"X-Frame-Options",
		"X-XSS-Protection",
		"Referrer-Policy",
		"Content-Security-Policy",
	}

	for _, header := range headers {
		if w.Header().Get(header) == "" {
			t.Errorf("Expected header '%s' to be set", header)
		}
	}

	// Verify specific values
	if w.Header().Get("X-Frame-Options") != "DENY" {
		t.Errorf("X-Frame-Options should be DENY")
	}

	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Errorf("X-Content-Type-Options should be nosniff")
	}
}
