package api

import (
	"testing"
)

func TestNewTLSConfig_NothingSet(t *testing.T) {
	cfg := NewTLSConfig("", "")
	if cfg.Enabled() {
		t.Error("TLS should not be enabled when paths are not set")
	}
}

func TestNewTLSConfig_OnlyCert(t *testing.T) {
	if NewTLSConfig("/path/to/cert.pem", "").Enabled() {
		t.Error("TLS should not be enabled when only cert is set")
	}
}

func TestNewTLSConfig_OnlyKey(t *testing.T) {
	if NewTLSConfig("", "/path/to/key.pem").Enabled() {
		t.Error("TLS should not be enabled when only key is set")
	}
}

func TestNewTLSConfig_BothSet(t *testing.T) {
	cfg := NewTLSConfig("/path/to/cert.pem", "/path/to/key.pem")

	if !cfg.Enabled() {
		t.Fatal("TLS should be enabled when both cert and key are set")
	}
	if cfg.CertFile != "/path/to/cert.pem" {
		t.Errorf("CertFile = %q, want %q", cfg.CertFile, "/path/to/cert.pem")
	}
	if cfg.KeyFile != "/path/to/key.pem" {
		t.Errorf("KeyFile = %q, want %q", cfg.KeyFile, "/path/to/key.pem")
	}
}

func TestLoad_NotEnabled(t *testing.T) {
	var cfg *TLSConfig

	tc, err := cfg.Load()
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if tc != nil {
		t.Error("Load should return nil when TLS is not enabled")
	}
}

func TestLoad_InvalidFiles(t *testing.T) {
	cfg := NewTLSConfig("/nonexistent/cert.pem", "/nonexistent/key.pem")

	tc, err := cfg.Load()
	if err == nil {
		t.Error("Load should fail when cert files don't exist")
	}
	if tc != nil {
		t.Error("Load should return nil config on error")
	}
}
