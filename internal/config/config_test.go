package config

import (
	"path/filepath"
	"testing"
	"time"
)

type mapEnv map[string]string

func (m mapEnv) Getenv(key string) string { return m[key] }

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadConfigFromEnv(mapEnv{"MASTER_SECRET": "x", "HOME": "/home/op"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Addr() != "127.0.0.1:18790" {
		t.Fatalf("expected default addr, got %q", cfg.Addr())
	}
	if cfg.GinMode != "release" {
		t.Fatalf("expected default gin mode release, got %q", cfg.GinMode)
	}
	if cfg.GatewayURL != DefaultGatewayURL || cfg.GatewayToken != "" {
		t.Fatalf("unexpected gateway settings: %q %q", cfg.GatewayURL, cfg.GatewayToken)
	}
	if cfg.ApprovalTimeout != 10*time.Minute || cfg.RequestTimeout != 10*time.Second {
		t.Fatalf("unexpected timeouts: %s %s", cfg.ApprovalTimeout, cfg.RequestTimeout)
	}
	if cfg.ReconnectMaxAttempts != 20 || cfg.ReconcileRetries != 2 {
		t.Fatalf("unexpected retry settings: %d %d", cfg.ReconnectMaxAttempts, cfg.ReconcileRetries)
	}
	if cfg.DeviceIdentityFile != filepath.Join("/home/op", ".exec-guard", "device.json") {
		t.Fatalf("unexpected identity path %q", cfg.DeviceIdentityFile)
	}
	if cfg.StateFile != filepath.Join("/home/op", ".exec-guard", "state.json") {
		t.Fatalf("unexpected state path %q", cfg.StateFile)
	}
	if cfg.AccessControlFile != filepath.Join("/home/op", ".exec-guard", "access.yaml") {
		t.Fatalf("unexpected access path %q", cfg.AccessControlFile)
	}
}

func TestLoadConfigFromEnv_MissingSecret(t *testing.T) {
	if _, err := LoadConfigFromEnv(mapEnv{}); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := Load(mapEnv{}); err != nil {
		t.Fatalf("Load must not require the secret: %v", err)
	}
}

func TestLoadConfigFromEnv_Overrides(t *testing.T) {
	cfg, err := LoadConfigFromEnv(mapEnv{
		"MASTER_SECRET":          "x",
		"HOST":                   "0.0.0.0",
		"PORT":                   "1234",
		"GATEWAY_URL":            "ws://gw:9000",
		"GATEWAY_TOKEN":          "tok",
		"APPROVAL_TIMEOUT_MS":    "1500",
		"REQUEST_TIMEOUT_MS":     "250",
		"RECONNECT_MAX_ATTEMPTS": "3",
		"RECONCILE_RETRIES":      "0",
		"EXEC_GUARD_HOME":        "/var/lib/eg",
		"STATE_FILE":             "/tmp/state.json",
		"TOKEN_EXPIRY_SECONDS":   "60",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Addr() != "0.0.0.0:1234" {
		t.Fatalf("addr = %q", cfg.Addr())
	}
	if cfg.GatewayURL != "ws://gw:9000" || cfg.GatewayToken != "tok" {
		t.Fatalf("unexpected gateway settings: %+v", cfg)
	}
	if cfg.ApprovalTimeout != 1500*time.Millisecond || cfg.RequestTimeout != 250*time.Millisecond {
		t.Fatalf("unexpected timeouts: %s %s", cfg.ApprovalTimeout, cfg.RequestTimeout)
	}
	if cfg.ReconnectMaxAttempts != 3 || cfg.ReconcileRetries != 0 {
		t.Fatalf("unexpected retry settings: %d %d", cfg.ReconnectMaxAttempts, cfg.ReconcileRetries)
	}
	if cfg.StateFile != "/tmp/state.json" || cfg.DeviceIdentityFile != filepath.Join("/var/lib/eg", "device.json") {
		t.Fatalf("unexpected paths: %q %q", cfg.StateFile, cfg.DeviceIdentityFile)
	}
	if cfg.TokenExpiry != time.Minute {
		t.Fatalf("token expiry = %s", cfg.TokenExpiry)
	}
}

func TestLoadConfigFromEnv_Invalid(t *testing.T) {
	tests := []mapEnv{
		{"PORT": "0"},
		{"PORT": "abc"},
		{"TOKEN_EXPIRY_SECONDS": "-1"},
		{"APPROVAL_TIMEOUT_MS": "0"},
		{"REQUEST_TIMEOUT_MS": "x"},
		{"RECONNECT_MAX_ATTEMPTS": "0"},
		{"RECONCILE_RETRIES": "-1"},
		{"TLS_CERT_FILE": "cert.pem"},
	}
	for _, env := range tests {
		env["MASTER_SECRET"] = "x"
		if _, err := LoadConfigFromEnv(env); err == nil {
			t.Errorf("expected error for %v", env)
		}
	}
}
