package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	DefaultHost       = "127.0.0.1"
	DefaultPort       = 18790
	DefaultGatewayURL = "ws://127.0.0.1:18789"
	dataDirName       = ".exec-guard"
)

type Config struct {
	Host         string
	Port         int
	MasterSecret string
	GinMode      string
	TLSCertFile  string
	TLSKeyFile   string
	TokenExpiry  time.Duration

	GatewayURL           string
	GatewayToken         string
	RequestTimeout       time.Duration
	ReconnectMaxAttempts int

	DataDir            string
	DeviceIdentityFile string
	StateFile          string
	AccessControlFile  string

	ApprovalTimeout  time.Duration
	ReconcileRetries int
}

func (c Config) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

type Env interface {
	Getenv(key string) string
}

type osEnv struct{}

func (osEnv) Getenv(key string) string { return os.Getenv(key) }

// ProcessEnv reads the real process environment.
var ProcessEnv Env = osEnv{}

// LoadConfig loads the server configuration from the process environment.
func LoadConfig() (Config, error) {
	return LoadConfigFromEnv(ProcessEnv)
}

// LoadConfigFromEnv is Load plus the checks only the server needs.
func LoadConfigFromEnv(env Env) (Config, error) {
	cfg, err := Load(env)
	if err != nil {
		return Config{}, err
	}
	if cfg.MasterSecret == "" {
		return Config{}, fmt.Errorf("MASTER_SECRET is required")
	}
	return cfg, nil
}

// Load parses every setting without requiring the control API secret.
func Load(env Env) (Config, error) {
	cfg := Config{
		Host:                 DefaultHost,
		Port:                 DefaultPort,
		GinMode:              "release",
		TokenExpiry:          7 * 24 * time.Hour,
		GatewayURL:           DefaultGatewayURL,
		RequestTimeout:       10 * time.Second,
		ReconnectMaxAttempts: 20,
		ApprovalTimeout:      10 * time.Minute,
		ReconcileRetries:     2,
	}

	if raw := env.Getenv("HOST"); raw != "" {
		cfg.Host = raw
	}
	if raw := env.Getenv("PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return Config{}, fmt.Errorf("invalid PORT")
		}
		cfg.Port = port
	}

	cfg.MasterSecret = env.Getenv("MASTER_SECRET")

	if raw := env.Getenv("GIN_MODE"); raw != "" {
		cfg.GinMode = raw
	}

	cfg.TLSCertFile = env.Getenv("TLS_CERT_FILE")
	cfg.TLSKeyFile = env.Getenv("TLS_KEY_FILE")
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return Config{}, fmt.Errorf("TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}

	var err error
	if cfg.TokenExpiry, err = seconds(env, "TOKEN_EXPIRY_SECONDS", cfg.TokenExpiry); err != nil {
		return Config{}, err
	}

	if raw := env.Getenv("GATEWAY_URL"); raw != "" {
		cfg.GatewayURL = raw
	}
	cfg.GatewayToken = env.Getenv("GATEWAY_TOKEN")

	if cfg.RequestTimeout, err = millis(env, "REQUEST_TIMEOUT_MS", cfg.RequestTimeout); err != nil {
		return Config{}, err
	}
	if cfg.ApprovalTimeout, err = millis(env, "APPROVAL_TIMEOUT_MS", cfg.ApprovalTimeout); err != nil {
		return Config{}, err
	}
	if cfg.ReconnectMaxAttempts, err = count(env, "RECONNECT_MAX_ATTEMPTS", cfg.ReconnectMaxAttempts, 1); err != nil {
		return Config{}, err
	}
	if cfg.ReconcileRetries, err = count(env, "RECONCILE_RETRIES", cfg.ReconcileRetries, 0); err != nil {
		return Config{}, err
	}

	cfg.DataDir = env.Getenv("EXEC_GUARD_HOME")
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Join(env.Getenv("HOME"), dataDirName)
	}
	cfg.DeviceIdentityFile = pathOr(env, "DEVICE_IDENTITY_FILE", filepath.Join(cfg.DataDir, "device.json"))
	cfg.StateFile = pathOr(env, "STATE_FILE", filepath.Join(cfg.DataDir, "state.json"))
	cfg.AccessControlFile = pathOr(env, "ACCESS_CONTROL_FILE", filepath.Join(cfg.DataDir, "access.yaml"))

	return cfg, nil
}

func pathOr(env Env, key, def string) string {
	if raw := env.Getenv(key); raw != "" {
		return raw
	}
	return def
}

func seconds(env Env, key string, def time.Duration) (time.Duration, error) {
	raw := env.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return time.Duration(n) * time.Second, nil
}

func millis(env Env, key string, def time.Duration) (time.Duration, error) {
	raw := env.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return time.Duration(n) * time.Millisecond, nil
}

func count(env Env, key string, def, floor int) (int, error) {
	raw := env.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < floor {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}
