// Package config handles configuration for the server component,
// including defaults, JSON overlay, command-line flags and the audit key
// environment variable.
package config

import (
	"os"
	"time"

	"github.com/dmsavelyev/chatvault/internal/common"
)

// Config holds runtime settings for the chatvault server.
//
// Fields:
//   - EndpointAddr: bind address for the HTTP control API.
//   - DataDir: root of the vault (logs_enc, media_enc, media_manifest) and
//     the session registry database.
//   - CredsDir: root of the external client's per-identity credential state.
//   - EngineCmd: path of the external messaging engine binary, spawned
//     once per identity.
//   - AuditKeyB64: base64-encoded 32-byte audit key. Usually supplied via
//     the AUDIT_KEY_B64 environment variable rather than a file or flag.
//   - QRWait: how long a create request waits for a QR or a connection
//     before reporting a timeout.
//   - CaptureGroups: whether group conversations are captured.
//   - SecretKey: HMAC secret for control API bearer tokens (HS256). Empty
//     disables authentication.
//   - TokenValidityDuration: lifetime of issued control API tokens.
type Config struct {
	EndpointAddr          string
	DataDir               string
	CredsDir              string
	EngineCmd             string
	AuditKeyB64           string
	QRWait                time.Duration
	CaptureGroups         bool
	SecretKey             string
	TokenValidityDuration time.Duration
}

// LoadDefaults populates Config with development defaults.
// NOTE: run production deployments with an explicit data dir and key.
func (c *Config) LoadDefaults() {
	c.EndpointAddr = ":8080"
	c.DataDir = "./data"
	c.CredsDir = "./creds"
	c.EngineCmd = "chatvault-engine"
	c.AuditKeyB64 = ""
	c.QRWait = 25 * time.Second
	c.CaptureGroups = false
	c.SecretKey = ""
	c.TokenValidityDuration = 60 * time.Minute
}

// parseEnv overlays the audit key from the environment. The env var wins
// over the JSON file but loses to an explicit flag.
func parseEnv(c *Config) {
	if v := os.Getenv(common.AuditKeyEnvName); v != "" {
		c.AuditKeyB64 = v
	}
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file, the environment and finally command-line
// flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
