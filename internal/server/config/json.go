package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmsavelyev/chatvault/internal/flagx"
	"github.com/dmsavelyev/chatvault/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "25s" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. After unmarshalling, its fields are copied into the
// runtime Config struct which uses time.Duration.
type JsonConfig struct {
	EndpointAddr          string         `json:"endpoint_addr"`
	DataDir               string         `json:"data_dir"`
	CredsDir              string         `json:"creds_dir"`
	EngineCmd             string         `json:"engine_cmd"`
	AuditKeyB64           string         `json:"audit_key_b64"`
	QRWait                timex.Duration `json:"qr_wait"`
	CaptureGroups         bool           `json:"capture_groups"`
	SecretKey             string         `json:"secret_key"`
	TokenValidityDuration timex.Duration `json:"token_validity_duration"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path comes from the -c or -config command-line flags; when
// neither is set, no JSON file is loaded. If the file cannot be read or
// contains invalid JSON, the function panics.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	config.EndpointAddr = c.EndpointAddr
	config.DataDir = c.DataDir
	config.CredsDir = c.CredsDir
	config.EngineCmd = c.EngineCmd
	config.AuditKeyB64 = c.AuditKeyB64
	config.QRWait = time.Duration(c.QRWait.Duration)
	config.CaptureGroups = c.CaptureGroups
	config.SecretKey = c.SecretKey
	config.TokenValidityDuration = time.Duration(c.TokenValidityDuration.Duration)
}
