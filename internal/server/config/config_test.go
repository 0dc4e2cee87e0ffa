package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmsavelyev/chatvault/internal/common"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, c.EndpointAddr, ":8080")
	assert.Equal(t, c.DataDir, "./data")
	assert.Equal(t, c.CredsDir, "./creds")
	assert.Equal(t, c.EngineCmd, "chatvault-engine")
	assert.Equal(t, c.AuditKeyB64, "")
	assert.Equal(t, c.QRWait, 25*time.Second)
	assert.Equal(t, c.CaptureGroups, false)
	assert.Equal(t, c.SecretKey, "")
	assert.Equal(t, c.TokenValidityDuration, 60*time.Minute)
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	c := LoadConfig()

	require.NotNil(t, c, "LoadConfig must not return nil")

	assert.Equal(t, c.EndpointAddr, ":8080")
	assert.Equal(t, c.DataDir, "./data")
	assert.Equal(t, c.QRWait, 25*time.Second)
}

func TestParseEnv_AuditKey(t *testing.T) {
	t.Setenv(common.AuditKeyEnvName, "a2V5a2V5a2V5")

	var c Config
	c.LoadDefaults()
	parseEnv(&c)

	assert.Equal(t, "a2V5a2V5a2V5", c.AuditKeyB64)
}

func TestParseEnv_EmptyKeepsConfigured(t *testing.T) {
	t.Setenv(common.AuditKeyEnvName, "")

	var c Config
	c.LoadDefaults()
	c.AuditKeyB64 = "from-json"
	parseEnv(&c)

	assert.Equal(t, "from-json", c.AuditKeyB64)
}
