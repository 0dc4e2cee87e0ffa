// Package common contains shared constants and sentinel errors used across
// ChatVault components.
package common

// AuditKeyEnvName is the environment variable carrying the base64-encoded
// 32-byte audit encryption key.
const AuditKeyEnvName = "AUDIT_KEY_B64"

// AccessTokenHeaderName is the HTTP header used to carry the access token
// on control-plane requests.
const AccessTokenHeaderName = "Authorization"
