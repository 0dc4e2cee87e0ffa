package messaging

import (
	"path/filepath"

	"github.com/dmsavelyev/chatvault/internal/filex"
)

// CredentialCleanup reports which on-disk artifacts were removed for an
// identity.
type CredentialCleanup struct {
	AuthDir      string `json:"authDir"`
	CacheDir     string `json:"cacheDir"`
	RemovedAuth  bool   `json:"removedAuth"`
	RemovedCache bool   `json:"removedCache"`
}

// ClearCredentials deletes the durable session and cache directories for
// one identity under credsDir. Removal is best-effort: it never fails,
// only reports what existed.
func ClearCredentials(credsDir, identityID string) CredentialCleanup {
	authDir := filepath.Join(credsDir, "auth", "session-"+identityID)
	cacheDir := filepath.Join(credsDir, "cache", "session-"+identityID)
	return CredentialCleanup{
		AuthDir:      authDir,
		CacheDir:     cacheDir,
		RemovedAuth:  filex.RemoveDirSafe(authDir),
		RemovedCache: filex.RemoveDirSafe(cacheDir),
	}
}
