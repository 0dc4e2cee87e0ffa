// Package filex provides small filesystem helpers shared by the vault,
// the log writer and the session credential store.
package filex

import (
	"fmt"
	"os"
)

// EnsureDir creates dir (and parents) if it does not exist.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return nil
}

// RemoveDirSafe removes dir recursively. It reports whether the directory
// existed; removal errors are swallowed since callers treat cleanup as
// best-effort.
func RemoveDirSafe(dir string) bool {
	if _, err := os.Stat(dir); err != nil {
		return false
	}
	_ = os.RemoveAll(dir)
	return true
}
