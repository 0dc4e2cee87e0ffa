// Package session orchestrates the lifecycle of messaging identities: it
// owns the live external-client handle per identity, drives status
// transitions from client events, persists them to the registry, and lets
// concurrent callers await the next meaningful state with a bounded wait.
package session

import "strings"

// Status is the lifecycle state of one identity.
//
// new → initializing → {qr ⇄ qr_error} → authenticated → connected, with
// disconnected, auth_failure and error reachable from any non-terminal
// state. A failed or disconnected identity stays put until an external
// request re-initializes it; nothing is retried automatically.
type Status string

const (
	StatusNew           Status = "new"
	StatusInitializing  Status = "initializing"
	StatusQR            Status = "qr"
	StatusQRError       Status = "qr_error"
	StatusAuthenticated Status = "authenticated"
	StatusConnected     Status = "connected"
	StatusAuthFailure   Status = "auth_failure"
	StatusDisconnected  Status = "disconnected"
	StatusError         Status = "error"
)

// Outcome is what an AwaitOutcome call resolves to.
type Outcome string

const (
	OutcomeQR        Outcome = "qr"
	OutcomeConnected Outcome = "connected"
	OutcomeError     Outcome = "error"
	OutcomeTimeout   Outcome = "timeout"
)

// NormalizeID sanitizes an externally supplied identity identifier: only
// digits, letters, '_' and '-' survive. An empty result means the input
// was unusable.
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		switch {
		case r >= '0' && r <= '9',
			r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}
