// Package registry persists per-identity session metadata. One row per
// identity, mutated in place on every lifecycle transition, surviving
// process restarts.
package registry

import "time"

// Record is the durable state of one managed identity.
type Record struct {
	ID        string     `json:"id"`
	Name      string     `json:"name,omitempty"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	LastQrAt  *time.Time `json:"lastQrAt,omitempty"`
	// LastQrImage holds the rendered QR payload (a PNG data URL). It is
	// only hydrated by GetQR; list and status reads leave it empty.
	LastQrImage string `json:"-"`
	LastError   string `json:"lastError,omitempty"`
}

// Patch is a partial update applied read-modify-write by Upsert. Nil
// fields keep their current value.
type Patch struct {
	Name        *string
	Status      *string
	LastQrAt    *time.Time
	LastQrImage *string
	LastError   *string
}
