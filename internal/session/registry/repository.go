package registry

import "context"

// Repository is the persistence contract for session records.
//
// Upsert creates the record if missing (status "new") and applies the
// patch as one read-modify-write operation. List and Get never return the
// QR image; GetQR is the single read path for it.
type Repository interface {
	Upsert(ctx context.Context, id string, patch Patch) (*Record, error)
	Get(ctx context.Context, id string) (*Record, error)
	GetQR(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context) ([]*Record, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}
