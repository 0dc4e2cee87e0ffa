package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmsavelyev/chatvault/internal/common"
	"github.com/dmsavelyev/chatvault/internal/dbx"
)

const timeLayout = time.RFC3339Nano

// SQLiteRepository implements Repository over a local SQLite database.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository returns a repository bound to db. The schema must
// already be migrated (see InitDatabase).
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// scanRecord reads one row. withQR controls whether last_qr_image is part
// of the column list.
func scanRecord(row *sql.Row, withQR bool) (*Record, error) {
	var (
		rec       Record
		createdAt string
		updatedAt string
		lastQrAt  sql.NullString
	)

	var err error
	if withQR {
		err = row.Scan(&rec.ID, &rec.Name, &rec.Status, &createdAt, &updatedAt, &lastQrAt, &rec.LastQrImage, &rec.LastError)
	} else {
		err = row.Scan(&rec.ID, &rec.Name, &rec.Status, &createdAt, &updatedAt, &lastQrAt, &rec.LastError)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if lastQrAt.Valid {
		t, err := parseTime(lastQrAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse last_qr_at: %w", err)
		}
		rec.LastQrAt = &t
	}

	return &rec, nil
}

func getForUpdate(ctx context.Context, tx dbx.DBTX, id string) (*Record, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT id, name, status, created_at, updated_at, last_qr_at, last_qr_image, last_error
		   FROM sessions WHERE id = ?`, id)
	return scanRecord(row, true)
}

// Upsert creates the record if absent and applies patch, all inside one
// transaction so concurrent transitions for different identities cannot
// tear a read-modify-write cycle.
func (r *SQLiteRepository) Upsert(ctx context.Context, id string, patch Patch) (*Record, error) {
	var out *Record

	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		now := time.Now().UTC()

		rec, err := getForUpdate(ctx, tx, id)
		if errors.Is(err, common.ErrorNotFound) {
			rec = &Record{ID: id, Status: "new", CreatedAt: now}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO sessions (id, name, status, created_at, updated_at) VALUES (?, '', 'new', ?, ?)`,
				id, formatTime(now), formatTime(now)); err != nil {
				return fmt.Errorf("insert session: %w", err)
			}
		} else if err != nil {
			return err
		}

		if patch.Name != nil {
			rec.Name = *patch.Name
		}
		if patch.Status != nil {
			rec.Status = *patch.Status
		}
		if patch.LastQrAt != nil {
			rec.LastQrAt = patch.LastQrAt
		}
		if patch.LastQrImage != nil {
			rec.LastQrImage = *patch.LastQrImage
		}
		if patch.LastError != nil {
			rec.LastError = *patch.LastError
		}
		rec.UpdatedAt = now

		var lastQrAt any
		if rec.LastQrAt != nil {
			lastQrAt = formatTime(*rec.LastQrAt)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE sessions
			    SET name = ?, status = ?, updated_at = ?, last_qr_at = ?, last_qr_image = ?, last_error = ?
			  WHERE id = ?`,
			rec.Name, rec.Status, formatTime(rec.UpdatedAt), lastQrAt, rec.LastQrImage, rec.LastError, id); err != nil {
			return fmt.Errorf("update session: %w", err)
		}

		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	// callers of Upsert never need the image back
	out.LastQrImage = ""
	return out, nil
}

// Get returns the record without its QR image.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Record, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, status, created_at, updated_at, last_qr_at, last_error
		   FROM sessions WHERE id = ?`, id)
	return scanRecord(row, false)
}

// GetQR is the only read path that hydrates the QR image.
func (r *SQLiteRepository) GetQR(ctx context.Context, id string) (*Record, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, status, created_at, updated_at, last_qr_at, last_qr_image, last_error
		   FROM sessions WHERE id = ?`, id)
	return scanRecord(row, true)
}

// List returns all records, ordered by id, without QR images.
func (r *SQLiteRepository) List(ctx context.Context) ([]*Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, status, created_at, updated_at, last_qr_at, last_error
		   FROM sessions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var (
			rec       Record
			createdAt string
			updatedAt string
			lastQrAt  sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Status, &createdAt, &updatedAt, &lastQrAt, &rec.LastError); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if rec.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("parse updated_at: %w", err)
		}
		if lastQrAt.Valid {
			t, err := parseTime(lastQrAt.String)
			if err != nil {
				return nil, fmt.Errorf("parse last_qr_at: %w", err)
			}
			rec.LastQrAt = &t
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

// Delete removes one record. Returns common.ErrorNotFound if it did not
// exist.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// Clear removes every record in one transaction.
func (r *SQLiteRepository) Clear(ctx context.Context) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM sessions`); err != nil {
			return fmt.Errorf("clear sessions: %w", err)
		}
		return nil
	})
}
