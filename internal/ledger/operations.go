package ledger

import (
	"database/sql"
	"fmt"
	"math"
	"time"
)

// InsertUpload records a stored upload. Recording the same name twice is a no-op.
func (d *DB) InsertUpload(u Upload) error {
	_, err := d.db.Exec(
		"INSERT OR IGNORE INTO uploads (name, size, created_at) VALUES (?, ?, ?)",
		u.Name, u.Size, u.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert upload: %w", err)
	}
	return nil
}

// InsertRun records a processing run.
func (d *DB) InsertRun(r Run) error {
	var psnr sql.NullFloat64
	// +Inf (perfect reconstruction) is stored as NULL
	if r.PSNR != nil && !math.IsInf(*r.PSNR, 0) && !math.IsNaN(*r.PSNR) {
		psnr = sql.NullFloat64{Float64: *r.PSNR, Valid: true}
	}
	_, err := d.db.Exec(
		`INSERT INTO runs (session, upload, mode, k, patch_size, mse, psnr, elapsed_ns, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Session, r.Upload, r.Mode, r.K, r.PatchSize, r.MSE, psnr,
		r.Elapsed.Nanoseconds(), r.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// ExpiredRuns returns the sessions created before t whose folders still exist.
func (d *DB) ExpiredRuns(t time.Time) ([]string, error) {
	return d.names("SELECT session FROM runs WHERE removed_at IS NULL AND created_at < ? ORDER BY created_at", t)
}

// ExpiredUploads returns the uploads created before t that still exist.
func (d *DB) ExpiredUploads(t time.Time) ([]string, error) {
	return d.names("SELECT name FROM uploads WHERE removed_at IS NULL AND created_at < ? ORDER BY created_at", t)
}

// MarkRunRemoved flags the output folder of session as deleted.
func (d *DB) MarkRunRemoved(session string, at time.Time) error {
	if _, err := d.db.Exec("UPDATE runs SET removed_at = ? WHERE session = ?", at.UnixMilli(), session); err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

// MarkUploadRemoved flags an upload as deleted.
func (d *DB) MarkUploadRemoved(name string, at time.Time) error {
	if _, err := d.db.Exec("UPDATE uploads SET removed_at = ? WHERE name = ?", at.UnixMilli(), name); err != nil {
		return fmt.Errorf("failed to update upload: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (d *DB) RecentRuns(limit int) ([]*Run, error) {
	rows, err := d.db.Query(
		`SELECT session, upload, mode, k, patch_size, mse, psnr, elapsed_ns, created_at, removed_at
		 FROM runs ORDER BY created_at DESC, session LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var (
			r         Run
			psnr      sql.NullFloat64
			elapsed   int64
			createdAt int64
			removedAt sql.NullInt64
		)
		err := rows.Scan(
			&r.Session,
			&r.Upload,
			&r.Mode,
			&r.K,
			&r.PatchSize,
			&r.MSE,
			&psnr,
			&elapsed,
			&createdAt,
			&removedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan: %w", err)
		}
		if psnr.Valid {
			r.PSNR = &psnr.Float64
		}
		r.Elapsed = time.Duration(elapsed)
		r.CreatedAt = time.UnixMilli(createdAt)
		if removedAt.Valid {
			t := time.UnixMilli(removedAt.Int64)
			r.RemovedAt = &t
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}

func (d *DB) names(query string, t time.Time) ([]string, error) {
	rows, err := d.db.Query(query, t.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to scan: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}
