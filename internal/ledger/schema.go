package ledger

// migrations are applied in order; user_version holds how many have run.
// Append only.
var migrations = []string{
	// 1: uploaded source images and processing runs
	`CREATE TABLE uploads (
		name TEXT PRIMARY KEY,
		size INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		removed_at INTEGER
	);
	CREATE TABLE runs (
		session TEXT PRIMARY KEY,
		upload TEXT NOT NULL,
		mode TEXT NOT NULL,
		k INTEGER NOT NULL,
		patch_size INTEGER NOT NULL,
		mse REAL NOT NULL,
		psnr REAL,
		elapsed_ns INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		removed_at INTEGER
	);`,

	// 2: sweeper and history scans
	`CREATE INDEX idx_uploads_created_at ON uploads(created_at);
	CREATE INDEX idx_runs_created_at ON runs(created_at);`,
}
