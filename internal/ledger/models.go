package ledger

import "time"

type (
	// Upload represents a stored source image
	Upload struct {
		Name      string // Unique constraint
		Size      int64
		CreatedAt time.Time
	}

	// Run represents one processing request and its output folder
	Run struct {
		Session   string // Unique constraint
		Upload    string
		Mode      string
		K         int
		PatchSize int

		// Evaluation metrics
		MSE     float64
		PSNR    *float64 // denoise only
		Elapsed time.Duration

		CreatedAt time.Time
		RemovedAt *time.Time
	}
)
