// Package retention deletes uploads and session outputs older than a TTL.
package retention

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yyyoichi/svdlab/internal/storage"
)

// Ledger lists and flags what the sweeper removes.
type Ledger interface {
	ExpiredRuns(before time.Time) ([]string, error)
	ExpiredUploads(before time.Time) ([]string, error)
	MarkRunRemoved(session string, at time.Time) error
	MarkUploadRemoved(name string, at time.Time) error
}

type Sweeper struct {
	store  storage.Storage
	ledger Ledger
	ttl    time.Duration
	logger *logrus.Logger
	now    func() time.Time
}

func NewSweeper(store storage.Storage, ledger Ledger, ttl time.Duration, logger *logrus.Logger) *Sweeper {
	return &Sweeper{store: store, ledger: ledger, ttl: ttl, logger: logger, now: time.Now}
}

// Stats counts what one sweep removed.
type Stats struct {
	Sessions int
	Uploads  int
}

// Sweep removes everything created more than ttl ago.
// Entries already gone from storage are flagged as removed too.
func (s *Sweeper) Sweep(ctx context.Context) (Stats, error) {
	var stats Stats
	now := s.now()
	cutoff := now.Add(-s.ttl)

	sessions, err := s.ledger.ExpiredRuns(cutoff)
	if err != nil {
		return stats, err
	}
	for _, id := range sessions {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := s.store.RemoveSession(id); err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.logger.WithError(err).WithField("session", id).Warn("failed to remove session")
			continue
		}
		if err := s.ledger.MarkRunRemoved(id, now); err != nil {
			return stats, err
		}
		stats.Sessions++
	}

	uploads, err := s.ledger.ExpiredUploads(cutoff)
	if err != nil {
		return stats, err
	}
	for _, name := range uploads {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := s.store.RemoveUpload(name); err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.logger.WithError(err).WithField("upload", name).Warn("failed to remove upload")
			continue
		}
		if err := s.ledger.MarkUploadRemoved(name, now); err != nil {
			return stats, err
		}
		stats.Uploads++
	}
	return stats, nil
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := s.Sweep(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					s.logger.WithError(err).Error("retention sweep failed")
				}
				continue
			}
			if stats.Sessions > 0 || stats.Uploads > 0 {
				s.logger.WithFields(logrus.Fields{
					"sessions": stats.Sessions,
					"uploads":  stats.Uploads,
					"ttl":      s.ttl.String(),
				}).Info("retention sweep")
			}
		}
	}
}
