package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/yyyoichi/svdlab"
	"github.com/yyyoichi/svdlab/internal/ledger"
	"github.com/yyyoichi/svdlab/internal/retention"
	"github.com/yyyoichi/svdlab/internal/server"
	"github.com/yyyoichi/svdlab/internal/storage"
)

func main() {
	addr := flag.String("addr", ":8000", "listen address")
	mediaDir := flag.String("media", "media", "directory for uploads and outputs")
	dbPath := flag.String("db", "svdlab.db", "ledger database path; keep it outside -media")
	maxUpload := flag.String("max-upload", "20MiB", "maximum upload size")
	maxSide := flag.Int("max-side", 2048, "downscale images whose longer side exceeds this; 0 disables")
	ttl := flag.Duration("retention", 24*time.Hour, "remove uploads and outputs older than this; 0 disables")
	interval := flag.Duration("sweep-interval", 10*time.Minute, "how often expired files are removed")
	powerIterations := flag.Int("power-iterations", 10, "power iterations of the randomized SVD")
	seed := flag.Uint64("seed", 42, "seed for the randomized SVD and the denoise noise")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logger := initLogger(*debug)

	maxBytes, err := humanize.ParseBytes(*maxUpload)
	if err != nil {
		logger.WithError(err).Fatal("invalid -max-upload")
	}

	store, err := storage.NewDisk(*mediaDir, "/media")
	if err != nil {
		logger.WithError(err).Fatal("failed to prepare media directory")
	}
	db, err := ledger.Open(*dbPath)
	if err != nil {
		logger.WithError(err).Fatal("failed to open ledger")
	}
	defer db.Close()

	proc, err := svdlab.New(
		svdlab.WithPowerIterations(*powerIterations),
		svdlab.WithSeed(*seed),
	)
	if err != nil {
		logger.WithError(err).Fatal("invalid processor options")
	}

	srv, err := server.New(server.Config{
		MaxUploadBytes: int64(maxBytes),
		MaxSide:        *maxSide,
		MediaDir:       store.Root(),
	}, proc, store, db, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to build server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *ttl > 0 {
		go retention.NewSweeper(store, db, *ttl, logger).Run(ctx, *interval)
	}

	hs := &http.Server{
		Addr:              *addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := hs.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("shutdown")
		}
	}()

	logger.WithFields(logrus.Fields{
		"addr":       *addr,
		"media":      store.Root(),
		"max_upload": humanize.IBytes(maxBytes),
		"retention":  ttl.String(),
	}).Info("listening")
	if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Fatal("server stopped")
	}
	logger.Info("server shut down")
}

func initLogger(debug bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if debug {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		return logger
	}
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.DateTime})
	return logger
}
