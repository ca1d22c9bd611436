// Package server is the HTTP front end: upload form, processing and results.
package server

import (
	"context"
	"embed"
	"html/template"
	"image"
	"io/fs"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yyyoichi/svdlab"
	"github.com/yyyoichi/svdlab/internal/ledger"
	"github.com/yyyoichi/svdlab/internal/storage"
)

//go:embed templates/*.html
var templateFS embed.FS

// Processor runs one low-rank approximation.
type Processor interface {
	Process(ctx context.Context, src image.Image, req svdlab.Request) (*svdlab.Result, error)
}

// Ledger records uploads and runs.
type Ledger interface {
	InsertUpload(u ledger.Upload) error
	InsertRun(r ledger.Run) error
	RecentRuns(limit int) ([]*ledger.Run, error)
}

type Config struct {
	// MaxUploadBytes bounds the multipart body.
	MaxUploadBytes int64
	// MaxSide downscales larger images before processing; 0 keeps the original size.
	MaxSide int
	// MediaDir is served under /media/ when set.
	MediaDir string
	// HistoryLimit is the number of runs shown on /history.
	HistoryLimit int
}

type Server struct {
	cfg    Config
	proc   Processor
	store  storage.Storage
	ledger Ledger
	logger *logrus.Logger
	now    func() time.Time

	pages map[string]*template.Template
}

func New(cfg Config, proc Processor, store storage.Storage, ledger Ledger, logger *logrus.Logger) (*Server, error) {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 20 << 20
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	s := &Server{
		cfg:    cfg,
		proc:   proc,
		store:  store,
		ledger: ledger,
		logger: logger,
		now:    time.Now,
		pages:  make(map[string]*template.Template),
	}
	for _, page := range []string{"index", "result", "history"} {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+page+".html")
		if err != nil {
			return nil, err
		}
		s.pages[page] = t
	}
	return s, nil
}

// Handler returns the routes of the application.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleForm)
	mux.HandleFunc("POST /{$}", s.handleUpload)
	mux.HandleFunc("GET /process/{filename}/{mode}/{k}/{patch}/", s.handleProcess)
	mux.HandleFunc("GET /history", s.handleHistory)
	if s.cfg.MediaDir != "" {
		mux.Handle("GET /media/", http.StripPrefix("/media/", http.FileServer(filesOnly{http.Dir(s.cfg.MediaDir)})))
	}
	return s.logRequests(mux)
}

// filesOnly hides directories so that upload names and session ids
// cannot be listed.
type filesOnly struct {
	http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	file, err := f.FileSystem.Open(name)
	if err != nil {
		return nil, err
	}
	st, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if st.IsDir() {
		file.Close()
		return nil, fs.ErrNotExist
	}
	return file, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).String(),
		}).Debug("request")
	})
}

func (s *Server) render(w http.ResponseWriter, status int, page string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.pages[page].ExecuteTemplate(w, "layout", data); err != nil {
		s.logger.WithError(err).WithField("page", page).Error("failed to render page")
	}
}
