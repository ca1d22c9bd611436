package server

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/yyyoichi/svdlab"
	"github.com/yyyoichi/svdlab/internal/ledger"
	"github.com/yyyoichi/svdlab/internal/raster"
	"github.com/yyyoichi/svdlab/internal/spectrum"
	"github.com/yyyoichi/svdlab/internal/storage"
)

type metricRow struct {
	Label string
	Value string
}

type resultPage struct {
	ModeLabel    string
	K            int
	PatchSize    int
	OriginalURL  string
	NoisyURL     string
	ProcessedURL string
	Metrics      []metricRow
	PlotURL      string
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")
	if !storage.ValidName(filename) {
		http.Error(w, "invalid file name", http.StatusBadRequest)
		return
	}
	req, errs := parseRequest(r.PathValue("mode"), r.PathValue("k"), r.PathValue("patch"))
	if len(errs) > 0 {
		http.Error(w, errs.Error(), http.StatusBadRequest)
		return
	}
	log := s.logger.WithFields(logrus.Fields{
		"upload": filename,
		"mode":   req.Mode.String(),
		"k":      req.Rank,
	})

	src, err := s.loadUpload(filename)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		http.NotFound(w, r)
		return
	case err != nil:
		log.WithError(err).Warn("failed to decode upload")
		http.Error(w, "the uploaded file is not a readable image", http.StatusUnprocessableEntity)
		return
	}

	res, err := s.proc.Process(r.Context(), src, req)
	switch {
	case errors.Is(err, svdlab.ErrTooSmallImage):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	case err != nil:
		log.WithError(err).Error("processing failed")
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}

	session, err := s.store.CreateSession()
	if err != nil {
		log.WithError(err).Error("failed to create session")
		http.Error(w, "failed to store results", http.StatusInternalServerError)
		return
	}
	// the sweeper only knows sessions that have a run row
	fail := func(err error, msg string) {
		log.WithError(err).WithField("session", session).Error(msg)
		if err := s.store.RemoveSession(session); err != nil {
			log.WithError(err).WithField("session", session).Warn("failed to remove session")
		}
		http.Error(w, "failed to store results", http.StatusInternalServerError)
	}
	page, err := s.writeOutputs(session, filename, res)
	if err != nil {
		fail(err, "failed to write outputs")
		return
	}
	page.OriginalURL = s.store.UploadURL(filename)

	run := ledger.Run{
		Session:   session,
		Upload:    filename,
		Mode:      req.Mode.String(),
		K:         req.Rank,
		PatchSize: req.PatchSize,
		MSE:       res.MSE,
		Elapsed:   res.Elapsed,
		CreatedAt: s.now(),
	}
	if req.Mode == svdlab.ModeDenoiseSVD {
		psnr := res.PSNR
		run.PSNR = &psnr
	}
	if err := s.ledger.InsertRun(run); err != nil {
		fail(err, "failed to record run")
		return
	}
	log.WithFields(logrus.Fields{
		"session": session,
		"mse":     res.MSE,
		"elapsed": res.Elapsed.String(),
	}).Info("image processed")

	s.render(w, http.StatusOK, "result", page)
}

func (s *Server) loadUpload(name string) (image.Image, error) {
	f, err := s.store.OpenUpload(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}
	return raster.Fit(img, s.cfg.MaxSide), nil
}

// writeOutputs stores the images and the chart of res in session and
// returns the page describing them.
func (s *Server) writeOutputs(session, filename string, res *svdlab.Result) (*resultPage, error) {
	stem := strings.TrimSuffix(filename, path.Ext(filename))
	page := &resultPage{
		ModeLabel: res.Mode.Label(),
		K:         res.Rank,
		PatchSize: res.PatchSize,
	}

	var (
		processed string
		chart     = spectrum.Chart{XName: "index", Values: res.Spectrum}
	)
	switch res.Mode {
	case svdlab.ModeSVD:
		processed = fmt.Sprintf("svd_%d_%s.png", res.Rank, stem)
		chart.Title, chart.YName, chart.Limit = "Singular values (first 100)", "singular value", 100
	case svdlab.ModeRandomizedSVD:
		processed = fmt.Sprintf("rand_svd_%d_%s.png", res.Rank, stem)
		chart.Title, chart.YName = "Randomized SVD singular values", "singular value"
	case svdlab.ModeColorSVD:
		processed = fmt.Sprintf("color_svd_%d_%s.png", res.Rank, stem)
		chart.Title, chart.YName, chart.Limit = "Singular values of the R channel (first 100)", "singular value", 100
		if len(res.ChannelSpectra) > 0 {
			chart.Values = res.ChannelSpectra[0]
		}
	case svdlab.ModeDenoiseSVD:
		processed = fmt.Sprintf("denoise_%d_%s.png", res.Rank, stem)
		chart.Title, chart.YName, chart.Limit = "Singular values of the noisy image (first 100)", "singular value", 100
		noisy := fmt.Sprintf("noisy_%s.png", stem)
		if err := s.writePNG(session, noisy, res.Noisy); err != nil {
			return nil, err
		}
		page.NoisyURL = s.store.OutputURL(session, noisy)
	case svdlab.ModePatchPCA:
		processed = fmt.Sprintf("pca_%dk_%dpx_%s.png", res.Rank, res.PatchSize, stem)
		chart.Title, chart.YName, chart.Limit = "Explained variance ratio (first 50)", "explained variance ratio", 50
	default:
		return nil, fmt.Errorf("%w: %v", svdlab.ErrUnknownMode, res.Mode)
	}

	if err := s.writePNG(session, processed, res.Image); err != nil {
		return nil, err
	}
	page.ProcessedURL = s.store.OutputURL(session, processed)

	if len(chart.Values) > 0 {
		const plot = "spectrum.html"
		f, err := s.store.CreateOutput(session, plot)
		if err != nil {
			return nil, err
		}
		if err := chart.Render(f); err != nil {
			f.Close()
			return nil, err
		}
		if err := f.Close(); err != nil {
			return nil, err
		}
		page.PlotURL = s.store.OutputURL(session, plot)
	}

	page.Metrics = metricRows(res)
	return page, nil
}

func (s *Server) writePNG(session, name string, img image.Image) error {
	f, err := s.store.CreateOutput(session, name)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func metricRows(res *svdlab.Result) []metricRow {
	var rows []metricRow
	add := func(label, value string) { rows = append(rows, metricRow{Label: label, Value: value}) }

	switch res.Mode {
	case svdlab.ModeColorSVD:
		add("MSE total", formatFloat(res.MSE))
		for i, c := range []string{"R", "G", "B"} {
			if i < len(res.ChannelMSE) {
				add("MSE "+c, formatFloat(res.ChannelMSE[i]))
			}
		}
	case svdlab.ModeDenoiseSVD:
		add("MSE after denoise", formatFloat(res.MSE))
		add("PSNR (dB)", formatPSNR(res.PSNR))
	default:
		add("MSE", formatFloat(res.MSE))
	}
	if res.Mode == svdlab.ModePatchPCA {
		add("Patch size", strconv.Itoa(res.PatchSize))
	}
	add("Time (s)", formatSeconds(res.Elapsed))
	return rows
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func formatPSNR(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

type historyRow struct {
	Session   string
	Created   string
	Upload    string
	Mode      string
	K         string
	PatchSize string
	MSE       string
	PSNR      string
	Elapsed   string
	Status    string
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	runs, err := s.ledger.RecentRuns(s.cfg.HistoryLimit)
	if err != nil {
		s.logger.WithError(err).Error("failed to list runs")
		http.Error(w, "failed to list runs", http.StatusInternalServerError)
		return
	}
	rows := make([]historyRow, 0, len(runs))
	for _, run := range runs {
		row := historyRow{
			Session: run.Session,
			Created: humanize.RelTime(run.CreatedAt, s.now(), "ago", "from now"),
			Upload:  run.Upload,
			Mode:    run.Mode,
			K:       strconv.Itoa(run.K),
			MSE:     formatFloat(run.MSE),
			PSNR:    "-",
			Elapsed: formatSeconds(run.Elapsed),
			Status:  "available",
		}
		if run.PatchSize > 0 {
			row.PatchSize = strconv.Itoa(run.PatchSize)
		}
		if run.PSNR != nil {
			row.PSNR = formatPSNR(*run.PSNR)
		} else if run.Mode == svdlab.ModeDenoiseSVD.String() {
			row.PSNR = "inf"
		}
		if run.RemovedAt != nil {
			row.Status = "removed " + humanize.RelTime(*run.RemovedAt, s.now(), "ago", "from now")
		}
		rows = append(rows, row)
	}
	s.render(w, http.StatusOK, "history", struct{ Runs []historyRow }{rows})
}
