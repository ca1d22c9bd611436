package server

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yyyoichi/svdlab"
	"github.com/yyyoichi/svdlab/internal/ledger"
	"github.com/yyyoichi/svdlab/internal/storage"
)

type fixture struct {
	srv   *Server
	h     http.Handler
	store *storage.Memory
	db    *ledger.DB
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	db, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	proc, err := svdlab.New()
	require.NoError(t, err)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := storage.NewMemory()
	srv, err := New(cfg, proc, store, db, logger)
	require.NoError(t, err)
	return &fixture{srv: srv, h: srv.Handler(), store: store, db: db}
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.NRGBA{R: uint8(x * 7), G: uint8(y * 5), B: uint8((x + y) * 3), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func uploadRequest(t *testing.T, file []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		fw, err := mw.CreateFormFile("image", "photo.png")
		require.NoError(t, err)
		_, err = fw.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) get(path string) *httptest.ResponseRecorder {
	return f.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func TestServer_Form(t *testing.T) {
	f := newFixture(t, Config{MaxUploadBytes: 1 << 20})
	rec := f.get("/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	for _, m := range svdlab.Modes() {
		assert.Contains(t, body, `value="`+m.String()+`"`)
	}
	assert.Contains(t, body, "1.0 MiB")

	assert.Equal(t, http.StatusNotFound, f.get("/nothing").Code)
}

func TestServer_UploadAndProcess(t *testing.T) {
	tests := []struct {
		mode     string
		k        string
		patch    string
		metrics  []string
		prefix   string
		hasNoisy bool
	}{
		{mode: "svd", k: "5", metrics: []string{"MSE", "Time (s)"}, prefix: "svd_5_"},
		{mode: "rand_svd", k: "5", metrics: []string{"MSE", "Time (s)"}, prefix: "rand_svd_5_"},
		{mode: "color_svd", k: "3", metrics: []string{"MSE total", "MSE R", "MSE G", "MSE B"}, prefix: "color_svd_3_"},
		{mode: "denoise_svd", k: "4", metrics: []string{"MSE after denoise", "PSNR (dB)"}, prefix: "denoise_4_", hasNoisy: true},
		{mode: "pca_patches", k: "2", patch: "4", metrics: []string{"MSE", "Patch size"}, prefix: "pca_2k_4px_"},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			f := newFixture(t, Config{})
			rec := f.do(uploadRequest(t, testPNG(t, 32, 24), map[string]string{
				"process_type": tt.mode,
				"k":            tt.k,
				"patch_size":   tt.patch,
			}))
			require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
			loc := rec.Header().Get("Location")
			require.True(t, strings.HasPrefix(loc, "/process/"), loc)
			assert.Contains(t, loc, "/"+tt.mode+"/"+tt.k+"/")

			rec = f.get(loc)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			body := rec.Body.String()
			for _, m := range tt.metrics {
				assert.Contains(t, body, m)
			}
			assert.Contains(t, body, tt.prefix)
			assert.Equal(t, tt.hasNoisy, strings.Contains(body, "noisy_"))
			assert.Contains(t, body, "spectrum.html")
			assert.Equal(t, 1, f.store.Sessions())

			runs, err := f.db.RecentRuns(10)
			require.NoError(t, err)
			require.Len(t, runs, 1)
			assert.Equal(t, tt.mode, runs[0].Mode)
			assert.Equal(t, tt.hasNoisy, runs[0].PSNR != nil)
		})
	}
}

func TestServer_UploadErrors(t *testing.T) {
	f := newFixture(t, Config{})
	img := testPNG(t, 16, 16)

	tests := []struct {
		name   string
		file   []byte
		fields map[string]string
		want   string
	}{
		{"not a number", img, map[string]string{"process_type": "svd", "k": "abc"}, "Enter a whole number."},
		{"rank too large", img, map[string]string{"process_type": "svd", "k": "501"}, "k must be between 1 and 500."},
		{"unknown mode", img, map[string]string{"process_type": "fft", "k": "5"}, "Select a valid processing type."},
		{"missing file", nil, map[string]string{"process_type": "svd", "k": "5"}, "This field is required."},
		{"not an image", []byte("hello"), map[string]string{"process_type": "svd", "k": "5"}, "Upload a valid image."},
		{"patch required", img, map[string]string{"process_type": "pca_patches", "k": "5"}, "Patch size is required for PCA."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(uploadRequest(t, tt.file, tt.fields))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}

	assert.Equal(t, 0, f.store.Sessions())
}

func TestServer_UploadTooLarge(t *testing.T) {
	f := newFixture(t, Config{MaxUploadBytes: 512})
	rec := f.do(uploadRequest(t, testPNG(t, 64, 64), map[string]string{"process_type": "svd", "k": "5"}))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestServer_ProcessErrors(t *testing.T) {
	f := newFixture(t, Config{})
	name, err := f.store.SaveUpload("png", bytes.NewReader(testPNG(t, 12, 12)))
	require.NoError(t, err)
	junk, err := f.store.SaveUpload("png", strings.NewReader("not a png"))
	require.NoError(t, err)

	tests := []struct {
		path string
		want int
	}{
		{"/process/" + name + "/svd/5/0/", http.StatusOK},
		{"/process/" + name + "/svd/0/0/", http.StatusBadRequest},
		{"/process/" + name + "/svd/x/0/", http.StatusBadRequest},
		{"/process/" + name + "/fft/5/0/", http.StatusBadRequest},
		{"/process/" + name + "/pca_patches/5/0/", http.StatusBadRequest},
		{"/process/" + name + "/pca_patches/5/10/", http.StatusUnprocessableEntity},
		{"/process/1.png/svd/5/0/", http.StatusNotFound},
		{"/process/" + junk + "/svd/5/0/", http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, f.get(tt.path).Code)
		})
	}
}

func TestServer_ProcessDownscales(t *testing.T) {
	f := newFixture(t, Config{MaxSide: 16})
	name, err := f.store.SaveUpload("png", bytes.NewReader(testPNG(t, 40, 20)))
	require.NoError(t, err)

	rec := f.get("/process/" + name + "/svd/500/0/")
	require.Equal(t, http.StatusOK, rec.Code)

	runs, err := f.db.RecentRuns(1)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	stem := strings.TrimSuffix(name, ".png")
	data, ok := f.store.Output(runs[0].Session, "svd_500_"+stem+".png")
	require.True(t, ok)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 8), img.Bounds())
}

func TestServer_History(t *testing.T) {
	f := newFixture(t, Config{})
	rec := f.get("/history")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No runs yet.")

	name, err := f.store.SaveUpload("png", bytes.NewReader(testPNG(t, 16, 16)))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, f.get("/process/"+name+"/denoise_svd/3/0/").Code)

	rec = f.get("/history")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, name)
	assert.Contains(t, body, "denoise_svd")
	assert.Contains(t, body, "available")
}

func TestParseRequest(t *testing.T) {
	req, errs := parseRequest("pca_patches", "12", "8")
	assert.Empty(t, errs)
	assert.Equal(t, svdlab.Request{Mode: svdlab.ModePatchPCA, Rank: 12, PatchSize: 8}, req)

	_, errs = parseRequest("svd", "", "x")
	assert.Equal(t, "This field is required.", errs["k"])
	assert.Equal(t, "Enter a whole number.", errs["patch_size"])
}

func TestServer_MediaHidesDirectories(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewDisk(dir, "/media")
	require.NoError(t, err)
	db, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	proc, err := svdlab.New()
	require.NoError(t, err)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	srv, err := New(Config{MediaDir: dir}, proc, store, db, logger)
	require.NoError(t, err)
	f := &fixture{srv: srv, h: srv.Handler(), db: db}

	name, err := store.SaveUpload("png", bytes.NewReader(testPNG(t, 16, 16)))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, f.get("/process/"+name+"/svd/3/0/").Code)
	runs, err := db.RecentRuns(1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	session := runs[0].Session

	rec := f.get("/media/uploads/" + name)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testPNG(t, 16, 16), rec.Body.Bytes())
	assert.Equal(t, http.StatusOK, f.get("/media/outputs/"+session+"/spectrum.html").Code)

	for _, p := range []string{
		"/media/",
		"/media/uploads/",
		"/media/uploads",
		"/media/outputs/",
		"/media/outputs/" + session + "/",
	} {
		rec := f.get(p)
		assert.Equal(t, http.StatusNotFound, rec.Code, p)
		assert.NotContains(t, rec.Body.String(), name, p)
		assert.NotContains(t, rec.Body.String(), session, p)
	}
}

// brokenLedger stores nothing.
type brokenLedger struct {
	*ledger.DB
}

func (brokenLedger) InsertUpload(ledger.Upload) error { return errors.New("disk full") }
func (brokenLedger) InsertRun(ledger.Run) error       { return errors.New("disk full") }

func TestServer_LedgerFailureRemovesFiles(t *testing.T) {
	db, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	proc, err := svdlab.New()
	require.NoError(t, err)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	store := storage.NewMemory()

	srv, err := New(Config{}, proc, store, brokenLedger{db}, logger)
	require.NoError(t, err)
	f := &fixture{srv: srv, h: srv.Handler(), store: store, db: db}

	name, err := store.SaveUpload("png", bytes.NewReader(testPNG(t, 16, 16)))
	require.NoError(t, err)
	rec := f.get("/process/" + name + "/denoise_svd/3/0/")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 0, store.Sessions())

	rec = f.do(uploadRequest(t, testPNG(t, 16, 16), map[string]string{"process_type": "svd", "k": "5"}))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, rec.Header().Get("Location"))

	// only the upload saved directly above is left
	assert.Equal(t, 1, store.Uploads())
	_, err = store.OpenUpload(name)
	assert.NoError(t, err)
}
