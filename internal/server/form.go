package server

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/yyyoichi/svdlab"
	"github.com/yyyoichi/svdlab/internal/ledger"
)

const (
	defaultRank      = 50
	defaultPatchSize = 8
)

type modeOption struct {
	Value    string
	Label    string
	Selected bool
}

type formPage struct {
	Modes        []modeOption
	K            string
	PatchSize    string
	Errors       svdlab.ValidationErrors
	MinRank      int
	MaxRank      int
	MinPatchSize int
	MaxPatchSize int
	MaxUpload    string
}

func (s *Server) formPage(mode, k, patch string, errs svdlab.ValidationErrors) formPage {
	if errs == nil {
		errs = svdlab.ValidationErrors{}
	}
	p := formPage{
		K:            k,
		PatchSize:    patch,
		Errors:       errs,
		MinRank:      svdlab.MinRank,
		MaxRank:      svdlab.MaxRank,
		MinPatchSize: svdlab.MinPatchSize,
		MaxPatchSize: svdlab.MaxPatchSize,
		MaxUpload:    humanize.IBytes(uint64(s.cfg.MaxUploadBytes)),
	}
	for _, m := range svdlab.Modes() {
		p.Modes = append(p.Modes, modeOption{Value: m.String(), Label: m.Label(), Selected: m.String() == mode})
	}
	return p
}

func (s *Server) handleForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "index", s.formPage("", strconv.Itoa(defaultRank), strconv.Itoa(defaultPatchSize), nil))
}

// handleUpload validates the form, stores the image and redirects to the
// processing URL. Nothing is computed here.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.render(w, http.StatusRequestEntityTooLarge, "index", s.formPage("", strconv.Itoa(defaultRank), "", svdlab.ValidationErrors{
				"image": fmt.Sprintf("The file is larger than %s.", humanize.IBytes(uint64(s.cfg.MaxUploadBytes))),
			}))
			return
		}
		if !errors.Is(err, http.ErrNotMultipart) {
			http.Error(w, "malformed form", http.StatusBadRequest)
			return
		}
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	modeValue := r.FormValue("process_type")
	kValue := strings.TrimSpace(r.FormValue("k"))
	patchValue := strings.TrimSpace(r.FormValue("patch_size"))

	req, errs := parseRequest(modeValue, kValue, patchValue)
	data, format, err := readImage(r)
	if err != nil {
		errs["image"] = err.Error()
	}
	if len(errs) > 0 {
		s.render(w, http.StatusBadRequest, "index", s.formPage(modeValue, kValue, patchValue, errs))
		return
	}

	name, err := s.store.SaveUpload(format, bytes.NewReader(data))
	if err != nil {
		s.logger.WithError(err).Error("failed to save upload")
		http.Error(w, "failed to save upload", http.StatusInternalServerError)
		return
	}
	if err := s.ledger.InsertUpload(ledger.Upload{Name: name, Size: int64(len(data)), CreatedAt: s.now()}); err != nil {
		s.logger.WithError(err).WithField("upload", name).Error("failed to record upload")
		if err := s.store.RemoveUpload(name); err != nil {
			s.logger.WithError(err).WithField("upload", name).Warn("failed to remove upload")
		}
		http.Error(w, "failed to save upload", http.StatusInternalServerError)
		return
	}
	s.logger.WithFields(logrus.Fields{
		"upload": name,
		"size":   humanize.Bytes(uint64(len(data))),
		"mode":   req.Mode.String(),
		"k":      req.Rank,
	}).Info("image uploaded")

	http.Redirect(w, r, processPath(name, req), http.StatusSeeOther)
}

func processPath(name string, req svdlab.Request) string {
	return fmt.Sprintf("/process/%s/%s/%d/%d/", url.PathEscape(name), req.Mode, req.Rank, req.PatchSize)
}

// parseRequest turns raw form values into a request. Every problem is
// reported against its field.
func parseRequest(mode, k, patch string) (svdlab.Request, svdlab.ValidationErrors) {
	var req svdlab.Request
	errs := svdlab.ValidationErrors{}

	m, err := svdlab.ParseMode(mode)
	if err != nil {
		errs["process_type"] = "Select a valid processing type."
	}
	req.Mode = m

	if k == "" {
		errs["k"] = string(errRequired)
	} else if v, err := strconv.Atoi(k); err != nil {
		errs["k"] = "Enter a whole number."
	} else {
		req.Rank = v
	}

	if patch != "" {
		if v, err := strconv.Atoi(patch); err != nil {
			errs["patch_size"] = "Enter a whole number."
		} else {
			req.PatchSize = v
		}
	}

	if err := req.Validate(); err != nil {
		var verr svdlab.ValidationErrors
		if errors.As(err, &verr) {
			for f, msg := range verr {
				// parse errors are more specific
				if _, ok := errs[f]; !ok {
					errs[f] = msg
				}
			}
		}
	}
	return req, errs
}

// formError is a message shown next to a form field.
type formError string

func (e formError) Error() string { return string(e) }

const (
	errRequired     formError = "This field is required."
	errUnreadable   formError = "The file could not be read."
	errInvalidImage formError = "Upload a valid image. The file you uploaded was either not an image or a corrupted image."
)

// readImage reads the uploaded file and checks that it decodes as an image.
// It returns the bytes and the file extension to store them under.
func readImage(r *http.Request) ([]byte, string, error) {
	f, _, err := r.FormFile("image")
	if err != nil {
		return nil, "", errRequired
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", errUnreadable
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", errInvalidImage
	}
	if format == "jpeg" {
		format = "jpg"
	}
	return data, format, nil
}
