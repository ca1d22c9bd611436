// Package storage keeps uploaded images and per-request outputs.
package storage

import (
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrInvalidName = errors.New("invalid name")
)

const (
	UploadsDir = "uploads"
	OutputsDir = "outputs"
)

// Storage abstracts where uploads and session outputs live.
type Storage interface {
	// SaveUpload stores r under a timestamp-derived name with the given
	// extension (without dot) and returns that name.
	SaveUpload(ext string, r io.Reader) (string, error)
	OpenUpload(name string) (io.ReadCloser, error)
	RemoveUpload(name string) error

	// CreateSession allocates a fresh, uniquely named output folder.
	CreateSession() (string, error)
	CreateOutput(session, name string) (io.WriteCloser, error)
	RemoveSession(session string) error

	UploadURL(name string) string
	OutputURL(session, name string) string
}

var (
	nameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
	extRe  = regexp.MustCompile(`^[A-Za-z0-9]{1,8}$`)
)

// ValidName reports whether name is a single safe path element.
func ValidName(name string) bool {
	return nameRe.MatchString(name) && !strings.Contains(name, "..")
}

func uploadName(ext string, now time.Time) (string, error) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if !extRe.MatchString(ext) {
		return "", fmt.Errorf("%w: extension %q", ErrInvalidName, ext)
	}
	return fmt.Sprintf("%d.%s", now.UnixMilli(), ext), nil
}

func sessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func checkNames(names ...string) error {
	for _, n := range names {
		if !ValidName(n) {
			return fmt.Errorf("%w: %q", ErrInvalidName, n)
		}
	}
	return nil
}

func joinURL(prefix string, elem ...string) string {
	return strings.TrimSuffix(prefix, "/") + "/" + path.Join(elem...)
}
