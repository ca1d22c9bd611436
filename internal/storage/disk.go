package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

var _ Storage = (*Disk)(nil)

// Disk stores files below a root directory:
//
//	<root>/uploads/<unix-millis>.<ext>
//	<root>/outputs/<session>/<name>
//
// URLs are built from the same layout under urlPrefix.
type Disk struct {
	root      string
	urlPrefix string
	now       func() time.Time
}

// NewDisk creates the uploads and outputs directories under root.
func NewDisk(root, urlPrefix string) (*Disk, error) {
	for _, dir := range []string{UploadsDir, OutputsDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", dir, err)
		}
	}
	return &Disk{root: root, urlPrefix: urlPrefix, now: time.Now}, nil
}

// Root returns the directory served under the URL prefix.
func (d *Disk) Root() string { return d.root }

func (d *Disk) SaveUpload(ext string, r io.Reader) (string, error) {
	now := d.now()
	for range 100 {
		name, err := uploadName(ext, now)
		if err != nil {
			return "", err
		}
		f, err := os.OpenFile(filepath.Join(d.root, UploadsDir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, fs.ErrExist) {
			// same millisecond, take the next one
			now = now.Add(time.Millisecond)
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create upload: %w", err)
		}
		if _, err := io.Copy(f, r); err != nil {
			f.Close()
			os.Remove(f.Name())
			return "", fmt.Errorf("failed to write upload: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("failed to close upload: %w", err)
		}
		return name, nil
	}
	return "", fmt.Errorf("failed to allocate upload name")
}

func (d *Disk) OpenUpload(name string) (io.ReadCloser, error) {
	if err := checkNames(name); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(d.root, UploadsDir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("upload %s: %w", name, ErrNotFound)
	}
	return f, err
}

func (d *Disk) RemoveUpload(name string) error {
	if err := checkNames(name); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(d.root, UploadsDir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("upload %s: %w", name, ErrNotFound)
	}
	return err
}

func (d *Disk) CreateSession() (string, error) {
	for range 10 {
		id := sessionID()
		err := os.Mkdir(filepath.Join(d.root, OutputsDir, id), 0755)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create session directory: %w", err)
		}
		return id, nil
	}
	return "", fmt.Errorf("failed to allocate session id")
}

func (d *Disk) CreateOutput(session, name string) (io.WriteCloser, error) {
	if err := checkNames(session, name); err != nil {
		return nil, err
	}
	dir := filepath.Join(d.root, OutputsDir, session)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("session %s: %w", session, ErrNotFound)
	}
	return os.Create(filepath.Join(dir, name))
}

func (d *Disk) RemoveSession(session string) error {
	if err := checkNames(session); err != nil {
		return err
	}
	dir := filepath.Join(d.root, OutputsDir, session)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("session %s: %w", session, ErrNotFound)
	}
	return os.RemoveAll(dir)
}

func (d *Disk) UploadURL(name string) string {
	return joinURL(d.urlPrefix, UploadsDir, name)
}

func (d *Disk) OutputURL(session, name string) string {
	return joinURL(d.urlPrefix, OutputsDir, session, name)
}
