package storage

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"
)

var _ Storage = (*Memory)(nil)

// Memory keeps everything in maps. It is meant for tests.
type Memory struct {
	mu       sync.Mutex
	now      func() time.Time
	uploads  map[string][]byte
	sessions map[string]map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{
		now:      time.Now,
		uploads:  make(map[string][]byte),
		sessions: make(map[string]map[string][]byte),
	}
}

func (m *Memory) SaveUpload(ext string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for {
		name, err := uploadName(ext, now)
		if err != nil {
			return "", err
		}
		if _, ok := m.uploads[name]; ok {
			now = now.Add(time.Millisecond)
			continue
		}
		m.uploads[name] = data
		return name, nil
	}
}

func (m *Memory) OpenUpload(name string) (io.ReadCloser, error) {
	if err := checkNames(name); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.uploads[name]
	if !ok {
		return nil, fmt.Errorf("upload %s: %w", name, ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *Memory) RemoveUpload(name string) error {
	if err := checkNames(name); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.uploads[name]; !ok {
		return fmt.Errorf("upload %s: %w", name, ErrNotFound)
	}
	delete(m.uploads, name)
	return nil
}

func (m *Memory) CreateSession() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for {
		id := sessionID()
		if _, ok := m.sessions[id]; ok {
			continue
		}
		m.sessions[id] = make(map[string][]byte)
		return id, nil
	}
}

func (m *Memory) CreateOutput(session, name string) (io.WriteCloser, error) {
	if err := checkNames(session, name); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[session]; !ok {
		return nil, fmt.Errorf("session %s: %w", session, ErrNotFound)
	}
	return &memoryFile{m: m, session: session, name: name}, nil
}

func (m *Memory) RemoveSession(session string) error {
	if err := checkNames(session); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[session]; !ok {
		return fmt.Errorf("session %s: %w", session, ErrNotFound)
	}
	delete(m.sessions, session)
	return nil
}

func (m *Memory) UploadURL(name string) string {
	return joinURL("/media", UploadsDir, name)
}

func (m *Memory) OutputURL(session, name string) string {
	return joinURL("/media", OutputsDir, session, name)
}

// Output returns the bytes written to session/name.
func (m *Memory) Output(session, name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.sessions[session][name]
	return data, ok
}

// Uploads returns the number of stored uploads.
func (m *Memory) Uploads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.uploads)
}

// Sessions returns the number of live sessions.
func (m *Memory) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

type memoryFile struct {
	bytes.Buffer
	m             *Memory
	session, name string
}

func (f *memoryFile) Close() error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	files, ok := f.m.sessions[f.session]
	if !ok {
		return fmt.Errorf("session %s: %w", f.session, ErrNotFound)
	}
	files[f.name] = bytes.Clone(f.Bytes())
	return nil
}
