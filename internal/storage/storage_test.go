package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorage(t *testing.T) {
	disk, err := NewDisk(t.TempDir(), "/media/")
	require.NoError(t, err)

	test := []struct {
		name  string
		store Storage
	}{
		{name: "disk", store: disk},
		{name: "memory", store: NewMemory()},
	}
	for _, tt := range test {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.store

			name, err := s.SaveUpload(".PNG", strings.NewReader("image-bytes"))
			require.NoError(t, err)
			assert.Regexp(t, `^\d+\.png$`, name)
			assert.Equal(t, "/media/uploads/"+name, s.UploadURL(name))

			r, err := s.OpenUpload(name)
			require.NoError(t, err)
			data, err := io.ReadAll(r)
			require.NoError(t, err)
			require.NoError(t, r.Close())
			assert.Equal(t, "image-bytes", string(data))

			session, err := s.CreateSession()
			require.NoError(t, err)
			assert.Len(t, session, 8)

			w, err := s.CreateOutput(session, "out.png")
			require.NoError(t, err)
			_, err = w.Write([]byte("png"))
			require.NoError(t, err)
			require.NoError(t, w.Close())
			assert.Equal(t, "/media/outputs/"+session+"/out.png", s.OutputURL(session, "out.png"))

			require.NoError(t, s.RemoveSession(session))
			assert.True(t, errors.Is(s.RemoveSession(session), ErrNotFound))
			_, err = s.CreateOutput(session, "out.png")
			assert.True(t, errors.Is(err, ErrNotFound))

			require.NoError(t, s.RemoveUpload(name))
			_, err = s.OpenUpload(name)
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestStorage_UniqueNames(t *testing.T) {
	fixed := time.UnixMilli(1700000000000)
	disk, err := NewDisk(t.TempDir(), "/media")
	require.NoError(t, err)
	disk.now = func() time.Time { return fixed }
	mem := NewMemory()
	mem.now = func() time.Time { return fixed }

	for _, s := range []Storage{disk, mem} {
		a, err := s.SaveUpload("jpg", strings.NewReader("a"))
		require.NoError(t, err)
		b, err := s.SaveUpload("jpg", strings.NewReader("b"))
		require.NoError(t, err)
		assert.Equal(t, "1700000000000.jpg", a)
		assert.Equal(t, "1700000000001.jpg", b)

		s1, err := s.CreateSession()
		require.NoError(t, err)
		s2, err := s.CreateSession()
		require.NoError(t, err)
		assert.NotEqual(t, s1, s2)
	}
}

func TestDisk_Layout(t *testing.T) {
	root := t.TempDir()
	disk, err := NewDisk(root, "/media")
	require.NoError(t, err)

	session, err := disk.CreateSession()
	require.NoError(t, err)
	w, err := disk.CreateOutput(session, "plot.html")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = os.Stat(filepath.Join(root, OutputsDir, session, "plot.html"))
	assert.NoError(t, err)
}

func TestValidName(t *testing.T) {
	assert.True(t, ValidName("1700000000000.png"))
	assert.True(t, ValidName("svd_10_a.png"))
	assert.False(t, ValidName(""))
	assert.False(t, ValidName("../etc"))
	assert.False(t, ValidName("a/b"))
	assert.False(t, ValidName(".hidden"))
	assert.False(t, ValidName("a..b"))

	_, err := NewMemory().SaveUpload("p/ng", strings.NewReader(""))
	assert.True(t, errors.Is(err, ErrInvalidName))
}

func TestStorage_InvalidNames(t *testing.T) {
	disk, err := NewDisk(t.TempDir(), "/media")
	require.NoError(t, err)

	for _, s := range []Storage{disk, NewMemory()} {
		for _, name := range []string{"../secret", "a/b", ""} {
			_, err := s.OpenUpload(name)
			assert.ErrorIs(t, err, ErrInvalidName, "%T.OpenUpload(%q)", s, name)
			assert.ErrorIs(t, s.RemoveUpload(name), ErrInvalidName, "%T.RemoveUpload(%q)", s, name)
			assert.ErrorIs(t, s.RemoveSession(name), ErrInvalidName, "%T.RemoveSession(%q)", s, name)
			_, err = s.CreateOutput(name, "out.png")
			assert.ErrorIs(t, err, ErrInvalidName, "%T.CreateOutput(%q)", s, name)
		}
	}
}
