package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/novabot503/novacat/internal/config"
	"github.com/novabot503/novacat/internal/upload/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type memoryStorage struct {
	mu     sync.Mutex
	files  map[string][]byte
	gets   int
	putErr error
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{files: make(map[string][]byte)}
}

func (m *memoryStorage) Put(ctx context.Context, path string, content []byte, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.files[path] = append([]byte(nil), content...)
	return nil
}

func (m *memoryStorage) Get(ctx context.Context, path string, maxBytes int64) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	body, ok := m.files[path]
	if !ok {
		return nil, domain.ErrFileNotFound
	}
	return body, nil
}

func newService(t *testing.T, storage domain.Storage, maxBytes int64) *Service {
	t.Helper()
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	return New(Params{
		Config: config.Config{
			PublicURL: "https://cdn.example.com/",
			Upload:    config.UploadConfig{Dir: "uploads", MaxBytes: maxBytes},
		},
		Log:     zap.NewNop(),
		Storage: storage,
		GenID:   node,
	}).(*Service)
}

func TestUploadStoresFiles(t *testing.T) {
	storage := newMemoryStorage()
	svc := newService(t, storage, 1024)

	files, err := svc.Upload(context.Background(), []domain.Input{
		{Name: "My Cat Photo.PNG", Reader: bytes.NewReader(pngHeader)},
		{Name: "notes", Reader: strings.NewReader("plain text body")},
	})
	require.NoError(t, err)
	require.Len(t, files, 2)

	assert.True(t, strings.HasPrefix(files[0].Path, "uploads/"))
	assert.True(t, strings.HasSuffix(files[0].Path, "-my-cat-photo.png"), files[0].Path)
	assert.Equal(t, "image/png", files[0].ContentType)
	assert.Equal(t, "https://cdn.example.com/files/"+files[0].Path, files[0].URL)
	assert.Equal(t, int64(len(pngHeader)), files[0].Size)

	assert.True(t, strings.HasSuffix(files[1].Path, "-notes.txt"), files[1].Path)
	assert.Equal(t, "text/plain; charset=utf-8", files[1].ContentType)
	assert.Len(t, storage.files, 2)
}

func TestUploadRejectsBeforeStoring(t *testing.T) {
	storage := newMemoryStorage()
	svc := newService(t, storage, 4)

	_, err := svc.Upload(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrNoFiles)

	_, err = svc.Upload(context.Background(), []domain.Input{
		{Name: "ok.txt", Reader: strings.NewReader("ok")},
		{Name: "big.txt", Reader: strings.NewReader("too big")},
	})
	assert.ErrorIs(t, err, domain.ErrFileTooLarge)

	_, err = svc.Upload(context.Background(), []domain.Input{{Name: "empty.txt", Reader: strings.NewReader("")}})
	assert.ErrorIs(t, err, domain.ErrEmptyFile)

	assert.Empty(t, storage.files)
}

func TestUploadWrapsStorageError(t *testing.T) {
	storage := newMemoryStorage()
	storage.putErr = errors.New("github down")
	svc := newService(t, storage, 1024)

	_, err := svc.Upload(context.Background(), []domain.Input{{Name: "a.txt", Reader: strings.NewReader("a")}})
	assert.ErrorIs(t, err, domain.ErrStorageFailure)
}

func TestFetchUsesCache(t *testing.T) {
	storage := newMemoryStorage()
	storage.files["uploads/1-a.png"] = pngHeader
	svc := newService(t, storage, 1024)

	obj, err := svc.Fetch(context.Background(), "/uploads/1-a.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", obj.ContentType)
	assert.True(t, obj.Inline)

	obj, err = svc.Fetch(context.Background(), "uploads/1-a.png")
	require.NoError(t, err)
	assert.True(t, obj.Inline)
	assert.Equal(t, 1, storage.gets)
}

func TestFetchMarksActiveContentForDownload(t *testing.T) {
	storage := newMemoryStorage()
	storage.files["uploads/1-x.html"] = []byte("<!DOCTYPE html><html><body><script>alert(1)</script></body></html>")
	storage.files["uploads/2-x.svg"] = []byte(`<svg xmlns="http://www.w3.org/2000/svg" onload="alert(1)"></svg>`)
	storage.files["uploads/3-x.txt"] = []byte("plain notes")
	svc := newService(t, storage, 1024)

	for path, inline := range map[string]bool{
		"uploads/1-x.html": false,
		"uploads/2-x.svg":  false,
		"uploads/3-x.txt":  true,
	} {
		obj, err := svc.Fetch(context.Background(), path)
		require.NoError(t, err, path)
		assert.Equal(t, inline, obj.Inline, "%s detected as %s", path, obj.ContentType)
	}
}

func TestInlineSafe(t *testing.T) {
	assert.True(t, domain.InlineSafe("text/plain; charset=utf-8"))
	assert.True(t, domain.InlineSafe("IMAGE/PNG"))
	assert.True(t, domain.InlineSafe("application/pdf"))
	assert.False(t, domain.InlineSafe("text/html; charset=utf-8"))
	assert.False(t, domain.InlineSafe("image/svg+xml"))
	assert.False(t, domain.InlineSafe("text/xml; charset=utf-8"))
	assert.False(t, domain.InlineSafe("text/javascript"))
	assert.False(t, domain.InlineSafe(""))
}

func TestFetchRejectsUnsafePaths(t *testing.T) {
	svc := newService(t, newMemoryStorage(), 1024)
	for _, p := range []string{"", "/", "secrets.txt", "uploads/../go.mod", "uploads//a", "uploadsx/a"} {
		_, err := svc.Fetch(context.Background(), p)
		assert.ErrorIs(t, err, domain.ErrInvalidPath, p)
	}

	_, err := svc.Fetch(context.Background(), "uploads/missing.txt")
	assert.ErrorIs(t, err, domain.ErrFileNotFound)
}

func TestFileName(t *testing.T) {
	id := snowflake.ID(42)
	assert.Equal(t, "42-report-final.pdf", FileName(id, `C:\docs\Report Final.PDF`, ".pdf"))
	assert.Equal(t, "42-file.bin", FileName(id, "", ".bin"))
	assert.Equal(t, "42-archive", FileName(id, "archive", ""))
}
