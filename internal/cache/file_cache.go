package cache

import (
	"strings"
	"time"
)

const (
	defaultFileTTL        = 5 * time.Minute
	defaultFileMaxEntries = 256
	// Larger objects are streamed through without caching.
	MaxCachedFileBytes = 2 << 20
)

// File is a proxied upload body with its detected content type.
type File struct {
	Content     []byte
	ContentType string
}

// FileCache keeps recently proxied uploads in memory.
type FileCache interface {
	Get(path string) (File, bool)
	Set(path string, file File)
}

type fileCache struct {
	files Cache[string, File]
	ttl   time.Duration
}

func NewFileCache(ttl time.Duration, opts ...Option) FileCache {
	if ttl <= 0 {
		ttl = defaultFileTTL
	}
	opts = append([]Option{WithMaxEntries(defaultFileMaxEntries)}, opts...)
	return &fileCache{
		files: NewTTLCache[string, File](opts...),
		ttl:   ttl,
	}
}

func (c *fileCache) Get(path string) (File, bool) {
	return c.files.Get(fileKey(path))
}

func (c *fileCache) Set(path string, file File) {
	if len(file.Content) == 0 || len(file.Content) > MaxCachedFileBytes {
		return
	}
	c.files.Set(fileKey(path), file, c.ttl)
}

func fileKey(path string) string {
	return strings.Trim(strings.TrimSpace(path), "/")
}
