package domain

import (
	"context"
	"io"
	"strings"
)

// Input is one multipart file part.
type Input struct {
	Name   string
	Size   int64
	Reader io.Reader
}

// File is a stored upload as reported back to the client.
type File struct {
	Path        string `json:"path"`
	URL         string `json:"url"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// Object is a fetched upload body. Inline is false for content that a
// browser could execute, which is then served as a download.
type Object struct {
	Content     []byte
	ContentType string
	Inline      bool
}

var inlineTypes = map[string]bool{
	"text/plain":      true,
	"image/png":       true,
	"image/jpeg":      true,
	"image/gif":       true,
	"image/webp":      true,
	"image/bmp":       true,
	"video/mp4":       true,
	"video/webm":      true,
	"audio/mpeg":      true,
	"audio/ogg":       true,
	"audio/wav":       true,
	"application/pdf": true,
}

// InlineSafe reports whether contentType may be rendered by the browser.
// HTML, SVG, XML and scripts are not.
func InlineSafe(contentType string) bool {
	mediaType, _, _ := strings.Cut(contentType, ";")
	return inlineTypes[strings.ToLower(strings.TrimSpace(mediaType))]
}

type Service interface {
	Upload(ctx context.Context, inputs []Input) ([]File, error)
	Fetch(ctx context.Context, path string) (Object, error)
}

// Storage persists upload bodies under slash-separated paths.
type Storage interface {
	Put(ctx context.Context, path string, content []byte, message string) error
	Get(ctx context.Context, path string, maxBytes int64) ([]byte, error)
}
