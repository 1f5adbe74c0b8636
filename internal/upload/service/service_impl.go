package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gosimple/slug"
	"github.com/novabot503/novacat/internal/cache"
	"github.com/novabot503/novacat/internal/config"
	obslogger "github.com/novabot503/novacat/internal/observability/logger"
	"github.com/novabot503/novacat/internal/observability/metrics"
	"github.com/novabot503/novacat/internal/upload/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultDir      = "uploads"
	defaultMaxBytes = 25 << 20
	maxFilesPerCall = 10
)

type Params struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Storage domain.Storage
	GenID   *snowflake.Node
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	log       *zap.Logger
	storage   domain.Storage
	genID     *snowflake.Node
	metrics   *metrics.Metrics
	files     cache.FileCache
	dir       string
	publicURL string
	maxBytes  int64
}

func New(p Params) domain.Service {
	dir := strings.Trim(strings.TrimSpace(p.Config.Upload.Dir), "/")
	if dir == "" {
		dir = defaultDir
	}
	maxBytes := p.Config.Upload.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &Service{
		log:       p.Log.Named("upload.service"),
		storage:   p.Storage,
		genID:     p.GenID,
		metrics:   p.Metrics,
		files:     cache.NewFileCache(p.Config.Upload.CacheTTL),
		dir:       dir,
		publicURL: strings.TrimRight(p.Config.PublicURL, "/"),
		maxBytes:  maxBytes,
	}
}

// Upload validates every part before committing any of them.
func (s *Service) Upload(ctx context.Context, inputs []domain.Input) ([]domain.File, error) {
	ctx, span := otel.Tracer("novacat/upload").Start(ctx, "upload.Upload")
	defer span.End()
	span.SetAttributes(attribute.Int("files", len(inputs)))

	if len(inputs) == 0 {
		return nil, domain.ErrNoFiles
	}
	if len(inputs) > maxFilesPerCall {
		return nil, fmt.Errorf("%w: at most %d files per request", domain.ErrFileTooLarge, maxFilesPerCall)
	}

	type pending struct {
		name    string
		content []byte
		mime    *mimetype.MIME
	}
	parts := make([]pending, 0, len(inputs))
	for _, in := range inputs {
		if in.Size > s.maxBytes {
			s.metrics.RecordUpload(ctx, "too_large")
			return nil, domain.ErrFileTooLarge
		}
		content, err := io.ReadAll(io.LimitReader(in.Reader, s.maxBytes+1))
		if err != nil {
			return nil, err
		}
		if int64(len(content)) > s.maxBytes {
			s.metrics.RecordUpload(ctx, "too_large")
			return nil, domain.ErrFileTooLarge
		}
		if len(content) == 0 {
			s.metrics.RecordUpload(ctx, "empty")
			return nil, domain.ErrEmptyFile
		}
		parts = append(parts, pending{name: in.Name, content: content, mime: mimetype.Detect(content)})
	}

	log := obslogger.WithContext(ctx, s.log)
	files := make([]domain.File, 0, len(parts))
	for _, part := range parts {
		id := s.genID.Generate()
		objectPath := s.dir + "/" + FileName(id, part.name, part.mime.Extension())

		if err := s.storage.Put(ctx, objectPath, part.content, "upload "+id.String()); err != nil {
			log.Error("storing upload failed", zap.String("path", objectPath), zap.Error(err))
			s.metrics.RecordUpload(ctx, "failed")
			return files, fmt.Errorf("%w: %v", domain.ErrStorageFailure, err)
		}
		s.files.Set(objectPath, cache.File{Content: part.content, ContentType: part.mime.String()})
		s.metrics.RecordUpload(ctx, "success")

		log.Info("upload stored",
			zap.String("path", objectPath),
			zap.Int("size", len(part.content)),
			zap.String("content_type", part.mime.String()),
		)
		files = append(files, domain.File{
			Path:        objectPath,
			URL:         s.publicURL + "/files/" + objectPath,
			Size:        int64(len(part.content)),
			ContentType: part.mime.String(),
		})
	}
	return files, nil
}

func (s *Service) Fetch(ctx context.Context, rawPath string) (domain.Object, error) {
	objectPath, err := s.cleanPath(rawPath)
	if err != nil {
		return domain.Object{}, err
	}
	if cached, ok := s.files.Get(objectPath); ok {
		return domain.Object{Content: cached.Content, ContentType: cached.ContentType, Inline: domain.InlineSafe(cached.ContentType)}, nil
	}

	content, err := s.storage.Get(ctx, objectPath, s.maxBytes)
	if err != nil {
		if errors.Is(err, domain.ErrFileNotFound) {
			return domain.Object{}, err
		}
		obslogger.WithContext(ctx, s.log).Warn("fetching upload failed", zap.String("path", objectPath), zap.Error(err))
		return domain.Object{}, fmt.Errorf("%w: %v", domain.ErrStorageFailure, err)
	}

	contentType := mimetype.Detect(content).String()
	obj := domain.Object{Content: content, ContentType: contentType, Inline: domain.InlineSafe(contentType)}
	s.files.Set(objectPath, cache.File{Content: obj.Content, ContentType: obj.ContentType})
	return obj, nil
}

// cleanPath only admits paths inside the upload directory.
func (s *Service) cleanPath(raw string) (string, error) {
	trimmed := strings.Trim(strings.TrimSpace(raw), "/")
	if trimmed == "" {
		return "", domain.ErrInvalidPath
	}
	for _, segment := range strings.Split(trimmed, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return "", domain.ErrInvalidPath
		}
	}
	if !strings.HasPrefix(trimmed, s.dir+"/") {
		return "", domain.ErrInvalidPath
	}
	return trimmed, nil
}

// FileName builds "<id>-<slug>.<ext>". The client extension wins over the
// detected one.
func FileName(id snowflake.ID, original, detectedExt string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(original), "\\", "/"))
	ext := path.Ext(base)
	stem := slug.Make(strings.TrimSuffix(base, ext))
	if stem == "" || stem == "." {
		stem = "file"
	}

	ext = slug.Make(strings.TrimPrefix(ext, "."))
	if ext == "" {
		ext = slug.Make(strings.TrimPrefix(detectedExt, "."))
	}
	name := id.String() + "-" + stem
	if ext != "" {
		name += "." + ext
	}
	return name
}
