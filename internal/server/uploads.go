package server

import (
	"errors"
	"mime"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"

	"github.com/gin-gonic/gin"
	uploaddomain "github.com/novabot503/novacat/internal/upload/domain"
)

const uploadFormField = "file"

func (s *Server) UploadFiles(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			AbortWithError(c, uploaddomain.ErrFileTooLarge)
			return
		}
		AbortWithError(c, invalidRequestError())
		return
	}
	defer func() { _ = form.RemoveAll() }()

	headers := form.File[uploadFormField]
	if len(headers) == 0 {
		AbortWithError(c, uploaddomain.ErrNoFiles)
		return
	}

	inputs := make([]uploaddomain.Input, 0, len(headers))
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
		defer func(f multipart.File) { _ = f.Close() }(file)
		inputs = append(inputs, uploaddomain.Input{
			Name:   header.Filename,
			Size:   header.Size,
			Reader: file,
		})
	}

	files, err := s.uploadSvc.Upload(c.Request.Context(), inputs)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"files": files})
}

func (s *Server) ServeFile(c *gin.Context) {
	obj, err := s.uploadSvc.Fetch(c.Request.Context(), c.Param("path"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	contentType := obj.ContentType
	if !obj.Inline {
		contentType = "application/octet-stream"
		c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": path.Base(c.Param("path"))}))
	}
	c.Header("Cache-Control", "public, max-age=300")
	c.Header("Content-Length", strconv.Itoa(len(obj.Content)))
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("Content-Security-Policy", "sandbox")
	c.Data(http.StatusOK, contentType, obj.Content)
}
