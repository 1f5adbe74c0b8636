package domain

import "errors"

var (
	ErrNoFiles        = errors.New("no_files")
	ErrEmptyFile      = errors.New("empty_file")
	ErrFileTooLarge   = errors.New("file_too_large")
	ErrInvalidPath    = errors.New("invalid_path")
	ErrFileNotFound   = errors.New("file_not_found")
	ErrStorageFailure = errors.New("storage_failure")
)
