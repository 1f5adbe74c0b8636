package upload

import (
	"context"
	"errors"

	"github.com/novabot503/novacat/internal/config"
	"github.com/novabot503/novacat/internal/providers/github"
	"github.com/novabot503/novacat/internal/upload/domain"
)

type githubStorage struct {
	client *github.Client
}

// NewGitHubStorage stores uploads as commits in the configured repository.
func NewGitHubStorage(cfg config.Config) domain.Storage {
	return &githubStorage{client: github.New(cfg.GitHub)}
}

func (s *githubStorage) Put(ctx context.Context, path string, content []byte, message string) error {
	_, err := s.client.PutFile(ctx, path, content, message)
	return err
}

func (s *githubStorage) Get(ctx context.Context, path string, maxBytes int64) ([]byte, error) {
	body, err := s.client.GetFile(ctx, path, maxBytes)
	if errors.Is(err, github.ErrNotFound) {
		return nil, domain.ErrFileNotFound
	}
	return body, err
}
