package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/novabot503/novacat/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(config.GitHubConfig{APIURL: srv.URL, Token: "ghp_x", Owner: "novabot503", Repo: "files", Branch: "main"})
}

func TestPutFile(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/repos/novabot503/files/contents/uploads/1-cat%20pic.png", r.URL.EscapedPath())
		assert.Equal(t, "Bearer ghp_x", r.Header.Get("Authorization"))

		var body putContentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "main", body.Branch)
		assert.Equal(t, "upload 1", body.Message)
		raw, err := base64.StdEncoding.DecodeString(body.Content)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(raw))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"content":{"path":"uploads/1-cat pic.png","sha":"abc"},"commit":{"sha":"def"}}`))
	})

	commit, err := client.PutFile(context.Background(), "uploads/1-cat pic.png", []byte("hello"), "upload 1")
	require.NoError(t, err)
	assert.Equal(t, Commit{Path: "uploads/1-cat pic.png", SHA: "abc", CommitSHA: "def"}, commit)
}

func TestGetFile(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/vnd.github.raw", r.Header.Get("Accept"))
		assert.Equal(t, "main", r.URL.Query().Get("ref"))
		if r.URL.Path == "/repos/novabot503/files/contents/uploads/missing.txt" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"Not Found"}`))
			return
		}
		_, _ = w.Write([]byte("0123456789"))
	})

	body, err := client.GetFile(context.Background(), "uploads/a.txt", 4)
	require.NoError(t, err)
	assert.Equal(t, "0123", string(body))

	_, err = client.GetFile(context.Background(), "uploads/missing.txt", 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutFileSurfacesAPIMessage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"Invalid request.\n\n\"sha\" wasn't supplied."}`))
	})

	_, err := client.PutFile(context.Background(), "uploads/a.txt", []byte("x"), "m")
	require.ErrorIs(t, err, ErrRequestFailed)
	assert.Contains(t, err.Error(), "sha")
}

func TestClientRequiresConfig(t *testing.T) {
	client := New(config.GitHubConfig{})
	_, err := client.PutFile(context.Background(), "a", nil, "m")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
