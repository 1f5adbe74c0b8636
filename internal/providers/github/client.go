package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/novabot503/novacat/internal/config"
	"github.com/novabot503/novacat/internal/observability/tracing"
	"go.opentelemetry.io/otel/propagation"
)

var (
	ErrNotConfigured = errors.New("github_not_configured")
	ErrNotFound      = errors.New("github_file_not_found")
	ErrRequestFailed = errors.New("github_request_failed")
)

const apiVersion = "2022-11-28"

type putContentRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch,omitempty"`
}

type putContentResponse struct {
	Content struct {
		Path    string `json:"path"`
		SHA     string `json:"sha"`
		HTMLURL string `json:"html_url"`
	} `json:"content"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// Commit describes a file written through the contents API.
type Commit struct {
	Path      string
	SHA       string
	CommitSHA string
}

// Client reads and writes repository files through the GitHub contents API.
type Client struct {
	apiURL string
	token  string
	owner  string
	repo   string
	branch string
	client *http.Client
}

func New(cfg config.GitHubConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	apiURL := strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if apiURL == "" {
		apiURL = "https://api.github.com"
	}
	return &Client{
		apiURL: apiURL,
		token:  strings.TrimSpace(cfg.Token),
		owner:  strings.TrimSpace(cfg.Owner),
		repo:   strings.TrimSpace(cfg.Repo),
		branch: strings.TrimSpace(cfg.Branch),
		client: &http.Client{Timeout: timeout},
	}
}

func (c *Client) configured() bool {
	return c.token != "" && c.owner != "" && c.repo != ""
}

// PutFile creates path with content in a single commit.
func (c *Client) PutFile(ctx context.Context, path string, content []byte, message string) (Commit, error) {
	if !c.configured() {
		return Commit{}, ErrNotConfigured
	}
	payload, err := json.Marshal(putContentRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(content),
		Branch:  c.branch,
	})
	if err != nil {
		return Commit{}, err
	}

	resp, err := c.do(ctx, http.MethodPut, c.contentsURL(path, false), bytes.NewReader(payload), "application/vnd.github+json")
	if err != nil {
		return Commit{}, err
	}
	defer resp.Body.Close()

	var out putContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Commit{}, fmt.Errorf("%w: decode response: %v", ErrRequestFailed, err)
	}
	return Commit{Path: out.Content.Path, SHA: out.Content.SHA, CommitSHA: out.Commit.SHA}, nil
}

// GetFile returns the raw bytes stored at path, capped at maxBytes when positive.
func (c *Client) GetFile(ctx context.Context, path string, maxBytes int64) ([]byte, error) {
	if !c.configured() {
		return nil, ErrNotConfigured
	}
	resp, err := c.do(ctx, http.MethodGet, c.contentsURL(path, true), nil, "application/vnd.github.raw")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body io.Reader = resp.Body
	if maxBytes > 0 {
		body = io.LimitReader(resp.Body, maxBytes)
	}
	return io.ReadAll(body)
}

func (c *Client) contentsURL(path string, withRef bool) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	u := fmt.Sprintf("%s/repos/%s/%s/contents/%s", c.apiURL, url.PathEscape(c.owner), url.PathEscape(c.repo), strings.Join(segments, "/"))
	if withRef && c.branch != "" {
		u += "?ref=" + url.QueryEscape(c.branch)
	}
	return u
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", accept)
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	tracing.InjectContext(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < http.StatusBadRequest {
		return resp, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	var apiErr errorResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&apiErr)
	message := strings.TrimSpace(apiErr.Message)
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return nil, fmt.Errorf("%w: status %d: %s", ErrRequestFailed, resp.StatusCode, message)
}
