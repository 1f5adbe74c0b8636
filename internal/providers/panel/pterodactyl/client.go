package pterodactyl

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/novabot503/novacat/internal/config"
	"github.com/novabot503/novacat/internal/observability/tracing"
	"github.com/novabot503/novacat/internal/order/domain"
	"go.opentelemetry.io/otel/propagation"
)

var (
	ErrNotConfigured = errors.New("panel_not_configured")
	// ErrProvisioning wraps every panel failure. Only errors that also carry a
	// domain.RemoteError hold text reported by the panel itself.
	ErrProvisioning = errors.New("panel_provisioning_failed")
)

const (
	dockerImage    = "ghcr.io/parkervcp/yolks:nodejs_20"
	startupCommand = "npm install && npm start"
	passwordLength = 12
	passwordChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

type userAttributes struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type userObject struct {
	Attributes userAttributes `json:"attributes"`
}

type userList struct {
	Data []userObject `json:"data"`
}

type createUserRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"password"`
}

type serverLimits struct {
	Memory int `json:"memory"`
	Swap   int `json:"swap"`
	Disk   int `json:"disk"`
	IO     int `json:"io"`
	CPU    int `json:"cpu"`
}

type featureLimits struct {
	Databases   int `json:"databases"`
	Backups     int `json:"backups"`
	Allocations int `json:"allocations"`
}

type deploySpec struct {
	Locations   []int    `json:"locations"`
	DedicatedIP bool     `json:"dedicated_ip"`
	PortRange   []string `json:"port_range"`
}

type createServerRequest struct {
	Name          string            `json:"name"`
	Description   string            `json:"description"`
	User          int               `json:"user"`
	Egg           int               `json:"egg"`
	DockerImage   string            `json:"docker_image"`
	Startup       string            `json:"startup"`
	Environment   map[string]string `json:"environment"`
	Limits        serverLimits      `json:"limits"`
	FeatureLimits featureLimits     `json:"feature_limits"`
	Deploy        deploySpec        `json:"deploy"`
}

type serverObject struct {
	Attributes struct {
		ID         int    `json:"id"`
		Identifier string `json:"identifier"`
		Name       string `json:"name"`
	} `json:"attributes"`
}

type errorResponse struct {
	Errors []struct {
		Code   string `json:"code"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// Client provisions panel users and servers through the Pterodactyl
// application API.
type Client struct {
	domain    string
	apiKey    string
	publicURL string
	egg       int
	location  int
	client    *http.Client
}

func New(cfg config.PanelConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	publicURL := strings.TrimRight(strings.TrimSpace(cfg.PublicURL), "/")
	if publicURL == "" {
		publicURL = strings.TrimRight(strings.TrimSpace(cfg.Domain), "/")
	}
	return &Client{
		domain:    strings.TrimRight(strings.TrimSpace(cfg.Domain), "/"),
		apiKey:    strings.TrimSpace(cfg.APIKey),
		publicURL: publicURL,
		egg:       cfg.Egg,
		location:  cfg.Location,
		client:    &http.Client{Timeout: timeout},
	}
}

// NewProvisioner adapts New for dependency injection.
func NewProvisioner(cfg config.Config) domain.Provisioner {
	return New(cfg.Panel)
}

// Provision creates or refreshes the buyer's account, then creates one server
// sized for the tier.
func (c *Client) Provision(ctx context.Context, contact string, tier domain.Tier) (domain.ProvisionedResource, error) {
	account, err := c.FindOrCreateAccount(ctx, contact)
	if err != nil {
		return domain.ProvisionedResource{}, err
	}
	instance, err := c.CreateResourceInstance(ctx, account, tier, contact)
	if err != nil {
		return domain.ProvisionedResource{}, err
	}
	return domain.ProvisionedResource{
		Username:   account.Username,
		Email:      account.Email,
		Password:   account.Password,
		ServerID:   instance.ID,
		Identifier: instance.Identifier,
		ServerName: instance.Name,
		Tier:       tier.Code,
		Limits:     instance.Limits,
		PanelURL:   c.PanelURL(instance.Identifier),
	}, nil
}

// FindOrCreateAccount resets the password of an existing user with the same
// e-mail, or creates a new one.
func (c *Client) FindOrCreateAccount(ctx context.Context, contact string) (domain.Account, error) {
	if c.domain == "" || c.apiKey == "" {
		return domain.Account{}, ErrNotConfigured
	}
	email := strings.TrimSpace(contact)
	username := localPart(email)
	if username == "" {
		return domain.Account{}, domain.ErrInvalidContact
	}
	password, err := generatePassword(passwordLength)
	if err != nil {
		return domain.Account{}, err
	}

	var existing userList
	path := "/api/application/users?" + url.Values{"filter[email]": []string{email}}.Encode()
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &existing); err != nil {
		return domain.Account{}, err
	}

	if len(existing.Data) > 0 && existing.Data[0].Attributes.ID != 0 {
		user := existing.Data[0].Attributes
		body := map[string]string{"password": password}
		if err := c.doRequest(ctx, http.MethodPatch, "/api/application/users/"+strconv.Itoa(user.ID), body, nil); err != nil {
			return domain.Account{}, err
		}
		return domain.Account{
			ID:       user.ID,
			Username: firstNonEmpty(user.Username, username),
			Email:    email,
			Password: password,
		}, nil
	}

	var created userObject
	req := createUserRequest{
		Username:  username,
		Email:     email,
		FirstName: username,
		LastName:  "User",
		Password:  password,
	}
	if err := c.doRequest(ctx, http.MethodPost, "/api/application/users", req, &created); err != nil {
		return domain.Account{}, err
	}
	if created.Attributes.ID == 0 {
		return domain.Account{}, fmt.Errorf("%w: user id missing from response", ErrProvisioning)
	}
	return domain.Account{
		ID:       created.Attributes.ID,
		Username: username,
		Email:    email,
		Password: password,
	}, nil
}

// CreateResourceInstance creates one server owned by the account with the
// tier's limits. Zero limits mean unlimited on the panel side.
func (c *Client) CreateResourceInstance(ctx context.Context, account domain.Account, tier domain.Tier, contact string) (domain.Instance, error) {
	if c.domain == "" || c.apiKey == "" {
		return domain.Instance{}, ErrNotConfigured
	}
	name := ServerName(contact, tier)
	req := createServerRequest{
		Name:        name,
		Description: "",
		User:        account.ID,
		Egg:         c.egg,
		DockerImage: dockerImage,
		Startup:     startupCommand,
		Environment: map[string]string{
			"INST":        "npm",
			"USER_UPLOAD": "0",
			"AUTO_UPDATE": "0",
			"CMD_RUN":     "npm start",
		},
		Limits: serverLimits{
			Memory: tier.Limits.MemoryMB,
			Swap:   0,
			Disk:   tier.Limits.DiskMB,
			IO:     500,
			CPU:    tier.Limits.CPUPercent,
		},
		FeatureLimits: featureLimits{Databases: 5, Backups: 5, Allocations: 1},
		Deploy: deploySpec{
			Locations:   []int{c.location},
			DedicatedIP: false,
			PortRange:   []string{},
		},
	}

	var created serverObject
	if err := c.doRequest(ctx, http.MethodPost, "/api/application/servers", req, &created); err != nil {
		return domain.Instance{}, err
	}
	if created.Attributes.ID == 0 {
		return domain.Instance{}, fmt.Errorf("%w: server id missing from response", ErrProvisioning)
	}
	return domain.Instance{
		ID:         created.Attributes.ID,
		Identifier: created.Attributes.Identifier,
		Name:       firstNonEmpty(created.Attributes.Name, name),
		Limits:     tier.Limits,
	}, nil
}

func (c *Client) PanelURL(identifier string) string {
	return c.publicURL + "/server/" + identifier
}

// ServerName renders "<Local> <TIER> Server #1" with UNLI for unlimited tiers.
func ServerName(contact string, tier domain.Tier) string {
	label := strings.ToUpper(string(tier.Code))
	if tier.Code == domain.TierUnlimited || tier.Limits.Unlimited() {
		label = "UNLI"
	}
	return capitalize(localPart(contact)) + " " + label + " Server #1"
}

func (c *Client) doRequest(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.domain+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	tracing.InjectContext(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: panel unreachable: %s %s: %v", ErrProvisioning, method, pathOnly(path), transportCause(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr errorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&apiErr)
		if len(apiErr.Errors) > 0 && strings.TrimSpace(apiErr.Errors[0].Detail) != "" {
			return fmt.Errorf("%w: %w", ErrProvisioning, &domain.RemoteError{Detail: strings.TrimSpace(apiErr.Errors[0].Detail)})
		}
		return fmt.Errorf("%w: %s %s: status %d", ErrProvisioning, method, pathOnly(path), resp.StatusCode)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrProvisioning, err)
	}
	return nil
}

// transportCause drops the request URL, which carries the buyer's e-mail in
// the user lookup query.
func transportCause(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}

func pathOnly(path string) string {
	if idx := strings.IndexByte(path, '?'); idx >= 0 {
		return path[:idx]
	}
	return path
}

func generatePassword(n int) (string, error) {
	limit := big.NewInt(int64(len(passwordChars)))
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		buf[i] = passwordChars[idx.Int64()]
	}
	return string(buf), nil
}

func localPart(email string) string {
	email = strings.TrimSpace(email)
	if at := strings.IndexByte(email, '@'); at >= 0 {
		return email[:at]
	}
	return email
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
