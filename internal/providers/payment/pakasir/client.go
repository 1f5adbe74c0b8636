package pakasir

import (
	"bytes"
	"context"
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
	"github.com/novabot503/novacat/internal/order/domain"
	"go.opentelemetry.io/otel/propagation"
)

var (
	ErrNotConfigured   = errors.New("pakasir_not_configured")
	ErrInvalidResponse = errors.New("pakasir_response_invalid")
)

type createRequest struct {
	Project string `json:"project"`
	APIKey  string `json:"api_key"`
	OrderID string `json:"order_id"`
	Amount  int64  `json:"amount"`
}

type paymentBody struct {
	PaymentNumber string `json:"payment_number"`
	Code          string `json:"code"`
	QRISString    string `json:"qris_string"`
	ExpiredAt     string `json:"expired_at"`
}

type createResponse struct {
	Success   bool         `json:"success"`
	Payment   *paymentBody `json:"payment"`
	ExpiredAt string       `json:"expired_at"`
	Message   string       `json:"message"`
	paymentBody
}

type detailResponse struct {
	Transaction *struct {
		Status string `json:"status"`
	} `json:"transaction"`
	Status string `json:"status"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Client talks to the Pakasir QRIS gateway.
type Client struct {
	baseURL string
	project string
	apiKey  string
	client  *http.Client
}

func New(cfg config.PaymentConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		project: strings.TrimSpace(cfg.Project),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		client:  &http.Client{Timeout: timeout},
	}
}

// NewGateway adapts New for dependency injection.
func NewGateway(cfg config.Config) domain.PaymentGateway {
	return New(cfg.Payment)
}

func (c *Client) CreatePayment(ctx context.Context, orderID string, amount int64) (domain.Payment, error) {
	if c.project == "" || c.apiKey == "" {
		return domain.Payment{}, ErrNotConfigured
	}
	body, err := json.Marshal(createRequest{
		Project: c.project,
		APIKey:  c.apiKey,
		OrderID: orderID,
		Amount:  amount,
	})
	if err != nil {
		return domain.Payment{}, err
	}

	var resp createResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/transactioncreate/qris", bytes.NewReader(body), &resp); err != nil {
		return domain.Payment{}, err
	}
	if !resp.Success && resp.Payment == nil {
		if msg := strings.TrimSpace(resp.Message); msg != "" {
			return domain.Payment{}, fmt.Errorf("%w: %s", ErrInvalidResponse, msg)
		}
		return domain.Payment{}, ErrInvalidResponse
	}

	payment := resp.paymentBody
	if resp.Payment != nil {
		payment = *resp.Payment
	}
	expiredAt := payment.ExpiredAt
	if expiredAt == "" {
		expiredAt = resp.ExpiredAt
	}

	// Pakasir returns the QRIS payload in payment_number for QRIS transactions.
	return domain.Payment{
		PaymentNumber: firstNonEmpty(payment.PaymentNumber, payment.Code),
		QRISString:    firstNonEmpty(payment.PaymentNumber, payment.QRISString),
		ExpiresAt:     parseExpiry(expiredAt),
	}, nil
}

func (c *Client) QueryPaymentStatus(ctx context.Context, orderID string) (domain.Status, error) {
	if c.project == "" || c.apiKey == "" {
		return "", ErrNotConfigured
	}
	query := url.Values{}
	query.Set("project", c.project)
	query.Set("amount", "0")
	query.Set("order_id", orderID)
	query.Set("api_key", c.apiKey)

	var resp detailResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/transactiondetail?"+query.Encode(), nil, &resp); err != nil {
		return "", err
	}
	status := resp.Status
	if resp.Transaction != nil {
		status = resp.Transaction.Status
	}
	return domain.NormalizeStatus(status), nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	tracing.InjectContext(ctx, propagation.HeaderCarrier(req.Header))

	endpoint := path[:strings.IndexByte(path+"?", '?')]
	resp, err := c.client.Do(req)
	if err != nil {
		// *url.Error repeats the full URL, api_key included.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("pakasir %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr errorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&apiErr)
		message := firstNonEmpty(strings.TrimSpace(apiErr.Message), strings.TrimSpace(apiErr.Error))
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("pakasir %s: status %d: %s", endpoint, resp.StatusCode, message)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

func parseExpiry(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000000Z07:00", "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
