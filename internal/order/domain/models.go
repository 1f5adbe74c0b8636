package domain

import "time"

// Status is the payment status of an order. Gateway values outside the known
// set are kept lower-cased and treated like pending.
type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusExpired Status = "expired"
)

// ProvisionState tracks the single provisioning attempt allowed per order.
type ProvisionState string

const (
	ProvisionNone       ProvisionState = "none"
	ProvisionInProgress ProvisionState = "in_progress"
	ProvisionDone       ProvisionState = "done"
)

type Order struct {
	ID            string               `json:"order_id"`
	Contact       string               `json:"contact"`
	Tier          TierCode             `json:"tier"`
	Amount        int64                `json:"amount"`
	PaymentNumber string               `json:"payment_number"`
	QRISString    string               `json:"qris_string"`
	ExpiresAt     time.Time            `json:"expires_at"`
	Status        Status               `json:"status"`
	Provisioning  ProvisionState       `json:"provisioning"`
	Provisioned   *ProvisionedResource `json:"provisioned,omitempty"`
	ClientIP      string               `json:"client_ip,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// IsProvisioned reports whether the resource for this order has been created.
func (o Order) IsProvisioned() bool {
	return o.Provisioning == ProvisionDone
}

// Account is a panel user owned by the buyer.
type Account struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Instance is the server created on the panel for a paid order.
type Instance struct {
	ID         int            `json:"id"`
	Identifier string         `json:"identifier"`
	Name       string         `json:"name"`
	Limits     ResourceLimits `json:"limits"`
}

// ProvisionedResource is what the buyer receives once provisioning succeeds.
type ProvisionedResource struct {
	Username   string         `json:"username"`
	Email      string         `json:"email"`
	Password   string         `json:"password"`
	ServerID   int            `json:"server_id"`
	Identifier string         `json:"identifier"`
	ServerName string         `json:"server_name"`
	Tier       TierCode       `json:"tier"`
	Limits     ResourceLimits `json:"limits"`
	PanelURL   string         `json:"panel_url"`
}

// Payment is the gateway reference returned when a payment is initiated.
type Payment struct {
	PaymentNumber string
	QRISString    string
	ExpiresAt     time.Time
}

type PlaceOrderRequest struct {
	Contact  string
	Tier     string
	ClientIP string
}

type PlaceOrderResult struct {
	Order      Order
	QRImageURL string
}

type StatusResult struct {
	OrderID   string    `json:"order_id"`
	Status    Status    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CallbackPayload is the normalized body of a gateway webhook.
type CallbackPayload struct {
	OrderID string
	Status  string
	Amount  int64
}

type CallbackResult struct {
	Known       bool
	OrderID     string
	Status      Status
	Provisioned bool
	// ProvisionError holds the provisioning failure detail, if any.
	ProvisionError string
}
