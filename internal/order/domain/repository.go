package domain

import (
	"context"
	"time"
)

// Repository persists orders. Every method is atomic on its own.
type Repository interface {
	Insert(ctx context.Context, order Order) error
	Get(ctx context.Context, orderID string) (Order, error)
	// UpdateStatus stores status unless the order is already terminal and
	// returns the order as persisted.
	UpdateStatus(ctx context.Context, orderID string, status Status) (Order, error)
	// ClaimProvisioning moves provisioning from none to in_progress when the
	// order is paid. It returns ErrPaymentNotConfirmed or ErrAlreadyProvisioned
	// when the claim is refused.
	ClaimProvisioning(ctx context.Context, orderID string) (Order, error)
	CompleteProvisioning(ctx context.Context, orderID string, resource ProvisionedResource) error
	ReleaseProvisioning(ctx context.Context, orderID string) error
	// DeleteExpired removes orders whose expiry is before cutoff and which
	// are not being provisioned. It returns the number of removed orders.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int, error)
}
