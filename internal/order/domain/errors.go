package domain

import "errors"

var (
	ErrInvalidTier             = errors.New("invalid_tier")
	ErrInvalidContact          = errors.New("invalid_contact")
	ErrInvalidOrderID          = errors.New("invalid_order_id")
	ErrOrderNotFound           = errors.New("order_not_found")
	ErrOrderExists             = errors.New("order_exists")
	ErrPaymentNotConfirmed     = errors.New("payment_not_confirmed")
	ErrAlreadyProvisioned      = errors.New("already_provisioned")
	ErrProvisioningNotClaimed  = errors.New("provisioning_not_claimed")
	ErrPaymentInitiationFailed = errors.New("payment_initiation_failed")
	ErrPaymentStatusFailed     = errors.New("payment_status_failed")
	ErrProvisioningFailed      = errors.New("provisioning_failed")
)

// RemoteError is a human-readable reason reported by a vendor API. It is the
// only upstream text that may be shown to buyers.
type RemoteError struct {
	Detail string
}

func (e *RemoteError) Error() string {
	return e.Detail
}
