package domain

import "context"

type Service interface {
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (PlaceOrderResult, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	CheckPaymentStatus(ctx context.Context, orderID string) (StatusResult, error)
	ProvisionResource(ctx context.Context, orderID string) (ProvisionedResource, error)
	HandleProviderCallback(ctx context.Context, payload CallbackPayload) (CallbackResult, error)
}

// PaymentGateway initiates QRIS payments and reports their status.
type PaymentGateway interface {
	CreatePayment(ctx context.Context, orderID string, amount int64) (Payment, error)
	QueryPaymentStatus(ctx context.Context, orderID string) (Status, error)
}

// Provisioner creates the panel account and server for a paid order.
type Provisioner interface {
	Provision(ctx context.Context, contact string, tier Tier) (ProvisionedResource, error)
}

// Notifier hands operator notifications to a background sender.
type Notifier interface {
	PanelCreated(ctx context.Context, order Order, resource ProvisionedResource, source string)
}
