package repository

import (
	"context"
	"sync"
	"time"

	"github.com/novabot503/novacat/internal/clock"
	"github.com/novabot503/novacat/internal/order/domain"
)

type memoryRepo struct {
	mu     sync.Mutex
	clock  clock.Clock
	orders map[string]domain.Order
}

// NewMemory returns a process-local store. Orders do not survive restarts.
func NewMemory(clk clock.Clock) domain.Repository {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &memoryRepo{
		clock:  clk,
		orders: make(map[string]domain.Order),
	}
}

func (r *memoryRepo) Insert(ctx context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.ID]; exists {
		return domain.ErrOrderExists
	}
	r.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, orderID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

func (r *memoryRepo) UpdateStatus(ctx context.Context, orderID string, status domain.Status) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if !order.Status.IsTerminal() && order.Status != status {
		order.Status = status
		order.UpdatedAt = r.clock.Now()
		r.orders[orderID] = order
	}
	return cloneOrder(order), nil
}

func (r *memoryRepo) ClaimProvisioning(ctx context.Context, orderID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if order.Status != domain.StatusPaid {
		return domain.Order{}, domain.ErrPaymentNotConfirmed
	}
	if order.Provisioning != domain.ProvisionNone {
		return domain.Order{}, domain.ErrAlreadyProvisioned
	}
	order.Provisioning = domain.ProvisionInProgress
	order.UpdatedAt = r.clock.Now()
	r.orders[orderID] = order
	return cloneOrder(order), nil
}

func (r *memoryRepo) CompleteProvisioning(ctx context.Context, orderID string, resource domain.ProvisionedResource) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if order.Provisioning != domain.ProvisionInProgress {
		return domain.ErrProvisioningNotClaimed
	}
	order.Provisioning = domain.ProvisionDone
	order.Provisioned = &resource
	order.UpdatedAt = r.clock.Now()
	r.orders[orderID] = order
	return nil
}

func (r *memoryRepo) ReleaseProvisioning(ctx context.Context, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if order.Provisioning != domain.ProvisionInProgress {
		return domain.ErrProvisioningNotClaimed
	}
	order.Provisioning = domain.ProvisionNone
	order.UpdatedAt = r.clock.Now()
	r.orders[orderID] = order
	return nil
}

func (r *memoryRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, order := range r.orders {
		if order.ExpiresAt.Before(cutoff) && order.Provisioning != domain.ProvisionInProgress {
			delete(r.orders, id)
			removed++
		}
	}
	return removed, nil
}

func cloneOrder(order domain.Order) domain.Order {
	if order.Provisioned != nil {
		resource := *order.Provisioned
		order.Provisioned = &resource
	}
	return order
}
