package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/novabot503/novacat/internal/clock"
	"github.com/novabot503/novacat/internal/order/domain"
	"github.com/novabot503/novacat/pkg/db"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// OrderRecord is the orders table row.
type OrderRecord struct {
	ID            string         `gorm:"primaryKey;size:64"`
	Contact       string         `gorm:"size:320;not null"`
	Tier          string         `gorm:"size:16;not null"`
	Amount        int64          `gorm:"not null"`
	PaymentNumber string         `gorm:"size:128"`
	QRISString    string         `gorm:"column:qris_string;type:text"`
	ExpiresAt     time.Time      `gorm:"not null;index"`
	Status        string         `gorm:"size:32;not null"`
	Provisioning  string         `gorm:"size:16;not null;default:none"`
	Provisioned   datatypes.JSON `gorm:"column:provisioned"`
	ClientIP      string         `gorm:"column:client_ip;size:64"`
	CreatedAt     time.Time      `gorm:"not null"`
	UpdatedAt     time.Time      `gorm:"not null"`
}

func (OrderRecord) TableName() string { return "orders" }

type sqlRepo struct {
	db    *gorm.DB
	clock clock.Clock
}

func NewSQL(conn *gorm.DB, clk clock.Clock) domain.Repository {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &sqlRepo{db: conn, clock: clk}
}

func (r *sqlRepo) Insert(ctx context.Context, order domain.Order) error {
	record, err := toRecord(order)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.ErrOrderExists
		}
		return err
	}
	return nil
}

func (r *sqlRepo) Get(ctx context.Context, orderID string) (domain.Order, error) {
	var record OrderRecord
	err := r.db.WithContext(ctx).Where("id = ?", orderID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, err
	}
	return fromRecord(record)
}

func (r *sqlRepo) UpdateStatus(ctx context.Context, orderID string, status domain.Status) (domain.Order, error) {
	err := r.db.WithContext(ctx).Exec(
		`UPDATE orders SET status = ?, updated_at = ?
		 WHERE id = ? AND status <> ? AND status NOT IN (?, ?)`,
		string(status),
		r.clock.Now(),
		orderID,
		string(status),
		string(domain.StatusPaid),
		string(domain.StatusExpired),
	).Error
	if err != nil {
		return domain.Order{}, err
	}
	return r.Get(ctx, orderID)
}

func (r *sqlRepo) ClaimProvisioning(ctx context.Context, orderID string) (domain.Order, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE orders SET provisioning = ?, updated_at = ?
		 WHERE id = ? AND provisioning = ? AND status = ?`,
		string(domain.ProvisionInProgress),
		r.clock.Now(),
		orderID,
		string(domain.ProvisionNone),
		string(domain.StatusPaid),
	)
	if res.Error != nil {
		return domain.Order{}, res.Error
	}

	order, err := r.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if res.RowsAffected == 1 {
		return order, nil
	}
	if order.Status != domain.StatusPaid {
		return domain.Order{}, domain.ErrPaymentNotConfirmed
	}
	return domain.Order{}, domain.ErrAlreadyProvisioned
}

func (r *sqlRepo) CompleteProvisioning(ctx context.Context, orderID string, resource domain.ProvisionedResource) error {
	payload, err := json.Marshal(resource)
	if err != nil {
		return err
	}
	res := r.db.WithContext(ctx).Exec(
		`UPDATE orders SET provisioning = ?, provisioned = ?, updated_at = ?
		 WHERE id = ? AND provisioning = ?`,
		string(domain.ProvisionDone),
		datatypes.JSON(payload),
		r.clock.Now(),
		orderID,
		string(domain.ProvisionInProgress),
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.missingOrUnclaimed(ctx, orderID)
	}
	return nil
}

func (r *sqlRepo) ReleaseProvisioning(ctx context.Context, orderID string) error {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE orders SET provisioning = ?, updated_at = ?
		 WHERE id = ? AND provisioning = ?`,
		string(domain.ProvisionNone),
		r.clock.Now(),
		orderID,
		string(domain.ProvisionInProgress),
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.missingOrUnclaimed(ctx, orderID)
	}
	return nil
}

func (r *sqlRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at < ? AND provisioning <> ?", cutoff, string(domain.ProvisionInProgress)).
		Delete(&OrderRecord{})
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

func (r *sqlRepo) missingOrUnclaimed(ctx context.Context, orderID string) error {
	if _, err := r.Get(ctx, orderID); err != nil {
		return err
	}
	return domain.ErrProvisioningNotClaimed
}

func toRecord(order domain.Order) (OrderRecord, error) {
	record := OrderRecord{
		ID:            order.ID,
		Contact:       order.Contact,
		Tier:          string(order.Tier),
		Amount:        order.Amount,
		PaymentNumber: order.PaymentNumber,
		QRISString:    order.QRISString,
		ExpiresAt:     order.ExpiresAt.UTC(),
		Status:        string(order.Status),
		Provisioning:  string(order.Provisioning),
		ClientIP:      order.ClientIP,
		CreatedAt:     order.CreatedAt.UTC(),
		UpdatedAt:     order.UpdatedAt.UTC(),
	}
	if record.Provisioning == "" {
		record.Provisioning = string(domain.ProvisionNone)
	}
	if order.Provisioned != nil {
		payload, err := json.Marshal(order.Provisioned)
		if err != nil {
			return OrderRecord{}, err
		}
		record.Provisioned = datatypes.JSON(payload)
	}
	return record, nil
}

func fromRecord(record OrderRecord) (domain.Order, error) {
	order := domain.Order{
		ID:            record.ID,
		Contact:       record.Contact,
		Tier:          domain.TierCode(record.Tier),
		Amount:        record.Amount,
		PaymentNumber: record.PaymentNumber,
		QRISString:    record.QRISString,
		ExpiresAt:     record.ExpiresAt.UTC(),
		Status:        domain.Status(record.Status),
		Provisioning:  domain.ProvisionState(record.Provisioning),
		ClientIP:      record.ClientIP,
		CreatedAt:     record.CreatedAt.UTC(),
		UpdatedAt:     record.UpdatedAt.UTC(),
	}
	if len(record.Provisioned) > 0 && string(record.Provisioned) != "null" {
		var resource domain.ProvisionedResource
		if err := json.Unmarshal(record.Provisioned, &resource); err != nil {
			return domain.Order{}, err
		}
		order.Provisioned = &resource
	}
	return order, nil
}
