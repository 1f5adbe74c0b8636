package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/novabot503/novacat/internal/clock"
	"github.com/novabot503/novacat/internal/order/domain"
	redis "github.com/redis/go-redis/v9"
)

const (
	keyOrder       = "novacat:order:%s"
	keyOrderExpiry = "novacat:orders:expiry"

	fieldData         = "data"
	fieldStatus       = "status"
	fieldProvisioning = "provisioning"
	fieldProvisioned  = "provisioned"
	fieldUpdatedAt    = "updated_at"
)

// Each script returns 1 on success, 0 when the order key is missing and a
// negative code when the precondition does not hold.
const insertScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return -1
end
redis.call("HSET", KEYS[1], "data", ARGV[1], "status", ARGV[2], "provisioning", ARGV[3], "updated_at", ARGV[4])
local expireAt = tonumber(ARGV[5])
if expireAt > 0 then
  redis.call("EXPIREAT", KEYS[1], expireAt)
end
redis.call("ZADD", KEYS[2], ARGV[6], ARGV[7])
return 1
`

const updateStatusScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
local current = redis.call("HGET", KEYS[1], "status")
if current ~= "paid" and current ~= "expired" and current ~= ARGV[1] then
  redis.call("HSET", KEYS[1], "status", ARGV[1], "updated_at", ARGV[2])
end
return 1
`

const claimScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if redis.call("HGET", KEYS[1], "status") ~= "paid" then
  return -1
end
if redis.call("HGET", KEYS[1], "provisioning") ~= "none" then
  return -2
end
redis.call("HSET", KEYS[1], "provisioning", "in_progress", "updated_at", ARGV[1])
return 1
`

const completeScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if redis.call("HGET", KEYS[1], "provisioning") ~= "in_progress" then
  return -1
end
redis.call("HSET", KEYS[1], "provisioning", "done", "provisioned", ARGV[1], "updated_at", ARGV[2])
return 1
`

const releaseScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if redis.call("HGET", KEYS[1], "provisioning") ~= "in_progress" then
  return -1
end
redis.call("HSET", KEYS[1], "provisioning", "none", "updated_at", ARGV[1])
return 1
`

const deleteExpiredScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  redis.call("ZREM", KEYS[2], ARGV[1])
  return 0
end
if redis.call("HGET", KEYS[1], "provisioning") == "in_progress" then
  return -1
end
redis.call("DEL", KEYS[1])
redis.call("ZREM", KEYS[2], ARGV[1])
return 1
`

type redisRepo struct {
	client    *redis.Client
	clock     clock.Clock
	retention time.Duration

	insert        *redis.Script
	updateStatus  *redis.Script
	claim         *redis.Script
	complete      *redis.Script
	release       *redis.Script
	deleteExpired *redis.Script
}

// NewRedis stores each order in a hash whose key expires retention after the
// payment expiry. A sorted set indexes orders by expiry for the sweeper.
func NewRedis(client *redis.Client, clk clock.Clock, retention time.Duration) (domain.Repository, error) {
	if client == nil {
		return nil, errors.New("redis order store requires REDIS_ADDR")
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &redisRepo{
		client:        client,
		clock:         clk,
		retention:     retention,
		insert:        redis.NewScript(insertScript),
		updateStatus:  redis.NewScript(updateStatusScript),
		claim:         redis.NewScript(claimScript),
		complete:      redis.NewScript(completeScript),
		release:       redis.NewScript(releaseScript),
		deleteExpired: redis.NewScript(deleteExpiredScript),
	}, nil
}

// orderData holds the fields that never change after creation.
type orderData struct {
	ID            string          `json:"id"`
	Contact       string          `json:"contact"`
	Tier          domain.TierCode `json:"tier"`
	Amount        int64           `json:"amount"`
	PaymentNumber string          `json:"payment_number"`
	QRISString    string          `json:"qris_string"`
	ExpiresAt     time.Time       `json:"expires_at"`
	ClientIP      string          `json:"client_ip"`
	CreatedAt     time.Time       `json:"created_at"`
}

func orderKey(orderID string) string {
	return fmt.Sprintf(keyOrder, orderID)
}

func (r *redisRepo) Insert(ctx context.Context, order domain.Order) error {
	data, err := json.Marshal(orderData{
		ID:            order.ID,
		Contact:       order.Contact,
		Tier:          order.Tier,
		Amount:        order.Amount,
		PaymentNumber: order.PaymentNumber,
		QRISString:    order.QRISString,
		ExpiresAt:     order.ExpiresAt.UTC(),
		ClientIP:      order.ClientIP,
		CreatedAt:     order.CreatedAt.UTC(),
	})
	if err != nil {
		return err
	}

	provisioning := order.Provisioning
	if provisioning == "" {
		provisioning = domain.ProvisionNone
	}
	var expireAt int64
	if r.retention > 0 {
		expireAt = order.ExpiresAt.Add(r.retention).Unix()
	}

	code, err := r.insert.Run(ctx, r.client,
		[]string{orderKey(order.ID), keyOrderExpiry},
		data,
		string(order.Status),
		string(provisioning),
		formatTime(order.UpdatedAt),
		expireAt,
		order.ExpiresAt.Unix(),
		order.ID,
	).Int()
	if err != nil {
		return err
	}
	if code != 1 {
		return domain.ErrOrderExists
	}
	return nil
}

func (r *redisRepo) Get(ctx context.Context, orderID string) (domain.Order, error) {
	fields, err := r.client.HGetAll(ctx, orderKey(orderID)).Result()
	if err != nil {
		return domain.Order{}, err
	}
	raw, ok := fields[fieldData]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}

	var data orderData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return domain.Order{}, fmt.Errorf("decode order %s: %w", orderID, err)
	}

	order := domain.Order{
		ID:            data.ID,
		Contact:       data.Contact,
		Tier:          data.Tier,
		Amount:        data.Amount,
		PaymentNumber: data.PaymentNumber,
		QRISString:    data.QRISString,
		ExpiresAt:     data.ExpiresAt,
		Status:        domain.Status(fields[fieldStatus]),
		Provisioning:  domain.ProvisionState(fields[fieldProvisioning]),
		ClientIP:      data.ClientIP,
		CreatedAt:     data.CreatedAt,
		UpdatedAt:     parseTime(fields[fieldUpdatedAt]),
	}
	if provisioned := fields[fieldProvisioned]; provisioned != "" {
		var resource domain.ProvisionedResource
		if err := json.Unmarshal([]byte(provisioned), &resource); err != nil {
			return domain.Order{}, fmt.Errorf("decode provisioned resource %s: %w", orderID, err)
		}
		order.Provisioned = &resource
	}
	return order, nil
}

func (r *redisRepo) UpdateStatus(ctx context.Context, orderID string, status domain.Status) (domain.Order, error) {
	code, err := r.updateStatus.Run(ctx, r.client, []string{orderKey(orderID)}, string(status), formatTime(r.clock.Now())).Int()
	if err != nil {
		return domain.Order{}, err
	}
	if code == 0 {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return r.Get(ctx, orderID)
}

func (r *redisRepo) ClaimProvisioning(ctx context.Context, orderID string) (domain.Order, error) {
	code, err := r.claim.Run(ctx, r.client, []string{orderKey(orderID)}, formatTime(r.clock.Now())).Int()
	if err != nil {
		return domain.Order{}, err
	}
	switch code {
	case 1:
		return r.Get(ctx, orderID)
	case 0:
		return domain.Order{}, domain.ErrOrderNotFound
	case -1:
		return domain.Order{}, domain.ErrPaymentNotConfirmed
	default:
		return domain.Order{}, domain.ErrAlreadyProvisioned
	}
}

func (r *redisRepo) CompleteProvisioning(ctx context.Context, orderID string, resource domain.ProvisionedResource) error {
	payload, err := json.Marshal(resource)
	if err != nil {
		return err
	}
	code, err := r.complete.Run(ctx, r.client, []string{orderKey(orderID)}, payload, formatTime(r.clock.Now())).Int()
	if err != nil {
		return err
	}
	return scriptResult(code)
}

func (r *redisRepo) ReleaseProvisioning(ctx context.Context, orderID string) error {
	code, err := r.release.Run(ctx, r.client, []string{orderKey(orderID)}, formatTime(r.clock.Now())).Int()
	if err != nil {
		return err
	}
	return scriptResult(code)
}

func (r *redisRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := r.client.ZRangeByScore(ctx, keyOrderExpiry, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, id := range ids {
		code, err := r.deleteExpired.Run(ctx, r.client, []string{orderKey(id), keyOrderExpiry}, id).Int()
		if err != nil {
			return removed, err
		}
		if code == 1 {
			removed++
		}
	}
	return removed, nil
}

func scriptResult(code int) error {
	switch code {
	case 1:
		return nil
	case 0:
		return domain.ErrOrderNotFound
	default:
		return domain.ErrProvisioningNotClaimed
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return parsed
}
