package repository

import (
	"fmt"

	"github.com/novabot503/novacat/internal/clock"
	"github.com/novabot503/novacat/internal/config"
	"github.com/novabot503/novacat/internal/order/domain"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	Clock  clock.Clock
	DB     *gorm.DB      `optional:"true"`
	Redis  *redis.Client `optional:"true"`
}

// Provide selects the order store named by ORDER_STORE.
func Provide(p Params) (domain.Repository, error) {
	log := p.Log.Named("order.repository")

	switch p.Config.OrderStore {
	case config.OrderStoreSQL:
		if p.DB == nil {
			return nil, fmt.Errorf("order store %q requires a database", p.Config.OrderStore)
		}
		log.Info("using sql order store", zap.String("db_type", p.Config.DBType))
		return NewSQL(p.DB, p.Clock), nil
	case config.OrderStoreRedis:
		log.Info("using redis order store", zap.String("addr", p.Config.Redis.Addr))
		return NewRedis(p.Redis, p.Clock, p.Config.Retention.OrderTTL)
	default:
		log.Info("using in-memory order store")
		return NewMemory(p.Clock), nil
	}
}
