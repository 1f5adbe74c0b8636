package ratelimit

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/novabot503/novacat/internal/clock"
	"github.com/novabot503/novacat/internal/config"
	"github.com/novabot503/novacat/internal/observability/metrics"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Scope string

const (
	ScopeOrders  Scope = "orders"
	ScopeUploads Scope = "uploads"
)

const keyClientScope = "novacat:ratelimit:%s:%s"

type Params struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Clock   clock.Clock
	Redis   *redis.Client    `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

// Limiter applies per-client, per-scope request budgets expressed per minute.
type Limiter struct {
	bucket  Bucket
	log     *zap.Logger
	metrics *metrics.Metrics
	limits  map[Scope]int
}

func NewLimiter(p Params) *Limiter {
	log := p.Log.Named("ratelimit")
	var bucket Bucket
	if p.Redis != nil {
		bucket = NewRedisBucket(p.Redis)
		log.Info("rate limiting backed by redis")
	} else {
		bucket = NewLocalBucket(p.Clock)
	}
	return &Limiter{
		bucket:  bucket,
		log:     log,
		metrics: p.Metrics,
		limits: map[Scope]int{
			ScopeOrders:  p.Config.RateLimit.OrdersPerMinute,
			ScopeUploads: p.Config.RateLimit.UploadsPerMinute,
		},
	}
}

// Allow reports whether the client may proceed. Scopes without a positive
// limit are unlimited, and backend errors fail open.
func (l *Limiter) Allow(ctx context.Context, scope Scope, client string) Result {
	perMinute := l.limits[scope]
	if perMinute <= 0 || client == "" {
		return Result{Allowed: true}
	}
	key := fmt.Sprintf(keyClientScope, scope, client)
	res, err := l.bucket.Allow(ctx, key, float64(perMinute)/60, perMinute)
	if err != nil {
		l.log.Warn("rate limit check failed", zap.String("scope", string(scope)), zap.Error(err))
		return Result{Allowed: true, Limit: perMinute}
	}
	return res
}

// Middleware rejects over-budget clients, keyed by gin's ClientIP, with 429.
func (l *Limiter) Middleware(scope Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		res := l.Allow(c.Request.Context(), scope, c.ClientIP())
		if res.Allowed {
			c.Next()
			return
		}
		l.metrics.RecordRateLimitDenied(c.Request.Context(), string(scope))
		c.Header("Retry-After", RetryAfterSeconds(res.RetryAfter))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": gin.H{
				"type":    "rate_limited",
				"message": "too many requests, try again later",
			},
		})
	}
}
