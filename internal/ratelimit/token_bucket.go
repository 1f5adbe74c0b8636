package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/novabot503/novacat/internal/cache"
	"github.com/novabot503/novacat/internal/clock"
	redis "github.com/redis/go-redis/v9"
)

// Tokens are stored in thousandths so the Lua integer reply keeps precision.
const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local nowData = redis.call("TIME")
local now = (nowData[1] * 1000) + math.floor(nowData[2] / 1000)

local data = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])

if tokens == nil then
  tokens = burst
else
  local delta = now - ts
  if delta < 0 then
    delta = 0
  end
  tokens = math.min(burst, tokens + (delta / 1000) * rate)
end

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", now)
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, math.floor(tokens * 1000)}
`

var (
	ErrBucketKeyEmpty     = errors.New("rate_limit_key_empty")
	ErrBucketRateInvalid  = errors.New("rate_limit_rate_invalid")
	ErrBucketBurstInvalid = errors.New("rate_limit_burst_invalid")
	ErrBucketReply        = errors.New("rate_limit_reply_invalid")
)

type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Bucket admits one request per token; tokens refill at rate per second up
// to burst.
type Bucket interface {
	Allow(ctx context.Context, key string, rate float64, burst int) (Result, error)
}

type redisBucket struct {
	client *redis.Client
	script *redis.Script
}

func NewRedisBucket(client *redis.Client) Bucket {
	return &redisBucket{
		client: client,
		script: redis.NewScript(tokenBucketScript),
	}
}

func (b *redisBucket) Allow(ctx context.Context, key string, rate float64, burst int) (Result, error) {
	if err := validateBucket(key, rate, burst); err != nil {
		return Result{}, err
	}

	res, err := b.script.Run(
		ctx,
		b.client,
		[]string{key},
		rate,
		burst,
		bucketTTL(rate, burst).Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Result{}, err
	}
	if len(res) < 2 {
		return Result{}, ErrBucketReply
	}
	return newResult(res[0] == 1, float64(res[1])/1000, rate, burst), nil
}

type bucketState struct {
	mu     sync.Mutex
	tokens float64
	ts     time.Time
}

type localBucket struct {
	mu      sync.Mutex
	clock   clock.Clock
	buckets cache.Cache[string, *bucketState]
}

// NewLocalBucket keeps buckets in process memory. Idle buckets expire once
// they would have refilled completely.
func NewLocalBucket(clk clock.Clock) Bucket {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &localBucket{
		clock:   clk,
		buckets: cache.NewTTLCache[string, *bucketState](cache.WithNow(clk.Now), cache.WithMaxEntries(100_000)),
	}
}

func (b *localBucket) Allow(_ context.Context, key string, rate float64, burst int) (Result, error) {
	if err := validateBucket(key, rate, burst); err != nil {
		return Result{}, err
	}
	now := b.clock.Now()

	b.mu.Lock()
	state, ok := b.buckets.Get(key)
	if !ok {
		state = &bucketState{tokens: float64(burst), ts: now}
	}
	b.buckets.Set(key, state, bucketTTL(rate, burst))
	b.mu.Unlock()

	state.mu.Lock()
	defer state.mu.Unlock()
	if elapsed := now.Sub(state.ts); elapsed > 0 {
		state.tokens = math.Min(float64(burst), state.tokens+elapsed.Seconds()*rate)
	}
	state.ts = now

	allowed := state.tokens >= 1
	if allowed {
		state.tokens--
	}
	return newResult(allowed, state.tokens, rate, burst), nil
}

func newResult(allowed bool, remaining, rate float64, burst int) Result {
	result := Result{
		Allowed:   allowed,
		Limit:     burst,
		Remaining: int(remaining),
	}
	if !allowed {
		if needed := 1 - remaining; needed > 0 {
			result.RetryAfter = time.Duration(needed / rate * float64(time.Second))
		}
	}
	return result
}

func validateBucket(key string, rate float64, burst int) error {
	switch {
	case key == "":
		return ErrBucketKeyEmpty
	case rate <= 0:
		return ErrBucketRateInvalid
	case burst <= 0:
		return ErrBucketBurstInvalid
	}
	return nil
}

func bucketTTL(rate float64, burst int) time.Duration {
	seconds := math.Ceil((float64(burst) / rate) * 2)
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

// RetryAfterSeconds formats d for the Retry-After header, rounding up.
func RetryAfterSeconds(d time.Duration) string {
	seconds := int(math.Ceil(d.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}
