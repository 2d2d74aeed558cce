package rates

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const redisPriceNamespace = "rates:price"

// RedisCache shares prices between service instances. Each crypto symbol is
// one hash; fields are "<fiat>" and "<fiat>:at". Redis errors degrade to a miss.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

func NewRedisCache(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{client: client, ttl: ttl, now: time.Now, logger: logger}
}

func (c *RedisCache) key(symbol string) string {
	return redisPriceNamespace + ":" + symbol
}

func (c *RedisCache) Get(ctx context.Context, symbol, fiat string) (decimal.Decimal, bool) {
	vals, err := c.client.HMGet(ctx, c.key(symbol), fiat, fiat+":at").Result()
	if err != nil {
		c.logger.Warn("rate cache read failed", zap.String("symbol", symbol), zap.Error(err))
		return decimal.Decimal{}, false
	}
	priceStr, ok1 := vals[0].(string)
	atStr, ok2 := vals[1].(string)
	if !ok1 || !ok2 {
		return decimal.Decimal{}, false
	}
	at, err := strconv.ParseInt(atStr, 10, 64)
	if err != nil || c.now().Sub(time.Unix(0, at)) >= c.ttl {
		return decimal.Decimal{}, false
	}
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return price, true
}

func (c *RedisCache) Set(ctx context.Context, symbol, fiat string, price decimal.Decimal) {
	key := c.key(symbol)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fiat, price.String(), fiat+":at", strconv.FormatInt(c.now().UnixNano(), 10))
		pipe.Expire(ctx, key, c.ttl)
		return nil
	})
	if err != nil {
		c.logger.Warn("rate cache write failed", zap.String("symbol", symbol), zap.Error(err))
	}
}
