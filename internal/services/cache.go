package services

import (
	"context"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"

	"valuations/internal/metrics"
)

// cacheStore 为 ResponseCache 所需的 Redis 最小接口，便于测试替换。
type cacheStore interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// ResponseCache 以 Redis 缓存上游响应体。缓存故障只记录日志，不影响主流程。
type ResponseCache struct {
	store  cacheStore
	prefix string
	ttl    time.Duration
}

// NewResponseCache 构造缓存；store 为 nil 或 ttl<=0 时返回 nil（即不缓存）。
func NewResponseCache(store cacheStore, prefix string, ttl time.Duration) *ResponseCache {
	if store == nil || ttl <= 0 {
		return nil
	}
	if prefix == "" {
		prefix = "upstream"
	}
	return &ResponseCache{store: store, prefix: prefix, ttl: ttl}
}

// Key 以 URL 的 xxhash 作为缓存键，避免过长或含特殊字符的键。
func (c *ResponseCache) Key(url string) string {
	return c.prefix + ":" + strconv.FormatUint(xxhash.Sum64String(url), 16)
}

func (c *ResponseCache) Get(ctx context.Context, url string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	b, err := c.store.Get(ctx, c.Key(url)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.WithError(err).WithField("url", url).Warn("upstream cache get failed")
		}
		metrics.UpstreamCache.WithLabelValues("miss").Inc()
		return nil, false
	}
	metrics.UpstreamCache.WithLabelValues("hit").Inc()
	return b, true
}

func (c *ResponseCache) Set(ctx context.Context, url string, body []byte) {
	if c == nil {
		return
	}
	if err := c.store.Set(ctx, c.Key(url), body, c.ttl).Err(); err != nil {
		log.WithError(err).WithField("url", url).Warn("upstream cache set failed")
	}
}
