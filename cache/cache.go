package cache

import (
	"log/slog"
	"time"

	"github.com/eko/gocache/lib/v4/cache"
	gocache_store "github.com/eko/gocache/store/go_cache/v4"
	gocache "github.com/patrickmn/go-cache"
	"hermannm.dev/devlog/log"
)

// Creates an in-memory cache whose entries expire after the given duration, unless set with their
// own expiration.
func NewCache[T any](name string, expiration time.Duration) cache.CacheInterface[T] {
	log.Debug(
		"creating in-memory cache",
		slog.String("name", name),
		slog.Duration("expiration", expiration),
	)
	return cache.New[T](gocache_store.NewGoCache(gocache.New(expiration, expiration)))
}
