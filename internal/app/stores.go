package app

import (
	"fmt"
	"io"

	"realm/internal/cache"
	"realm/internal/cache/disk"
	"realm/internal/cache/memory"
	"realm/internal/cache/postgres"
	"realm/internal/cache/redis"
	"realm/internal/cache/s3"
	"realm/internal/cache/sqlite"
	"realm/internal/config"
)

// OpenStore builds the Cache Store named by cfg.Backend. The returned
// closers release backend connections; the store is nil for "none".
func OpenStore(cfg config.CacheConfig) (cache.Store, []io.Closer, error) {
	var (
		origin  cache.Store
		closers []io.Closer
		remote  = true
	)
	switch cfg.Backend {
	case config.BackendNone:
		return nil, nil, nil
	case config.BackendMemory, "":
		origin, remote = newMemory(cfg), false
	case config.BackendDisk:
		s, err := disk.New(disk.Config{
			Root:       cfg.Dir,
			MaxEntries: cfg.MaxEntries,
			TTL:        cfg.TTL,
		})
		if err != nil {
			return nil, nil, err
		}
		origin, closers = s, append(closers, s)
	case config.BackendSQLite:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		origin, closers = s, append(closers, s)
	case config.BackendPostgres:
		s, err := postgres.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		origin, closers = s, append(closers, s)
	case config.BackendS3:
		s3Cfg := s3.Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
			UseSSL:    cfg.S3.UseSSL,
		}
		if !s3Cfg.Complete() {
			return nil, nil, fmt.Errorf("cache store: s3 config incomplete (endpoint, access key, secret key and bucket are required)")
		}
		s, err := s3.New(s3Cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize s3 cache store: %w", err)
		}
		origin = s
	case config.BackendRedis:
		s, err := redis.New(redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.TTL,
		})
		if err != nil {
			return nil, nil, err
		}
		origin, closers = s, append(closers, s)
	default:
		return nil, nil, fmt.Errorf("cache store: unknown backend %q", cfg.Backend)
	}

	if cfg.Layered && remote {
		return cache.NewLayered(newMemory(cfg), origin), closers, nil
	}
	return origin, closers, nil
}

func newMemory(cfg config.CacheConfig) *memory.Store {
	mc := memory.DefaultConfig()
	if cfg.MaxEntries > 0 {
		mc.MaxEntries = cfg.MaxEntries
	}
	mc.TTL = cfg.TTL
	return memory.New(mc)
}
