package statuscache

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/fleetlog/telemetryhub/api/pkg/config"
)

// New selects the Redis backend when cfg.URL is set, falling back to
// the in-process map otherwise. Unlike the object store adapter this
// choice is not sticky: a Redis outage is reported through HealthCheck
// rather than silently downgrading the whole process.
func New(ctx context.Context, cfg config.Redis) Cache {
	if cfg.URL == "" {
		log.Info().Msg("statuscache: REDIS_URL not set, using in-process backend")
		return NewMemoryCache()
	}

	cache, err := NewRedisCache(ctx, cfg.URL)
	if err != nil {
		log.Warn().Err(err).Msg("statuscache: redis unavailable at startup, using in-process backend")
		return NewMemoryCache()
	}

	return cache
}
