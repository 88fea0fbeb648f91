// Package queue constructs the configured job queue adapter.
package queue

import (
	"fmt"

	"github.com/kiranshivaraju/jobsync/internal/config"
	"github.com/kiranshivaraju/jobsync/internal/queue/gearman"
	"github.com/kiranshivaraju/jobsync/internal/queue/redisq"
	"github.com/kiranshivaraju/jobsync/pkg/models"
	"github.com/redis/go-redis/v9"
)

// NewConnector constructs the queue adapter selected by cfg.Driver.
// Called once at server startup. rdb is only used by the redis driver.
func NewConnector(cfg config.QueueConfig, rdb *redis.Client) (models.QueueConnector, error) {
	switch cfg.Driver {
	case "gearman":
		return gearman.NewConnector(cfg), nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("redis queue driver requires a redis client")
		}
		return redisq.NewConnector(rdb, cfg.RedisPrefix, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown queue driver %q: must be one of gearman, redis", cfg.Driver)
	}
}
