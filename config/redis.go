package config

import (
	"context"
	"strings"
	"time"

	"github.com/rajmehta89/call-agent-backend/internal/utils"
	"github.com/redis/go-redis/v9"
)

// RedisClient carries hangup flags, outbound call context and the finalize queue.
// When nil those fall back to in-process state.
var RedisClient *redis.Client

// redisOptions accepts either a redis:// URL or a bare host:port.
func redisOptions(addr string) (*redis.Options, error) {
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		return redis.ParseURL(addr)
	}
	return &redis.Options{Addr: addr}, nil
}

func InitRedis(addr string) error {
	const op = "config.InitRedis"
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return utils.E(utils.CodeMisconfigured, op, "REDIS_ADDR is not set", nil)
	}
	opt, err := redisOptions(addr)
	if err != nil {
		return utils.E(utils.CodeMisconfigured, op, "bad redis url", err)
	}
	// finalize workers hold a connection in a 5s blocking read each
	opt.ReadTimeout = 10 * time.Second
	opt.DialTimeout = 5 * time.Second

	rdb := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return utils.E(utils.CodeUnavailable, op, "ping failed", err)
	}
	RedisClient = rdb
	return nil
}

func CloseRedis() error {
	if RedisClient == nil {
		return nil
	}
	err := RedisClient.Close()
	RedisClient = nil
	return err
}
