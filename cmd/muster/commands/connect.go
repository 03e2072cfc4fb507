package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/dyluth/muster/internal/config"
	"github.com/dyluth/muster/internal/printer"
	"github.com/dyluth/muster/pkg/ledger"
	"github.com/dyluth/muster/pkg/queue"
	"github.com/redis/go-redis/v9"
)

// session is an open connection to one instance's store.
type session struct {
	instanceName string
	ledger       *ledger.Ledger
	queue        *queue.Queue
}

func (s *session) Close() {
	s.ledger.Close()
}

// clientEnv resolves environment defaults, with flags taking precedence.
func clientEnv() (*config.ClientEnv, error) {
	env, err := config.LoadClientEnv()
	if err != nil {
		return nil, err
	}
	if globalInstanceName != "" {
		env.InstanceName = globalInstanceName
	}
	if globalRedisURL != "" {
		env.RedisURL = globalRedisURL
	}
	return env, nil
}

// openSession connects to Redis and verifies it is reachable.
func openSession(ctx context.Context) (*session, error) {
	env, err := clientEnv()
	if err != nil {
		return nil, err
	}

	opts, err := redis.ParseURL(env.RedisURL)
	if err != nil {
		return nil, printer.Error(
			"invalid Redis URL",
			fmt.Sprintf("Could not parse %q: %v", env.RedisURL, err),
			[]string{"Use the form redis://host:port/db"},
		)
	}

	l := ledger.New(redis.NewClient(opts))

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := l.Ping(pingCtx); err != nil {
		l.Close()
		return nil, printer.ErrorWithContext(
			"Redis not accessible",
			"Could not reach the instance store.",
			map[string]string{
				"Instance": env.InstanceName,
				"Redis":    env.RedisURL,
				"Error":    err.Error(),
			},
			[]string{"Check --redis-url or MUSTER_REDIS_URL"},
		)
	}

	q, err := queue.New(l, env.InstanceName)
	if err != nil {
		l.Close()
		return nil, err
	}

	return &session{instanceName: env.InstanceName, ledger: l, queue: q}, nil
}
