package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/muster/internal/config"
	"github.com/dyluth/muster/internal/scheduler"
	"github.com/dyluth/muster/pkg/ledger"
	"github.com/dyluth/muster/pkg/queue"
	"github.com/redis/go-redis/v9"
)

func main() {
	// 1. Load environment variables
	env, err := config.LoadEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// 2. Parse Redis URL
	redisOpts, err := redis.ParseURL(env.RedisURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Invalid MUSTER_REDIS_URL: %v\n", err)
		os.Exit(1)
	}

	// 3. Create ledger
	l := ledger.New(redis.NewClient(redisOpts))
	defer l.Close()

	// 4. Verify Redis connectivity
	ctx := context.Background()
	if err := l.Ping(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Redis not accessible: %v\n", err)
		os.Exit(1)
	}

	// 5. Load muster.yml, falling back to defaults when absent
	cfg, err := config.LoadOrDefault(env.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to load %s: %v\n", env.ConfigPath, err)
		os.Exit(1)
	}

	q, err := queue.New(l, env.InstanceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Scheduler starting for instance '%s' (concurrency %d, stale after %s)\n",
		env.InstanceName, cfg.Scheduler.Concurrency, cfg.Scheduler.StaleAfter)

	// 6. Health and metrics endpoint
	metrics := scheduler.NewMetrics()
	health := scheduler.NewHealthServer(env.HealthAddr, l, metrics)
	if err := health.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to start health server: %v\n", err)
		os.Exit(1)
	}

	// 7. Scheduler engine and liveness sweep
	engine := scheduler.NewEngine(q, scheduler.LogDispatcher{}, *cfg.Scheduler, metrics)
	sweeper := scheduler.NewSweeper(q, cfg.Scheduler.StaleAfter, cfg.Scheduler.SweepInterval, metrics)

	// 8. Setup graceful shutdown
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	// 9. Start engine and sweep in goroutines
	errCh := make(chan error, 2)
	go func() {
		errCh <- engine.Run(runCtx)
	}()
	go func() {
		errCh <- sweeper.Run(runCtx)
	}()

	// 10. Wait for shutdown signal or error
	var runErr error
	select {
	case sig := <-sigCh:
		fmt.Printf("Received signal %v, shutting down gracefully...\n", sig)
	case runErr = <-errCh:
	}
	cancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := health.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: health server shutdown: %v\n", err)
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Scheduler error: %v\n", runErr)
		os.Exit(1)
	}
	fmt.Println("Scheduler stopped")
}
