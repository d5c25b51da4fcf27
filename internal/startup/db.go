package startup

import (
	"context"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edutrack/messaging/internal/logger"
)

// ConnectDBWithRetry connects to Postgres with retries; a briefly unavailable
// database does not kill the process immediately.
func ConnectDBWithRetry(poolCfg *pgxpool.Config, maxWait time.Duration) *pgxpool.Pool {
	deadline := time.Now().Add(maxWait)
	backoff := 2 * time.Second
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		cancel()
		if err != nil {
			if time.Now().After(deadline) {
				logger.Errorf("connect to db (gave up after %v): %v", maxWait, err)
				os.Exit(1)
			}
			logger.Errorf("db connect failed, retry in %v: %v", backoff, err)
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = pool.Ping(pingCtx)
		pingCancel()
		if err != nil {
			pool.Close()
			if time.Now().After(deadline) {
				logger.Errorf("db ping (gave up after %v): %v", maxWait, err)
				os.Exit(1)
			}
			logger.Errorf("db ping failed, retry in %v: %v", backoff, err)
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		return pool
	}
}
