package integration

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgImage    = "postgres:16-alpine"
	pgUser     = "hms"
	pgPassword = "hms"
	pgDatabase = "hmstest"
	pgReady    = 30 * time.Second
)

// startPostgresContainer starts a throwaway Postgres through the Docker CLI,
// letting Docker pick the host port. The returned stop func removes the
// container.
func startPostgresContainer(ctx context.Context) (string, func(), error) {
	if _, err := exec.LookPath("docker"); err != nil {
		return "", nil, fmt.Errorf("docker not found: %w", err)
	}

	name := fmt.Sprintf("hms-integration-%d", time.Now().UnixNano())
	id, err := docker(ctx, "run", "-d", "--rm",
		"--name", name,
		"-p", "127.0.0.1::5432",
		"-e", "POSTGRES_USER="+pgUser,
		"-e", "POSTGRES_PASSWORD="+pgPassword,
		"-e", "POSTGRES_DB="+pgDatabase,
		pgImage,
	)
	if err != nil {
		return "", nil, err
	}
	stop := func() {
		_, _ = docker(context.Background(), "rm", "-f", id)
	}

	// "127.0.0.1:49153"
	hostPort, err := docker(ctx, "port", id, "5432/tcp")
	if err != nil {
		stop()
		return "", nil, err
	}
	hostPort = strings.SplitN(hostPort, "\n", 2)[0]

	connStr := fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable", pgUser, pgPassword, hostPort, pgDatabase)
	if err := waitForPostgres(ctx, connStr); err != nil {
		stop()
		return "", nil, err
	}
	return connStr, stop, nil
}

func docker(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "docker", args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("docker %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

func waitForPostgres(ctx context.Context, connStr string) error {
	ctx, cancel := context.WithTimeout(ctx, pgReady)
	defer cancel()

	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()

	var lastErr error
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres not ready after %v: %w", pgReady, lastErr)
		case <-tick.C:
		}
	}
}
