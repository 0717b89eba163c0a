package testutil

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const startupTimeout = time.Minute

// Images can be pinned from the environment when the defaults are not mirrored.
var (
	postgresImage = imageFromEnv("STATUSWATCH_TEST_POSTGRES_IMAGE", "postgres:16-alpine")
	redisImage    = imageFromEnv("STATUSWATCH_TEST_REDIS_IMAGE", "redis:7-alpine")
)

func imageFromEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// PostgresContainer is a running database with an empty statuswatch schema.
type PostgresContainer struct {
	*postgres.PostgresContainer
	ConnectionString string
}

// RedisContainer is a running Redis used by the status cache.
type RedisContainer struct {
	testcontainers.Container
	URL string
}

// NewPostgresContainer starts PostgreSQL. Callers terminate it.
func NewPostgresContainer(ctx context.Context) (*PostgresContainer, error) {
	c, err := postgres.Run(ctx, postgresImage,
		postgres.WithDatabase("statuswatch"),
		postgres.WithUsername("statuswatch"),
		postgres.WithPassword("statuswatch"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", postgresImage, err)
	}

	dsn, err := c.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = c.Terminate(context.Background())
		return nil, fmt.Errorf("postgres dsn: %w", err)
	}

	return &PostgresContainer{PostgresContainer: c, ConnectionString: dsn}, nil
}

// NewRedisContainer starts Redis with persistence disabled. Callers terminate it.
func NewRedisContainer(ctx context.Context) (*RedisContainer, error) {
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        redisImage,
			Cmd:          []string{"redis-server", "--save", "", "--appendonly", "no"},
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(startupTimeout),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", redisImage, err)
	}

	endpoint, err := c.PortEndpoint(ctx, "6379/tcp", "redis")
	if err != nil {
		_ = c.Terminate(context.Background())
		return nil, fmt.Errorf("redis endpoint: %w", err)
	}

	return &RedisContainer{Container: c, URL: endpoint + "/0"}, nil
}
