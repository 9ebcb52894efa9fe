package testutil

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/cloo-solutions/autoreply/internal/database"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	postgresImage = "pgvector/pgvector:0.8.1-pg18"
	redisImage    = "redis:7-alpine"
	rustfsImage   = "rustfs/rustfs:latest"

	postgresCredential = "autoreply"
	rustfsCredential   = "rustfsadmin"
)

// Endpoint is a started container and the host address of its main port.
type Endpoint struct {
	Container testcontainers.Container
	Host      string
	Port      string
}

// Terminate stops and removes the container.
func (e *Endpoint) Terminate(ctx context.Context) error {
	return testcontainers.TerminateContainer(e.Container)
}

func start(ctx context.Context, t *testing.T, req testcontainers.ContainerRequest) Endpoint {
	t.Helper()
	name := req.Image
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start %s: %v", name, err)
	}

	// Endpoint resolves the lowest exposed port; each request exposes one.
	addr, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("%s endpoint: %v", name, err)
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("%s endpoint %q: %v", name, addr, err)
	}
	return Endpoint{Container: container, Host: host, Port: port}
}

// PostgresContainer runs Postgres with the pgvector extension available.
type PostgresContainer struct {
	Endpoint
}

func NewPostgresContainer(ctx context.Context, t *testing.T) *PostgresContainer {
	ep := start(ctx, t, testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     postgresCredential,
			"POSTGRES_PASSWORD": postgresCredential,
			"POSTGRES_DB":       postgresCredential,
		},
		// The entrypoint restarts postgres once after init, hence two ready lines.
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithStartupTimeout(time.Minute),
	})
	return &PostgresContainer{Endpoint: ep}
}

// ConnectionString returns a postgres:// URL for the container database.
func (pc *PostgresContainer) ConnectionString() string {
	return fmt.Sprintf("postgres://%[1]s:%[1]s@%[2]s:%[3]s/%[1]s?sslmode=disable",
		postgresCredential, pc.Host, pc.Port)
}

type RedisContainer struct {
	Endpoint
}

func NewRedisContainer(ctx context.Context, t *testing.T) *RedisContainer {
	ep := start(ctx, t, testcontainers.ContainerRequest{
		Image:        redisImage,
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	})
	return &RedisContainer{Endpoint: ep}
}

func (rc *RedisContainer) URL() string {
	return fmt.Sprintf("redis://%s:%s/0", rc.Host, rc.Port)
}

// RustFSContainer is an S3-compatible object store.
type RustFSContainer struct {
	Endpoint
}

func NewRustFSContainer(ctx context.Context, t *testing.T) *RustFSContainer {
	ep := start(ctx, t, testcontainers.ContainerRequest{
		Image:        rustfsImage,
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"RUSTFS_ACCESS_KEY": rustfsCredential,
			"RUSTFS_SECRET_KEY": rustfsCredential,
		},
		WaitingFor: wait.ForListeningPort("9000/tcp").WithStartupTimeout(30 * time.Second),
	})
	return &RustFSContainer{Endpoint: ep}
}

// URL returns the http:// address of the S3 API.
func (rc *RustFSContainer) URL() string {
	return fmt.Sprintf("http://%s:%s", rc.Host, rc.Port)
}

// Credentials returns the access key id and secret the container accepts.
func (rc *RustFSContainer) Credentials() (string, string) {
	return rustfsCredential, rustfsCredential
}

// NewTestPool migrates the container database with the files in
// migrationsDir and returns a pool connected to it.
func NewTestPool(ctx context.Context, t *testing.T, pc *PostgresContainer, migrationsDir string) *pgxpool.Pool {
	t.Helper()
	if err := database.Migrate(pc.ConnectionString(), migrationsDir); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}

	pool, err := database.NewPool(ctx, database.Config{URL: pc.ConnectionString(), PingBackoff: 250 * time.Millisecond})
	if err != nil {
		t.Fatalf("connect test database: %v", err)
	}
	return pool
}

// TruncateAll empties the policy tables between subtests.
func TruncateAll(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `TRUNCATE TABLE policy_chunks, policies CASCADE`)
	return err
}
