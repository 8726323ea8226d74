package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/db"
)

// testSecretKey signs the tokens of every server the suite starts
var testSecretKey = []byte("integration-secret-key")

// TestContext holds all the resources needed for integration tests
type TestContext struct {
	DB          *gorm.DB
	RawDB       *sql.DB
	Container   testcontainers.Container
	DatabaseURL string
	// MediaRoot is shared by the suite and every server it starts
	MediaRoot  string
	HTTPClient *http.Client
	InlineMode bool
	BinaryPath string
	// Server is the instance scenarios use unless they start their own
	Server *ServerInstance
}

// NewTestContext creates a new test context with PostgreSQL testcontainer.
// Modes:
//   - Binary mode (default): Set TRAINER_BINARY to the path of the trainerctl binary
//   - Inline mode: Set TRAINER_INLINE=1 to run the server in-process (no binary needed)
func NewTestContext(ctx context.Context) (*TestContext, error) {
	projectRoot, err := findProjectRoot()
	if err != nil {
		return nil, fmt.Errorf("failed to find project root: %w", err)
	}
	migrationsDir := filepath.Join(projectRoot, "db", "migrations")

	inlineMode := os.Getenv("TRAINER_INLINE") == "1"
	binaryPath := os.Getenv("TRAINER_BINARY")

	if !inlineMode && binaryPath == "" {
		return nil, fmt.Errorf("Either TRAINER_BINARY or TRAINER_INLINE=1 is required.\n\nBinary mode:\n  go build -o trainerctl ./cmd/trainerctl\n  INTEGRATION_TEST=1 TRAINER_BINARY=$(pwd)/trainerctl go test -v ./test/integration/...\n\nInline mode:\n  INTEGRATION_TEST=1 TRAINER_INLINE=1 go test -v ./test/integration/...")
	}

	if !inlineMode {
		if _, err := os.Stat(binaryPath); err != nil {
			return nil, fmt.Errorf("TRAINER_BINARY path does not exist: %s", binaryPath)
		}
		log.Printf("Using binary: %s", binaryPath)
	} else {
		log.Println("Using inline server mode")
	}

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("trainer_test"),
		tcpostgres.WithUsername("trainer"),
		tcpostgres.WithPassword("trainer"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	if err := runMigrations(connStr, migrationsDir); err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	gdb, err := db.Connect(db.Config{URL: connStr})
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, err
	}
	rawDB, err := gdb.DB()
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to get raw db: %w", err)
	}

	// Audit messages of inline servers land in the suite database
	if inlineMode {
		_ = os.Setenv("AUDIT_DATABASE_URL", connStr)
	}

	mediaRoot, err := os.MkdirTemp("", "trainer-media-*")
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, err
	}

	tc := &TestContext{
		DB:          gdb,
		RawDB:       rawDB,
		Container:   pgContainer,
		DatabaseURL: connStr,
		MediaRoot:   mediaRoot,
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
		InlineMode:  inlineMode,
		BinaryPath:  binaryPath,
	}

	tc.Server, err = StartServer(tc, DefaultServerConfig())
	if err != nil {
		tc.Close(ctx)
		return nil, fmt.Errorf("failed to start server: %w", err)
	}
	return tc, nil
}

// waitForServer polls the health endpoint until it responds or times out
func waitForServer(serverURL string, timeout time.Duration) error {
	client := &http.Client{Timeout: 2 * time.Second}
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		resp, err := client.Get(serverURL + "/api/health/")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("server did not become ready within %v", timeout)
}

// Close cleans up all test resources
func (tc *TestContext) Close(ctx context.Context) {
	if tc.Server != nil {
		tc.Server.Stop()
	}
	if tc.RawDB != nil {
		_ = tc.RawDB.Close()
	}
	if tc.Container != nil {
		_ = tc.Container.Terminate(ctx)
	}
	if tc.MediaRoot != "" {
		_ = os.RemoveAll(tc.MediaRoot)
	}
}

// findProjectRoot locates the project root directory
func findProjectRoot() (string, error) {
	paths := []string{
		"../..",
		"..",
		".",
	}

	for _, p := range paths {
		goMod := filepath.Join(p, "go.mod")
		if _, err := os.Stat(goMod); err == nil {
			return filepath.Abs(p)
		}
	}

	return "", fmt.Errorf("project root not found (looking for go.mod)")
}

// runMigrations applies the schema the same way trainerctl db migrate does
func runMigrations(dbURL, migrationsDir string) error {
	m, err := migrate.New("file://"+migrationsDir, dbURL+"&x-migrations-table=trainer_schema_migrations")
	if err != nil {
		return err
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
