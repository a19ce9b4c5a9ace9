// Package testutil provides shared test infrastructure for integration tests.
// It starts a PostgreSQL container with testcontainers-go, applies a fixture
// copy of the storefront's products table, and hands out a connection pool.
package testutil

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// TestDB holds a PostgreSQL test container and connection pool.
// It is designed to be shared across tests in a single package via
// TestMain. Each test should call Truncate() to reset state.
type TestDB struct {
	Pool      *pgxpool.Pool
	container testcontainers.Container
}

// SetupTestDB starts a PostgreSQL container, creates the fixture schema and
// returns a TestDB with an active connection pool.
//
// Usage in TestMain:
//
//	var testDB *testutil.TestDB
//
//	func TestMain(m *testing.M) {
//	    var code int
//	    defer func() { os.Exit(code) }()
//
//	    db, err := testutil.SetupTestDB()
//	    if err != nil { log.Fatal(err) }
//	    defer db.Close()
//	    testDB = db
//
//	    code = m.Run()
//	}
func SetupTestDB() (*TestDB, error) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("catalog_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("starting postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("getting connection string: %w", err)
	}

	if err := applySchema(connStr); err != nil {
		container.Terminate(ctx)
		return nil, err
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	return &TestDB{Pool: pool, container: container}, nil
}

func applySchema(connStr string) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, connStr)
	if err != nil {
		return fmt.Errorf("creating migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying fixture schema: %w", err)
	}
	return nil
}

// Close terminates the container and closes the pool.
func (tdb *TestDB) Close() {
	if tdb.Pool != nil {
		tdb.Pool.Close()
	}
	if tdb.container != nil {
		tdb.container.Terminate(context.Background())
	}
}

// Truncate removes every product and resets the ID sequence. Call this at
// the start of each test for isolation.
func (tdb *TestDB) Truncate(t *testing.T) {
	t.Helper()
	if _, err := tdb.Pool.Exec(context.Background(), "TRUNCATE products RESTART IDENTITY"); err != nil {
		t.Fatalf("truncating products: %v", err)
	}
}

// ProductFixture describes a row inserted by FixtureProduct.
type ProductFixture struct {
	Name        string
	Price       string
	Category    string
	IsFeatured  bool
	IsAvailable bool
	CreatedAt   time.Time
}

// FixtureProduct inserts a product and returns its ID.
func (tdb *TestDB) FixtureProduct(t *testing.T, p ProductFixture) int64 {
	t.Helper()

	price, err := decimal.NewFromString(p.Price)
	if err != nil {
		t.Fatalf("fixture price %q: %v", p.Price, err)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	var id int64
	err = tdb.Pool.QueryRow(context.Background(), `
		INSERT INTO products (name, description, price, category, is_featured, is_available, created_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7)
		RETURNING id`,
		p.Name, p.Name+" description", price.String(), p.Category, p.IsFeatured, p.IsAvailable, p.CreatedAt,
	).Scan(&id)
	if err != nil {
		t.Fatalf("creating fixture product %q: %v", p.Name, err)
	}
	return id
}
