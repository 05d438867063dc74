// Package containers starts throwaway service containers for integration
// tests.  Tests using it are skipped under -short.
package containers

import (
    "context"
    "database/sql"
    "testing"

    "github.com/testcontainers/testcontainers-go"
    tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

    "github.com/iliyamo/vat-ticketing/internal/database"
)

// MySQLContainer wraps a testcontainers MySQL instance with the application
// schema installed.
type MySQLContainer struct {
    Container testcontainers.Container
    DSN       string
    DB        *sql.DB
}

// NewMySQLContainer starts MySQL 8, opens it through database.Open and runs
// EnsureSchema.  The container is terminated when the test ends.
func NewMySQLContainer(t *testing.T) *MySQLContainer {
    t.Helper()
    if testing.Short() {
        t.Skip("skipping MySQL container test in -short mode")
    }

    ctx := context.Background()
    container, err := tcmysql.Run(ctx, "mysql:8.0",
        tcmysql.WithDatabase("tickets"),
        tcmysql.WithUsername("tickets"),
        tcmysql.WithPassword("tickets"),
    )
    if err != nil {
        t.Fatalf("failed to start mysql container: %v", err)
    }
    t.Cleanup(func() { _ = container.Terminate(context.Background()) })

    dsn, err := container.ConnectionString(ctx)
    if err != nil {
        t.Fatalf("failed to get mysql connection string: %v", err)
    }
    db, err := database.Open(dsn)
    if err != nil {
        t.Fatalf("failed to open mysql: %v", err)
    }
    t.Cleanup(func() { _ = db.Close() })

    if err := database.EnsureSchema(ctx, db); err != nil {
        t.Fatalf("failed to create schema: %v", err)
    }
    return &MySQLContainer{Container: container, DSN: dsn, DB: db}
}

// Reset empties every application table.  Use between tests for isolation.
func (m *MySQLContainer) Reset(ctx context.Context) error {
    for _, table := range []string{"tickets", "vat_locks"} {
        if _, err := m.DB.ExecContext(ctx, "TRUNCATE TABLE "+table); err != nil {
            return err
        }
    }
    return nil
}
