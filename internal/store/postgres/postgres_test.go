package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/drwatch/internal/store"
	"github.com/loykin/drwatch/internal/store/storetest"
)

// postgresDSN starts a throwaway server and skips when Docker is unavailable.
func postgresDSN(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()
	c, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("drwatch"),
		tcpostgres.WithUsername("drwatch"),
		tcpostgres.WithPassword("drwatch"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute)),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	dsn, err := c.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	return dsn
}

func TestPostgresContract(t *testing.T) {
	dsn := postgresDSN(t)
	storetest.Run(t, func(t *testing.T, name string) store.Store {
		s, err := New(dsn, name)
		if err != nil {
			t.Fatalf("open %s: %v", name, err)
		}
		t.Cleanup(func() {
			_ = s.Clear(context.Background())
			_ = s.Close()
		})
		return s
	})
}

func TestPostgresStoresShareDatabase(t *testing.T) {
	dsn := postgresDSN(t)
	ctx := context.Background()
	primary, err := New(dsn, "primary")
	if err != nil {
		t.Fatalf("open primary: %v", err)
	}
	defer func() { _ = primary.Close() }()
	backup, err := New(dsn, "backup")
	if err != nil {
		t.Fatalf("open backup: %v", err)
	}
	defer func() { _ = backup.Close() }()

	if err := primary.AppendLine(ctx, "hello world"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := backup.AppendLine(ctx, "uryyb jbeyq"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := primary.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	recs, err := backup.ReadAll(ctx)
	if err != nil || len(recs) != 1 || recs[0] != "uryyb jbeyq" {
		t.Fatalf("clearing primary touched backup: %v %v", recs, err)
	}
}
