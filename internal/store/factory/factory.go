package factory

import (
	"errors"
	"strings"

	"github.com/loykin/drwatch/internal/store"
	bl "github.com/loykin/drwatch/internal/store/bolt"
	pg "github.com/loykin/drwatch/internal/store/postgres"
	sq "github.com/loykin/drwatch/internal/store/sqlite"
)

// NewFromDSN selects a store implementation based on DSN. name is the logical
// store id ("primary", "backup") used to partition shared databases.
// Supported:
//   - file:     "file://<path>" or a bare filepath (one record per line)
//   - memory:   "memory://"
//   - sqlite:   "sqlite://<path>" or "sqlite://:memory:"
//   - postgres: DSN starting with "postgres://" or "postgresql://"
//   - bolt:     "bolt://<path>"
func NewFromDSN(dsn, name string) (store.Store, error) {
	d := strings.TrimSpace(dsn)
	ld := strings.ToLower(d)
	if ld == "" {
		return nil, errors.New("empty DSN")
	}
	switch {
	case strings.HasPrefix(ld, "postgres://"), strings.HasPrefix(ld, "postgresql://"):
		return pg.New(d, name)
	case strings.HasPrefix(ld, "sqlite://"):
		return sq.New(d[len("sqlite://"):], name)
	case strings.HasPrefix(ld, "bolt://"):
		return bl.New(d[len("bolt://"):], name)
	case strings.HasPrefix(ld, "memory://"):
		return store.NewMemory(name), nil
	case strings.HasPrefix(ld, "file://"):
		return store.NewFile(d[len("file://"):])
	case strings.Contains(ld, "://"):
		return nil, errors.New("unsupported store DSN: " + d)
	}
	// default to a plain file path
	return store.NewFile(d)
}
