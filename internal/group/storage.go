package group

import (
	"fmt"
	"os"

	"groupcore/internal/infra/persistence/memory"
	"groupcore/internal/infra/persistence/postgres"
	"groupcore/internal/infra/persistence/sqlite"
	"groupcore/pkg/domain"
)

// OpenProvider selects a GroupProvider using environment variables.
//
//	GROUPCORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	GROUPCORE_SQLITE_PATH:    database file when driver=sqlite
//	GROUPCORE_POSTGRES_DSN:   connection string when driver=postgres
//
// The returned close function releases the underlying store.
func OpenProvider() (domain.GroupProvider, func() error, error) {
	driver := os.Getenv("GROUPCORE_STORAGE_DRIVER")
	if driver == "" {
		driver = "sqlite"
	}
	switch driver {
	case "memory":
		return memory.NewStore(), func() error { return nil }, nil
	case "sqlite":
		s, err := sqlite.NewStore(os.Getenv("GROUPCORE_SQLITE_PATH"))
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "postgres":
		s, err := postgres.NewStore(os.Getenv("GROUPCORE_POSTGRES_DSN"))
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
