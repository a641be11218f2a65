package database

import "fmt"

// Open connects to the backend named by storeType.
func Open(storeType, dsn string) (Store, error) {
	switch storeType {
	case "memory":
		return NewMemStore(), nil
	case "postgres":
		return NewPgStore(dsn)
	case "sqlite":
		return NewGormStore(dsn)
	default:
		return nil, fmt.Errorf("unknown store type %q", storeType)
	}
}
