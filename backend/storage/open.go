package storage

import (
	"context"
	"fmt"
)

// Drivers accepted by Open
const (
	DriverSQLite = "sqlite"
	DriverDir    = "dir"
	DriverMemory = "memory"
)

// Open returns the backend named by driver. Directory stores start watching
// for writes from other processes. The returned func releases the backend.
func Open(ctx context.Context, driver, path string) (Backend, func() error, error) {
	switch driver {
	case DriverSQLite:
		b, err := OpenSQLite(path)
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil
	case DriverDir:
		b, err := OpenDir(path)
		if err != nil {
			return nil, nil, err
		}
		if err := b.Watch(ctx); err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil
	case DriverMemory:
		return NewMemoryBackend(), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
