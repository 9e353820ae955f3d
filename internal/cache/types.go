package cache

import (
	"errors"
	"time"
)

// Common errors for cache operations.
var (
	// ErrItemTooLarge is returned when a buffer exceeds the cache capacity.
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrClosed is returned after the store has been closed.
	ErrClosed = errors.New("cache is closed")
)

// Stats holds cache performance metrics.
type Stats struct {
	Capacity  int64 // maximum capacity in bytes
	Size      int64 // current size in bytes
	ItemCount int64 // number of items

	Hits      int64
	Misses    int64
	Evictions int64
	HitRate   float64

	LastAccess time.Time
	LastEvict  time.Time
}

// Config holds configuration for the segment store.
type Config struct {
	// Memory front (L1)
	MemoryCapacity int64 // bytes

	// Disk store (L2)
	DiskCapacity     int64  // bytes
	DiskPath         string // directory for cache files
	CompressionLevel int    // zstd level; 0 disables compression
}

// DefaultConfig returns the default store configuration.
func DefaultConfig(diskPath string) Config {
	return Config{
		MemoryCapacity:   64 * 1024 * 1024,
		DiskCapacity:     1024 * 1024 * 1024,
		DiskPath:         diskPath,
		CompressionLevel: 3,
	}
}
