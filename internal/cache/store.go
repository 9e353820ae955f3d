package cache

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

// Store is the two-level segment store handed to the speech engine. Reads
// hit the memory front first and promote disk hits; writes land on disk
// before the memory front so durability precedes visibility. All operations
// are individually idempotent and honor ctx cancellation at entry; the
// delete-vs-in-flight-write race resolves last-writer-wins.
type Store struct {
	mem    *Memory
	disk   *Disk
	logger *log.Logger
	closed atomic.Bool
}

// NewStore creates a two-level store from cfg.
func NewStore(cfg Config, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Default()
	}
	disk, err := NewDisk(cfg.DiskPath, cfg.DiskCapacity, cfg.CompressionLevel)
	if err != nil {
		return nil, err
	}
	return &Store{
		mem:    NewMemory(cfg.MemoryCapacity),
		disk:   disk,
		logger: logger.With("component", "cache"),
	}, nil
}

// Get returns the buffer for key and whether it was present.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := s.check(ctx); err != nil {
		return nil, false, err
	}

	if buf, ok := s.mem.Get(key); ok {
		return buf, true, nil
	}
	buf, ok := s.disk.Get(key)
	if !ok {
		return nil, false, nil
	}
	if err := s.mem.Put(key, buf); err != nil && err != ErrItemTooLarge {
		return nil, false, err
	}
	return buf, true, nil
}

// Set persists the buffer for key. Overwriting the same key is safe.
func (s *Store) Set(ctx context.Context, key string, buf []byte) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	if err := s.disk.Put(key, buf); err != nil {
		return fmt.Errorf("persisting %s: %w", key, err)
	}
	if err := s.mem.Put(key, buf); err != nil && err != ErrItemTooLarge {
		return err
	}
	s.logger.Debug("segment persisted", "key", key, "bytes", len(buf))
	return nil
}

// Delete removes the buffer for key from both levels.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	s.mem.Delete(key)
	return s.disk.Delete(key)
}

// Contains checks both levels without promoting.
func (s *Store) Contains(key string) bool {
	return s.mem.Contains(key) || s.disk.Contains(key)
}

// Stats returns the disk-level metrics.
func (s *Store) Stats() Stats {
	return s.disk.Stats()
}

// Close persists the disk index. Further operations fail with ErrClosed.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.disk.Close()
}

func (s *Store) check(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}
