package cache

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Disk is the L2 persistent store. Buffers are zstd-compressed when that
// actually shrinks them, written temp-file-then-rename so a reader sees
// either the old value or the fully written new one, and indexed by a gob
// file persisted on Close.
type Disk struct {
	basePath string
	capacity int64
	size     int64

	compressionLevel int
	encoder          *zstd.Encoder
	decoder          *zstd.Decoder

	index map[string]*diskEntry

	mu    sync.Mutex
	stats Stats
}

type diskEntry struct {
	Key        string
	FilePath   string
	Size       int64 // size on disk (possibly compressed)
	Compressed bool
	Timestamp  time.Time
	LastAccess time.Time
}

// NewDisk creates a disk store rooted at basePath. A compressionLevel of 0
// disables compression.
func NewDisk(basePath string, capacity int64, compressionLevel int) (*Disk, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	d := &Disk{
		basePath:         basePath,
		capacity:         capacity,
		compressionLevel: compressionLevel,
		index:            make(map[string]*diskEntry),
		stats:            Stats{Capacity: capacity},
	}

	if compressionLevel > 0 {
		var err error
		d.encoder, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		d.decoder, err = zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
	}

	if err := d.loadIndex(); err != nil {
		// Corrupt or missing index: start empty, files get rewritten.
		d.index = make(map[string]*diskEntry)
	}
	for _, entry := range d.index {
		d.size += entry.Size
	}
	d.stats.Size = d.size
	d.stats.ItemCount = int64(len(d.index))

	return d, nil
}

// Get retrieves a buffer from disk, decompressing when needed. A missing or
// unreadable file drops the index entry and reports a miss.
func (d *Disk) Get(key string) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.index[key]
	if !ok {
		d.stats.Misses++
		return nil, false
	}

	data, err := os.ReadFile(entry.FilePath)
	if err != nil {
		d.dropLocked(entry)
		d.stats.Misses++
		return nil, false
	}

	if entry.Compressed && d.decoder != nil {
		decompressed, err := d.decoder.DecodeAll(data, nil)
		if err != nil {
			os.Remove(entry.FilePath)
			d.dropLocked(entry)
			d.stats.Misses++
			return nil, false
		}
		data = decompressed
	}

	entry.LastAccess = time.Now()
	d.stats.Hits++
	d.stats.LastAccess = entry.LastAccess
	return data, true
}

// Put stores a buffer, overwriting any existing entry for key.
func (d *Disk) Put(key string, value []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	toWrite := value
	compressed := false
	if d.encoder != nil && len(value) > 1024 {
		if c := d.encoder.EncodeAll(value, nil); len(c) < len(value) {
			toWrite = c
			compressed = true
		}
	}
	diskSize := int64(len(toWrite))
	if diskSize > d.capacity {
		return ErrItemTooLarge
	}

	if existing, ok := d.index[key]; ok {
		d.dropLocked(existing)
		os.Remove(existing.FilePath)
	}
	for d.size+diskSize > d.capacity && len(d.index) > 0 {
		d.evictOldest()
	}

	filePath := d.filePathFor(key)
	if err := writeFileAtomic(filePath, toWrite); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	now := time.Now()
	d.index[key] = &diskEntry{
		Key:        key,
		FilePath:   filePath,
		Size:       diskSize,
		Compressed: compressed,
		Timestamp:  now,
		LastAccess: now,
	}
	d.size += diskSize
	d.stats.Size = d.size
	d.stats.ItemCount = int64(len(d.index))
	return nil
}

// Delete removes an entry and its file. Deleting an absent key is a no-op.
func (d *Disk) Delete(key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.index[key]
	if !ok {
		return nil
	}
	os.Remove(entry.FilePath)
	d.dropLocked(entry)
	return nil
}

// Contains checks for a key without touching the file.
func (d *Disk) Contains(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.index[key]
	return ok
}

// Clear removes every entry and file and persists the empty index.
func (d *Disk) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, entry := range d.index {
		os.Remove(entry.FilePath)
	}
	d.index = make(map[string]*diskEntry)
	d.size = 0
	d.stats.Size = 0
	d.stats.ItemCount = 0
	return d.saveIndex()
}

// Size returns the on-disk size in bytes.
func (d *Disk) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.size
}

// Stats returns a snapshot of the store metrics.
func (d *Disk) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	stats := d.stats
	stats.Size = d.size
	stats.ItemCount = int64(len(d.index))
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}

// Close persists the index.
func (d *Disk) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.saveIndex()
}

func (d *Disk) dropLocked(entry *diskEntry) {
	delete(d.index, entry.Key)
	d.size -= entry.Size
	d.stats.Size = d.size
	d.stats.ItemCount = int64(len(d.index))
}

func (d *Disk) evictOldest() {
	var oldestKey string
	var oldestTime time.Time
	for key, entry := range d.index {
		if oldestKey == "" || entry.LastAccess.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.LastAccess
		}
	}
	if oldestKey != "" {
		entry := d.index[oldestKey]
		os.Remove(entry.FilePath)
		d.dropLocked(entry)
		d.stats.Evictions++
		d.stats.LastEvict = time.Now()
	}
}

func (d *Disk) filePathFor(key string) string {
	hash := sha256.Sum256([]byte(key))
	return filepath.Join(d.basePath, hex.EncodeToString(hash[:16])+".seg")
}

func (d *Disk) loadIndex() error {
	file, err := os.Open(filepath.Join(d.basePath, "segments.index"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()
	return gob.NewDecoder(file).Decode(&d.index)
}

func (d *Disk) saveIndex() error {
	indexPath := filepath.Join(d.basePath, "segments.index")
	tempPath := indexPath + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return err
	}
	err = gob.NewEncoder(file).Encode(d.index)
	closeErr := file.Close()
	if err != nil {
		os.Remove(tempPath)
		return err
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return closeErr
	}
	return os.Rename(tempPath, indexPath)
}

// writeFileAtomic writes to a temp file and renames it into place so no
// partial write is ever observable.
func writeFileAtomic(path string, data []byte) error {
	tempPath := path + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return err
	}
	_, err = file.Write(data)
	closeErr := file.Close()
	if err != nil {
		os.Remove(tempPath)
		return err
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return closeErr
	}
	return os.Rename(tempPath, path)
}
