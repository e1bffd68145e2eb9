// Package cache stores raw API records on disk, one JSON array per file.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const (
	// lockFileName guards writes to the cache directory across processes.
	lockFileName = ".labelage.lock"

	// lockTimeout is how long Save and Clear wait for another process to release the lock.
	lockTimeout = 30 * time.Second

	// lockPollInterval is how often to retry acquiring the lock.
	lockPollInterval = 50 * time.Millisecond
)

// queryHashLen is the number of hex digits of the query hash in a namespace path.
const queryHashLen = 12

// ownedPatterns lists the file names this cache writes; Clear only removes these.
var ownedPatterns = []string{"issues.json", "*-events.json"}

// Logger interface for logging operations (Interface Segregation Principle).
type Logger interface {
	Printf(format string, v ...interface{})
}

// FileCache provides persistent file-based caching of raw API records.
// Entries never expire: a present file always wins over the network.
type FileCache struct {
	dir    string
	mu     sync.RWMutex
	lock   *flock.Flock
	logger Logger
}

// NewFileCache creates a new file cache rooted at dir.
func NewFileCache(dir string, logger Logger) *FileCache {
	if dir == "" {
		dir = "."
	}
	return &FileCache{
		dir:    dir,
		lock:   flock.New(filepath.Join(dir, lockFileName)),
		logger: logger,
	}
}

// Namespace returns the directory holding the records of one query below root:
// root/<platform>/<escaped project>/<hash of query>. query is the collection URL,
// which carries the base URL, labels and state, so changing any of them never
// reads another query's records.
func Namespace(root, platform, project, query string) string {
	if root == "" {
		root = "."
	}
	sum := sha256.Sum256([]byte(query))
	return filepath.Join(root, platform, url.PathEscape(project), hex.EncodeToString(sum[:])[:queryHashLen])
}

// Dir returns the cache directory.
func (c *FileCache) Dir() string {
	return c.dir
}

// Path returns the file path backing the named entry.
func (c *FileCache) Path(name string) string {
	return filepath.Join(c.dir, name)
}

// Load reads the named entry.
// Returns found=false if the file doesn't exist.
func (c *FileCache) Load(name string) ([]json.RawMessage, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	path := c.Path(name)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache file %s: %w", path, err)
	}

	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, false, fmt.Errorf("failed to parse cache file %s: %w", path, err)
	}

	c.logger.Printf("[Cache] Loaded %s (%d records)", path, len(records))
	return records, true, nil
}

// Save writes the named entry as an indented JSON array.
func (c *FileCache) Save(ctx context.Context, name string, records []json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if records == nil {
		records = []json.RawMessage{}
	}

	jsonData, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory %s: %w", c.dir, err)
	}

	unlock, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	// Write to temporary file first (atomic write)
	path := c.Path(name)
	tempFile := path + ".tmp"
	if err := os.WriteFile(tempFile, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	c.logger.Printf("[Cache] Saved %s (%d records)", path, len(records))
	return nil
}

// Clear removes every cache file written by this cache and returns how many were removed.
func (c *FileCache) Clear(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := os.Stat(c.dir); os.IsNotExist(err) {
		return 0, nil
	}

	unlock, err := c.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	removed := 0
	for _, pattern := range ownedPatterns {
		matches, err := filepath.Glob(filepath.Join(c.dir, pattern))
		if err != nil {
			return removed, err
		}
		for _, path := range matches {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return removed, fmt.Errorf("failed to remove %s: %w", path, err)
			}
			removed++
		}
	}

	c.logger.Printf("[Cache] Cleared %d files from %s", removed, c.dir)
	return removed, nil
}

// acquire takes the exclusive directory lock, polling until ctx is done or lockTimeout passes.
func (c *FileCache) acquire(ctx context.Context) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	locked, err := c.lock.TryLockContext(ctx, lockPollInterval)
	if err != nil {
		return nil, fmt.Errorf("failed to lock cache directory %s: %w", c.dir, err)
	}
	if !locked {
		return nil, fmt.Errorf("cache directory %s is locked by another process", c.dir)
	}

	return func() { _ = c.lock.Unlock() }, nil
}
