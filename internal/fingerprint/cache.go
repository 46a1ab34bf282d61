package fingerprint

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/rohmanhakim/webcrawler/pkg/fileutil"
)

var unsafeHostChar = regexp.MustCompile(`[^A-Za-z0-9.-]`)

// sanitizeHost replaces any character outside [A-Za-z0-9.-] with '_', so a
// host can be used directly as a filename.
func sanitizeHost(host string) string {
	return unsafeHostChar.ReplaceAllString(host, "_")
}

// Cache holds fingerprint records in memory, grouped by host, each host
// backed by its own JSON file on disk. A host's file is loaded lazily on
// first touch of that host and flushed
// explicitly at crawl end; callers share a single Cache across all workers
// for one crawl.
type Cache struct {
	mu       sync.Mutex
	dir      string
	byHost   map[string]map[string]Record
	dirtyMap map[string]bool
}

func NewCache(dir string) *Cache {
	return &Cache{
		dir:      dir,
		byHost:   make(map[string]map[string]Record),
		dirtyMap: make(map[string]bool),
	}
}

// Get returns the cached Record for url's host, loading the host's cache
// file from disk on first access. ok is false when no prior record exists.
func (c *Cache) Get(host string, url string) (Record, bool, *FingerprintError) {
	c.mu.Lock()
	defer c.mu.Unlock()

	records, err := c.ensureLoadedLocked(host)
	if err != nil {
		return Record{}, false, err
	}
	r, ok := records[url]
	return r, ok, nil
}

// Put upserts url's Record in url's host bucket and marks that host dirty
// for the next Flush.
func (c *Cache) Put(host string, record Record) *FingerprintError {
	c.mu.Lock()
	defer c.mu.Unlock()

	records, err := c.ensureLoadedLocked(host)
	if err != nil {
		return err
	}
	records[record.Url] = record
	c.dirtyMap[host] = true
	return nil
}

func (c *Cache) ensureLoadedLocked(host string) (map[string]Record, *FingerprintError) {
	if records, ok := c.byHost[host]; ok {
		return records, nil
	}

	path := c.hostPath(host)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		records := make(map[string]Record)
		c.byHost[host] = records
		return records, nil
	}
	if err != nil {
		return nil, &FingerprintError{
			Message:   err.Error(),
			Retryable: true,
			Cause:     ErrCauseReadFailure,
		}
	}

	var records map[string]Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, &FingerprintError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseDecodeFailure,
		}
	}
	if records == nil {
		records = make(map[string]Record)
	}
	c.byHost[host] = records
	return records, nil
}

// Flush writes every dirty host's records back to disk and clears the
// dirty set. It is intended to be called once, at crawl end.
func (c *Cache) Flush() *FingerprintError {
	c.mu.Lock()
	defer c.mu.Unlock()

	if fileErr := fileutil.EnsureDir(c.dir); fileErr != nil {
		return &FingerprintError{
			Message:   fileErr.Error(),
			Retryable: true,
			Cause:     ErrCauseWriteFailure,
		}
	}

	for host, dirty := range c.dirtyMap {
		if !dirty {
			continue
		}
		records := c.byHost[host]
		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return &FingerprintError{
				Message:   err.Error(),
				Retryable: false,
				Cause:     ErrCauseWriteFailure,
			}
		}
		if err := os.WriteFile(c.hostPath(host), data, 0644); err != nil {
			return &FingerprintError{
				Message:   err.Error(),
				Retryable: true,
				Cause:     ErrCauseWriteFailure,
			}
		}
		c.dirtyMap[host] = false
	}
	return nil
}

func (c *Cache) hostPath(host string) string {
	return filepath.Join(c.dir, sanitizeHost(host)+".json")
}
