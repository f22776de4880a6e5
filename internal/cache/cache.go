package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Key identifies one provider request. Temperature and max tokens are
// run-wide settings and are not part of it.
type Key struct {
	Provider     string
	Model        string
	SystemPrompt string
	UserPrompt   string
}

// Hash returns the hex SHA-256 of the key. Fields are length-prefixed so
// different splits of the same text never collide.
func (k Key) Hash() string {
	h := sha256.New()
	for _, field := range []string{k.Provider, k.Model, k.SystemPrompt, k.UserPrompt} {
		h.Write([]byte(strconv.Itoa(len(field))))
		h.Write([]byte{':'})
		h.Write([]byte(field))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Entry is one stored reply. Prompts are not stored, only their hash.
type Entry struct {
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	KeyHash   string    `json:"keyHash"`
	Reply     string    `json:"reply"`
	StoredAt  time.Time `json:"storedAt"`
	ExpiresAt time.Time `json:"expiresAt,omitzero"`
}

// Expired reports whether the entry is past its expiry. Entries without an
// expiry never expire.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// Cache stores provider replies as one JSON file per request. A disabled
// Cache misses on every Get and ignores Put.
type Cache struct {
	dir     string
	ttl     time.Duration
	enabled bool
	now     func() time.Time
}

// New opens the cache in dir, or in the user cache directory when dir is
// empty. A ttlSeconds of zero stores entries without expiry.
func New(enabled bool, dir string, ttlSeconds int) (*Cache, error) {
	if !enabled {
		return &Cache{now: time.Now}, nil
	}
	if dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("locating cache directory: %w", err)
		}
		dir = filepath.Join(base, "rulebot")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &Cache{
		dir:     dir,
		ttl:     time.Duration(ttlSeconds) * time.Second,
		enabled: true,
		now:     time.Now,
	}, nil
}

// Dir returns the cache directory, empty when disabled.
func (c *Cache) Dir() string { return c.dir }

// Enabled reports whether the cache stores anything.
func (c *Cache) Enabled() bool { return c.enabled }

func (c *Cache) path(hash string) string {
	return filepath.Join(c.dir, hash+".json")
}

// Get returns the stored reply for k. Expired entries are removed and miss,
// as do entries whose provider or model disagree with k.
func (c *Cache) Get(k Key) (string, bool) {
	if !c.enabled {
		return "", false
	}
	hash := k.Hash()
	entry, err := readEntry(c.path(hash))
	if err != nil {
		return "", false
	}
	if entry.Expired(c.now()) {
		_ = os.Remove(c.path(hash))
		return "", false
	}
	if entry.KeyHash != hash || entry.Provider != k.Provider || entry.Model != k.Model {
		return "", false
	}
	return entry.Reply, true
}

// Put stores reply for k. The file is written under a temporary name and
// renamed so concurrent readers never see a partial entry.
func (c *Cache) Put(k Key, reply string) error {
	if !c.enabled {
		return nil
	}
	hash := k.Hash()
	now := c.now()
	entry := Entry{
		Provider: k.Provider,
		Model:    k.Model,
		KeyHash:  hash,
		Reply:    reply,
		StoredAt: now,
	}
	if c.ttl > 0 {
		entry.ExpiresAt = now.Add(c.ttl)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, hash+".*.tmp")
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path(hash)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// Clear removes every entry.
func (c *Cache) Clear() error {
	_, err := c.remove(func(string, Entry, error) bool { return true })
	return err
}

// Prune removes expired and unreadable entries and returns how many were
// removed.
func (c *Cache) Prune() (int, error) {
	now := c.now()
	return c.remove(func(_ string, e Entry, err error) bool {
		return err != nil || e.Expired(now)
	})
}

func (c *Cache) remove(match func(path string, e Entry, err error) bool) (int, error) {
	removed := 0
	var errs []error
	err := c.walk(func(path string, e Entry, readErr error) {
		if !match(path, e, readErr) {
			return
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			return
		}
		removed++
	})
	if err != nil {
		return removed, err
	}
	if len(errs) > 0 {
		return removed, fmt.Errorf("removing cache entries: %w", errors.Join(errs...))
	}
	return removed, nil
}

// walk calls fn for every entry file. Other files in the directory are left
// alone.
func (c *Cache) walk(fn func(path string, e Entry, err error)) error {
	if !c.enabled {
		return nil
	}
	files, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading cache directory: %w", err)
	}
	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
			continue
		}
		path := filepath.Join(c.dir, f.Name())
		e, err := readEntry(path)
		fn(path, e, err)
	}
	return nil
}

func readEntry(path string) (Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, err
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return e, nil
}

// Stats describes the cache contents.
type Stats struct {
	Dir        string         `json:"dir"`
	Entries    int            `json:"entries"`
	TotalBytes int64          `json:"totalBytes"`
	Expired    int            `json:"expired"`
	Unreadable int            `json:"unreadable,omitempty"`
	ByProvider map[string]int `json:"byProvider,omitempty"`
}

// GetStats counts entries per provider and how many have expired.
func (c *Cache) GetStats() (Stats, error) {
	stats := Stats{Dir: c.dir}
	now := c.now()
	err := c.walk(func(path string, e Entry, readErr error) {
		stats.Entries++
		if info, err := os.Stat(path); err == nil {
			stats.TotalBytes += info.Size()
		}
		if readErr != nil {
			stats.Unreadable++
			return
		}
		if e.Expired(now) {
			stats.Expired++
		}
		if e.Provider != "" {
			if stats.ByProvider == nil {
				stats.ByProvider = make(map[string]int)
			}
			stats.ByProvider[e.Provider]++
		}
	})
	return stats, err
}
