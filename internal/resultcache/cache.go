package resultcache

import (
	"encoding/json"
	"slices"
	"sync"

	"github.com/nerrad567/deskpilot/internal/result"
)

// Logger defines the logging interface used by the cache.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// QueryWriter (re)generates the Excel web-query file for one entry.
type QueryWriter interface {
	SaveExcelQuery(group, key string) result.Result
}

// Cache is the process-wide result store.
//
// Thread Safety: all methods are safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	groups  map[string]map[string]*Entry
	changed bool

	queries QueryWriter
	logger  Logger
}

// New creates an empty cache. queries may be nil.
func New(queries QueryWriter) *Cache {
	return &Cache{
		groups:  make(map[string]map[string]*Entry),
		queries: queries,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the cache.
func (c *Cache) SetLogger(logger Logger) {
	c.logger = logger
}

// Insert stores rows as a RegularCSV entry at group/key, replacing any
// previous entry, and marks the cache changed.
func (c *Cache) Insert(group, key string, rows []Row, columns []string) result.Result {
	if res := validateAddress(group, key); !res.OK {
		return res
	}
	return c.store(group, key, NewRegularEntry(rows, columns))
}

// InsertKeyed stores rowMap as a PrimaryKeyCSV entry at group/key keyed on
// rowKeyName, replacing any previous entry, and marks the cache changed.
func (c *Cache) InsertKeyed(group, key string, rowMap map[string]Row, rowKeyName string, columns []string) result.Result {
	if res := validateAddress(group, key); !res.OK {
		return res
	}
	if rowKeyName == "" {
		return result.Failure("row key name is required for keyed entry %s/%s", group, key)
	}
	return c.store(group, key, NewKeyedEntry(rowMap, rowKeyName, columns))
}

func (c *Cache) store(group, key string, e *Entry) result.Result {
	c.mu.Lock()
	g, ok := c.groups[group]
	if !ok {
		g = make(map[string]*Entry)
		c.groups[group] = g
	}
	g[key] = e
	c.changed = true
	c.mu.Unlock()

	c.logger.Debug("cache entry stored", "group", group, "key", key, "type", e.Type, "count", e.Count)

	if c.queries != nil {
		if res := c.queries.SaveExcelQuery(group, key); !res.OK {
			c.logger.Warn("excel query not saved", "group", group, "key", key, "error", res.Message)
		}
	}
	return result.Success("")
}

// GetCacheEntry returns the entry at group/key, or nil.
func (c *Cache) GetCacheEntry(group, key string) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.groups[group][key]
}

// HasChanged reports whether any insert happened since the last reset.
func (c *Cache) HasChanged() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changed
}

// SerializeAndResetChanged returns the whole cache as JSON,
// {group: {key: entry}}, and clears the changed flag when reset is true.
// Serialisation and reset happen under one lock so no insert is lost.
func (c *Cache) SerializeAndResetChanged(reset bool) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(c.groups)
	if err != nil {
		// Entries only hold strings; this is unreachable in practice.
		c.logger.Error("cache serialisation failed", "error", err)
		return "{}"
	}
	if reset {
		c.changed = false
	}
	return string(data)
}

// Keys lists every group and its keys in sorted order.
func (c *Cache) Keys() map[string][]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string][]string, len(c.groups))
	for group, entries := range c.groups {
		keys := make([]string, 0, len(entries))
		for k := range entries {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		out[group] = keys
	}
	return out
}

func validateAddress(group, key string) result.Result {
	if group == "" || key == "" {
		return result.Failure("cache group and key are required")
	}
	return result.Success("")
}
