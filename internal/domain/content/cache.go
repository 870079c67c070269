// Package content содержит кэш текстов уроков с ограничением по возрасту
// и по числу записей.
package content

import (
	"sort"
	"sync"
	"time"

	"github.com/web3-hub/learning-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONSTANTS
// ══════════════════════════════════════════════════════════════════════════════

const (
	// DefaultMaxAge - записи старше этого возраста удаляет cleanOldCache.
	DefaultMaxAge = 7 * timeutil.Day

	// DefaultMaxEntries - сколько уроков хранится одновременно.
	DefaultMaxEntries = 50
)

// ══════════════════════════════════════════════════════════════════════════════
// CACHE ENTRY
// ══════════════════════════════════════════════════════════════════════════════

// Entry - закэшированный текст урока.
type Entry struct {
	// Path - логический путь урока, уникальный ключ.
	Path string `json:"path"`

	// Content - Markdown текст.
	Content string `json:"content"`

	// FetchedAt - момент успешной загрузки.
	FetchedAt time.Time `json:"fetched_at"`
}

// Age возвращает возраст записи относительно now.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.FetchedAt)
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHE
// ══════════════════════════════════════════════════════════════════════════════

// Cache - потокобезопасный кэш уроков. Ошибок у операций нет: это чистая
// работа с картой. Сохранение в хранилище выполняет вызывающий код через
// Snapshot/Restore.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]Entry
	maxEntries int
	clock      timeutil.Clock
}

// NewCache создаёт пустой кэш. maxEntries <= 0 снимает ограничение по числу.
func NewCache(maxEntries int, clock timeutil.Clock) *Cache {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &Cache{
		entries:    make(map[string]Entry),
		maxEntries: maxEntries,
		clock:      clock,
	}
}

// Get возвращает запись без побочных эффектов и без загрузки.
func (c *Cache) Get(path string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[path]
	return e, ok
}

// Put вставляет или перезаписывает запись с текущим временем. Если новая
// запись превышает лимит, вытесняется самая старая.
func (c *Cache) Put(path, content string) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := Entry{Path: path, Content: content, FetchedAt: c.clock.Now()}

	if _, exists := c.entries[path]; !exists && c.maxEntries > 0 {
		for len(c.entries) >= c.maxEntries {
			c.evictOldestLocked()
		}
	}
	c.entries[path] = e
	return e
}

func (c *Cache) evictOldestLocked() {
	var oldest string
	var oldestAt time.Time
	first := true
	for p, e := range c.entries {
		if first || e.FetchedAt.Before(oldestAt) || (e.FetchedAt.Equal(oldestAt) && p < oldest) {
			oldest, oldestAt, first = p, e.FetchedAt, false
		}
	}
	if !first {
		delete(c.entries, oldest)
	}
}

// EvictOlderThan удаляет записи, у которых now - FetchedAt > maxAge.
// Запись ровно maxAge остаётся. Повторный вызов ничего не удаляет.
func (c *Cache) EvictOlderThan(maxAge time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	removed := 0
	for p, e := range c.entries {
		if e.Age(now) > maxAge {
			delete(c.entries, p)
			removed++
		}
	}
	return removed
}

// Remove удаляет одну запись. Возвращает false, если её не было.
func (c *Cache) Remove(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[path]
	delete(c.entries, path)
	return ok
}

// Clear удаляет все записи.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Entry)
}

// Size - число живых записей.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Snapshot возвращает копию записей, отсортированную по пути.
func (c *Cache) Snapshot() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Restore заменяет содержимое кэша записями из снимка. Лимит по числу
// применяется так же, как при Put: остаются самые свежие.
func (c *Cache) Restore(entries []Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]Entry, len(entries))
	for _, e := range entries {
		if e.Path == "" {
			continue
		}
		if prev, ok := c.entries[e.Path]; ok && prev.FetchedAt.After(e.FetchedAt) {
			continue
		}
		c.entries[e.Path] = e
	}
	for c.maxEntries > 0 && len(c.entries) > c.maxEntries {
		c.evictOldestLocked()
	}
}
