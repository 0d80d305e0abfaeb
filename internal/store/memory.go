package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/mindhaven/relay/internal/models"
)

// dedupCapacity bounds the in-process retention window. At typical room
// traffic this holds far more than the time window ever will.
const dedupCapacity = 65536

// MemoryDedup is the default duplicate-suppression store: an expiring LRU
// keyed by room and message ID. Single-node only; multi-node deployments
// use RedisStore instead.
type MemoryDedup struct {
	cache *expirable.LRU[string, struct{}]
	mu    sync.Mutex
}

// NewMemoryDedup creates a dedup store retaining entries for the given window.
func NewMemoryDedup(retention time.Duration) *MemoryDedup {
	return &MemoryDedup{
		cache: expirable.NewLRU[string, struct{}](dedupCapacity, nil, retention),
	}
}

// MarkSeen records the pair and reports whether it was already present.
func (d *MemoryDedup) MarkSeen(_ context.Context, roomID, messageID string) (bool, error) {
	key := roomID + "\x00" + messageID

	// expirable.LRU is internally synchronized, but Contains+Add must be
	// atomic for concurrent retries of the same message.
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cache.Contains(key) {
		return true, nil
	}
	d.cache.Add(key, struct{}{})
	return false, nil
}

// Close implements DedupStore.
func (d *MemoryDedup) Close() error { return nil }

// MemoryLimiter is a fixed-window in-process rate limiter. Lapsed windows
// are swept lazily on Allow so session churn does not grow the map forever.
type MemoryLimiter struct {
	mu        sync.Mutex
	windows   map[string]*limiterWindow
	lastSweep time.Time
}

type limiterWindow struct {
	start time.Time
	count int
}

// NewMemoryLimiter creates an in-process rate limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{windows: make(map[string]*limiterWindow)}
}

// Allow reports whether sessionID may submit another message.
func (l *MemoryLimiter) Allow(_ context.Context, sessionID string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastSweep) >= window {
		for id, w := range l.windows {
			if now.Sub(w.start) >= window {
				delete(l.windows, id)
			}
		}
		l.lastSweep = now
	}

	w, ok := l.windows[sessionID]
	if !ok || now.Sub(w.start) >= window {
		l.windows[sessionID] = &limiterWindow{start: now, count: 1}
		return true, nil
	}
	if w.count >= limit {
		return false, nil
	}
	w.count++
	return true, nil
}

// MemoryDirectory is an in-process Directory for tests and single-binary
// development runs. Production deployments use Postgres or SQLite.
type MemoryDirectory struct {
	mu    sync.RWMutex
	rooms map[string]models.Room
}

// NewMemoryDirectory creates an empty in-memory room directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{rooms: make(map[string]models.Room)}
}

// Close implements Directory.
func (d *MemoryDirectory) Close() {}

// Ping implements Directory.
func (d *MemoryDirectory) Ping(context.Context) error { return nil }

// CreateRoom adds a community room to the directory.
func (d *MemoryDirectory) CreateRoom(_ context.Context, name string, allowAnonymous bool) (*models.Room, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if room, ok := d.rooms[name]; ok {
		return &room, nil
	}
	room := models.Room{
		ID:             name,
		AllowAnonymous: allowAnonymous,
		CreatedAt:      time.Now().UTC(),
	}
	d.rooms[name] = room
	return &room, nil
}

// GetRoom returns the room by name, or nil if unknown.
func (d *MemoryDirectory) GetRoom(_ context.Context, name string) (*models.Room, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	room, ok := d.rooms[name]
	if !ok {
		return nil, nil
	}
	return &room, nil
}

// ListRooms returns a page of rooms ordered by name, plus the total count.
func (d *MemoryDirectory) ListRooms(_ context.Context, limit, offset int) ([]models.Room, int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.rooms))
	for name := range d.rooms {
		names = append(names, name)
	}
	sort.Strings(names)

	total := len(names)
	if offset >= total {
		return []models.Room{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}

	rooms := make([]models.Room, 0, end-offset)
	for _, name := range names[offset:end] {
		rooms = append(rooms, d.rooms[name])
	}
	return rooms, total, nil
}

// CountRooms returns the number of rooms in the directory.
func (d *MemoryDirectory) CountRooms(context.Context) (int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return int64(len(d.rooms)), nil
}
