// Package store provides the persistence boundaries of the messaging core:
// the room directory (which community rooms exist and what they allow) and
// the duplicate-suppression window the router consults before fan-out.
package store

import (
	"context"
	"time"

	"github.com/mindhaven/relay/internal/models"
)

// Directory is the room catalog. Community rooms pre-exist here; assistant
// rooms are created on demand by the registry and never hit the directory.
// PostgresDirectory and SQLiteDirectory both implement this interface.
type Directory interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Room operations
	CreateRoom(ctx context.Context, name string, allowAnonymous bool) (*models.Room, error)
	GetRoom(ctx context.Context, name string) (*models.Room, error)
	ListRooms(ctx context.Context, limit, offset int) ([]models.Room, int, error)
	CountRooms(ctx context.Context) (int64, error)
}

// DedupStore remembers which (room, message) pairs have already been
// acknowledged, within a retention window. MarkSeen is atomic: concurrent
// calls for the same pair report seen=true to all but one caller.
type DedupStore interface {
	MarkSeen(ctx context.Context, roomID, messageID string) (seen bool, err error)
	Close() error
}

// RateLimiter bounds per-session submission rates.
type RateLimiter interface {
	Allow(ctx context.Context, sessionID string, limit int, window time.Duration) (bool, error)
}
