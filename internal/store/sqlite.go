package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mindhaven/relay/internal/models"
)

// SQLiteDirectory is the room directory for single-node deployments.
type SQLiteDirectory struct {
	db *sql.DB
}

// NewSQLiteDirectory creates a SQLite-backed directory.
// If dbPath is empty, defaults to "./data/relay.db".
func NewSQLiteDirectory(ctx context.Context, dbPath string) (*SQLiteDirectory, error) {
	if dbPath == "" {
		dbPath = "./data/relay.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteDirectory{db: db}

	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteDirectory) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		name TEXT PRIMARY KEY,
		allow_anonymous INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database.
func (s *SQLiteDirectory) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteDirectory) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateRoom creates a community room. Idempotent on name.
func (s *SQLiteDirectory) CreateRoom(ctx context.Context, name string, allowAnonymous bool) (*models.Room, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rooms (name, allow_anonymous) VALUES (?, ?)
		ON CONFLICT(name) DO NOTHING
	`, name, allowAnonymous)
	if err != nil {
		return nil, err
	}
	return s.GetRoom(ctx, name)
}

// GetRoom retrieves a room by name. Returns nil if the room does not exist.
func (s *SQLiteDirectory) GetRoom(ctx context.Context, name string) (*models.Room, error) {
	room := &models.Room{}
	err := s.db.QueryRowContext(ctx, `
		SELECT name, allow_anonymous, created_at
		FROM rooms WHERE name = ?
	`, name).Scan(
		&room.ID,
		&room.AllowAnonymous,
		&room.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return room, nil
}

// ListRooms returns a page of community rooms ordered by name, plus the
// total count.
func (s *SQLiteDirectory) ListRooms(ctx context.Context, limit, offset int) ([]models.Room, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rooms`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, allow_anonymous, created_at
		FROM rooms
		ORDER BY name
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var rooms []models.Room
	for rows.Next() {
		var room models.Room
		if err := rows.Scan(&room.ID, &room.AllowAnonymous, &room.CreatedAt); err != nil {
			return nil, 0, err
		}
		rooms = append(rooms, room)
	}
	return rooms, total, rows.Err()
}

// CountRooms returns the number of community rooms.
func (s *SQLiteDirectory) CountRooms(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rooms`).Scan(&count)
	return count, err
}
