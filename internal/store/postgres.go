package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mindhaven/relay/internal/models"
)

// PostgresDirectory is the production room directory.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

// NewPostgresDirectory creates a directory backed by a pgx connection pool.
func NewPostgresDirectory(ctx context.Context, databaseURL string) (*PostgresDirectory, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresDirectory{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresDirectory) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresDirectory) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// RunMigrations creates the directory schema if it does not exist.
func RunMigrations(ctx context.Context, databaseURL string) error {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	_, err = conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS rooms (
			name TEXT PRIMARY KEY,
			allow_anonymous BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`)
	return err
}

// CreateRoom creates a community room. Idempotent on name.
func (s *PostgresDirectory) CreateRoom(ctx context.Context, name string, allowAnonymous bool) (*models.Room, error) {
	room := &models.Room{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO rooms (name, allow_anonymous)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING name, allow_anonymous, created_at
	`, name, allowAnonymous).Scan(
		&room.ID,
		&room.AllowAnonymous,
		&room.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return room, nil
}

// GetRoom retrieves a room by name. Returns nil if the room does not exist.
func (s *PostgresDirectory) GetRoom(ctx context.Context, name string) (*models.Room, error) {
	room := &models.Room{}
	err := s.pool.QueryRow(ctx, `
		SELECT name, allow_anonymous, created_at
		FROM rooms WHERE name = $1
	`, name).Scan(
		&room.ID,
		&room.AllowAnonymous,
		&room.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return room, nil
}

// ListRooms returns a page of community rooms ordered by name, plus the
// total count.
func (s *PostgresDirectory) ListRooms(ctx context.Context, limit, offset int) ([]models.Room, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM rooms`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT name, allow_anonymous, created_at
		FROM rooms
		ORDER BY name
		LIMIT $1 OFFSET $2
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
func (s *PostgresDirectory) CountRooms(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM rooms`).Scan(&count)
	return count, err
}
