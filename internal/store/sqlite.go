package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a favorite does not exist
	ErrNotFound = errors.New("favorite not found")
	// ErrInvalidStationUUID is returned for identifiers that are not UUIDs
	ErrInvalidStationUUID = errors.New("invalid station uuid")
)

// Store provides SQLite-backed persistence
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// New creates a new Store, opening the SQLite database and running migrations
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// every connection to ":memory:" is a separate database
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Debug("Store initialized successfully", "path", dbPath)
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// NormalizeStationUUID validates id and returns its canonical form.
func NormalizeStationUUID(id string) (string, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidStationUUID, id)
	}
	return parsed.String(), nil
}

// ============================================================================
// Favorite Operations
// ============================================================================

// AddFavorite inserts fav, or updates the stored metadata when the station is
// already a favorite. On return fav holds the stored row.
func (s *Store) AddFavorite(fav *Favorite) error {
	id, err := NormalizeStationUUID(fav.StationUUID)
	if err != nil {
		return err
	}
	name := strings.TrimSpace(fav.Name)
	if name == "" {
		return fmt.Errorf("favorite name is required")
	}

	const query = `
		INSERT INTO favorites (station_uuid, name, url, favicon, country_code, tags, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(station_uuid) DO UPDATE SET
			name = excluded.name,
			url = excluded.url,
			favicon = excluded.favicon,
			country_code = excluded.country_code,
			tags = excluded.tags
	`

	_, err = s.db.Exec(
		query,
		id, name, fav.URL, fav.Favicon, strings.ToUpper(fav.CountryCode), fav.Tags, s.now(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert favorite: %w", err)
	}

	stored, err := s.GetFavorite(id)
	if err != nil {
		return err
	}
	*fav = *stored
	return nil
}

// GetFavorite retrieves a favorite by station UUID
func (s *Store) GetFavorite(stationUUID string) (*Favorite, error) {
	id, err := NormalizeStationUUID(stationUUID)
	if err != nil {
		return nil, err
	}

	const query = `
		SELECT id, station_uuid, name, url, favicon, country_code, tags, added_at
		FROM favorites WHERE station_uuid = ?
	`

	fav := &Favorite{}
	err = s.db.QueryRow(query, id).Scan(
		&fav.ID, &fav.StationUUID, &fav.Name, &fav.URL, &fav.Favicon,
		&fav.CountryCode, &fav.Tags, &fav.AddedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to query favorite: %w", err)
	}

	return fav, nil
}

// IsFavorite reports whether the station is stored as a favorite
func (s *Store) IsFavorite(stationUUID string) (bool, error) {
	_, err := s.GetFavorite(stationUUID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

// ListFavorites returns favorites newest first. A limit of 0 returns all.
func (s *Store) ListFavorites(limit int) ([]Favorite, error) {
	query := `
		SELECT id, station_uuid, name, url, favicon, country_code, tags, added_at
		FROM favorites
		ORDER BY added_at DESC, id DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query favorites: %w", err)
	}
	defer rows.Close()

	favorites := []Favorite{}
	for rows.Next() {
		var fav Favorite
		if err := rows.Scan(
			&fav.ID, &fav.StationUUID, &fav.Name, &fav.URL, &fav.Favicon,
			&fav.CountryCode, &fav.Tags, &fav.AddedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan favorite: %w", err)
		}
		favorites = append(favorites, fav)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating favorites: %w", err)
	}

	return favorites, nil
}

// RemoveFavorite deletes a favorite by station UUID
func (s *Store) RemoveFavorite(stationUUID string) error {
	id, err := NormalizeStationUUID(stationUUID)
	if err != nil {
		return err
	}

	result, err := s.db.Exec("DELETE FROM favorites WHERE station_uuid = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete favorite: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s.logger.Info("Favorite removed", "station", id)
	return nil
}
