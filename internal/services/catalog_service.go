package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/warrenbeats/backend/internal/models"
)

// CatalogService is the routine browsing surface around the purchase core:
// listing, search, album detail, favorite flips and ratings. It never moves
// a beat through its lifecycle.
type CatalogService struct {
	db *sql.DB
}

func NewCatalogService(db *sql.DB) *CatalogService {
	return &CatalogService{db: db}
}

// ListBeats returns the catalog, optionally filtered by a text query over
// beat title and genre name.
func (s *CatalogService) ListBeats(ctx context.Context, query string) ([]models.Beat, error) {
	sqlQuery := `
		SELECT b.id, b.album_id, b.title, b.description, b.price, b.duration_secs, b.bpm,
		       b.status, b.reserved_until, b.download_count, b.max_downloads, b.is_favorite,
		       b.created_at, b.updated_at
		FROM beats b
	`
	var args []interface{}
	if query != "" {
		sqlQuery += `
		JOIN albums a ON a.id = b.album_id
		JOIN genres g ON g.id = a.genre_id
		WHERE b.title ILIKE $1 OR g.name ILIKE $1
	`
		args = append(args, "%"+query+"%")
	}
	sqlQuery += ` ORDER BY b.created_at DESC`

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	beats := []models.Beat{}
	for rows.Next() {
		var b models.Beat
		err := rows.Scan(
			&b.ID, &b.AlbumID, &b.Title, &b.Description, &b.Price, &b.DurationSecs, &b.BPM,
			&b.Status, &b.ReservedUntil, &b.DownloadCount, &b.MaxDownloads, &b.IsFavorite,
			&b.CreatedAt, &b.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		beats = append(beats, b)
	}
	return beats, rows.Err()
}

// AlbumBeats returns only available beats in an album. Lapsed reservations
// in the album are swept first so abandoned checkouts reappear.
func (s *CatalogService) AlbumBeats(ctx context.Context, albumID int) (*models.Album, []models.Beat, error) {
	var album models.Album
	err := s.db.QueryRowContext(ctx, `
		SELECT id, genre_id, title, description, cover_key, is_favorite, created_at, updated_at
		FROM albums WHERE id = $1
	`, albumID).Scan(
		&album.ID, &album.GenreID, &album.Title, &album.Description,
		&album.CoverKey, &album.IsFavorite, &album.CreatedAt, &album.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE beats
		SET status = $1, reserved_until = NULL, updated_at = NOW()
		WHERE album_id = $2 AND status = $3 AND reserved_until < NOW()
	`, models.BeatAvailable, albumID, models.BeatReserved)
	if err != nil {
		return nil, nil, fmt.Errorf("album expiry sweep failed: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, album_id, title, description, price, duration_secs, bpm,
		       status, reserved_until, download_count, max_downloads, is_favorite,
		       created_at, updated_at
		FROM beats
		WHERE album_id = $1 AND status = $2
		ORDER BY created_at DESC
	`, albumID, models.BeatAvailable)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	beats := []models.Beat{}
	for rows.Next() {
		var b models.Beat
		err := rows.Scan(
			&b.ID, &b.AlbumID, &b.Title, &b.Description, &b.Price, &b.DurationSecs, &b.BPM,
			&b.Status, &b.ReservedUntil, &b.DownloadCount, &b.MaxDownloads, &b.IsFavorite,
			&b.CreatedAt, &b.UpdatedAt,
		)
		if err != nil {
			return nil, nil, err
		}
		beats = append(beats, b)
	}
	return &album, beats, rows.Err()
}

// ToggleBeatFavorite flips the favorite flag and returns the new value.
func (s *CatalogService) ToggleBeatFavorite(ctx context.Context, beatID int) (bool, error) {
	var favorite bool
	err := s.db.QueryRowContext(ctx, `
		UPDATE beats SET is_favorite = NOT is_favorite, updated_at = NOW()
		WHERE id = $1
		RETURNING is_favorite
	`, beatID).Scan(&favorite)
	if err == sql.ErrNoRows {
		return false, ErrNotFound
	}
	return favorite, err
}

// ToggleAlbumFavorite flips the favorite flag and returns the new value.
func (s *CatalogService) ToggleAlbumFavorite(ctx context.Context, albumID int) (bool, error) {
	var favorite bool
	err := s.db.QueryRowContext(ctx, `
		UPDATE albums SET is_favorite = NOT is_favorite, updated_at = NOW()
		WHERE id = $1
		RETURNING is_favorite
	`, albumID).Scan(&favorite)
	if err == sql.ErrNoRows {
		return false, ErrNotFound
	}
	return favorite, err
}

// RateBeat records a buyer's rating, at most one per (beat, buyer) pair.
func (s *CatalogService) RateBeat(ctx context.Context, buyerID, beatID, stars int, review string) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO ratings (beat_id, buyer_id, stars, review, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (beat_id, buyer_id) DO NOTHING
	`, beatID, buyerID, stars, review)
	if err != nil {
		return fmt.Errorf("failed to rate beat %d: %w", beatID, err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("buyer %d already rated beat %d", buyerID, beatID)
	}
	return nil
}

// BuyerByUserID maps the authenticated identity onto the buyer profile the
// identity provider provisioned.
func (s *CatalogService) BuyerByUserID(ctx context.Context, userID string) (*models.Buyer, error) {
	var b models.Buyer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, email, phone_number, address, country, created_at, updated_at
		FROM buyers WHERE user_id = $1
	`, userID).Scan(&b.ID, &b.UserID, &b.Email, &b.PhoneNumber, &b.Address, &b.Country, &b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}
