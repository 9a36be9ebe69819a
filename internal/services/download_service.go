package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/warrenbeats/backend/internal/assets"
	"github.com/warrenbeats/backend/internal/audit"
	"github.com/warrenbeats/backend/internal/models"
)

// DownloadService is the authorization and metering boundary around asset
// delivery: only buyers with a completed transaction get the file, each
// delivery writes exactly one history row and one count increment, and the
// beat flips to downloaded when the quota is reached.
type DownloadService struct {
	db    *sql.DB
	store assets.Store
	audit *audit.Logger
}

func NewDownloadService(db *sql.DB, store assets.Store) *DownloadService {
	return &DownloadService{
		db:    db,
		store: store,
		audit: audit.NewLogger(),
	}
}

// Delivery is the receipt for one successful download.
type Delivery struct {
	Asset    io.ReadCloser
	Filename string
	History  *models.DownloadHistory
}

// AuthorizeAndDeliver checks, in order: a completed transaction for this
// (buyer, beat) pair, remaining download quota, and asset retrievability.
// The history insert, the count increment and the possible flip to
// downloaded execute under a row lock in one database transaction, so a
// history entry always corresponds to exactly one increment.
func (s *DownloadService) AuthorizeAndDeliver(ctx context.Context, buyerID, beatID int) (*Delivery, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer dbTx.Rollback()

	var purchased bool
	err = dbTx.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM transactions
			WHERE buyer_id = $1 AND beat_id = $2 AND status = $3
		)
	`, buyerID, beatID, models.TxCompleted).Scan(&purchased)
	if err != nil {
		return nil, err
	}
	if !purchased {
		log.Printf("[DOWNLOAD] Buyer %d has not purchased beat %d", buyerID, beatID)
		return nil, ErrNotPurchased
	}

	var beat models.Beat
	err = dbTx.QueryRowContext(ctx, `
		SELECT id, title, audio_key, status, download_count, max_downloads
		FROM beats
		WHERE id = $1
		FOR UPDATE
	`, beatID).Scan(&beat.ID, &beat.Title, &beat.AudioKey, &beat.Status, &beat.DownloadCount, &beat.MaxDownloads)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if !beat.Downloadable() {
		log.Printf("[DOWNLOAD] Beat %d not downloadable: status=%s, count=%d/%d",
			beatID, beat.Status, beat.DownloadCount, beat.MaxDownloads)
		return nil, ErrExhausted
	}

	exists, err := s.store.Exists(ctx, beat.AudioKey)
	if err != nil {
		return nil, fmt.Errorf("asset lookup failed for beat %d: %w", beatID, err)
	}
	if !exists {
		return nil, ErrAssetMissing
	}

	history := &models.DownloadHistory{BeatID: beatID, BuyerID: buyerID}
	err = dbTx.QueryRowContext(ctx, `
		INSERT INTO download_history (beat_id, buyer_id, downloaded_at)
		VALUES ($1, $2, NOW())
		RETURNING id, downloaded_at
	`, beatID, buyerID).Scan(&history.ID, &history.DownloadedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record download: %w", err)
	}

	// The single increment per delivery. The CASE flips the beat to
	// downloaded when this delivery consumes the last slot.
	_, err = dbTx.ExecContext(ctx, `
		UPDATE beats
		SET download_count = download_count + 1,
		    status = CASE WHEN download_count + 1 >= max_downloads THEN $1 ELSE status END,
		    updated_at = NOW()
		WHERE id = $2
	`, models.BeatDownloaded, beatID)
	if err != nil {
		return nil, fmt.Errorf("failed to increment download count: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return nil, err
	}

	asset, err := s.store.Get(ctx, beat.AudioKey)
	if err != nil {
		// The slot is consumed; the fetch failing afterwards is surfaced,
		// not rolled back, because the store already reported the object
		// present under the same key.
		if errors.Is(err, assets.ErrNotFound) {
			return nil, ErrAssetMissing
		}
		return nil, err
	}

	s.audit.LogDownload(beatID, buyerID, beat.DownloadCount+1)
	return &Delivery{
		Asset:    asset,
		Filename: beat.Title + ".mp3",
		History:  history,
	}, nil
}

// History lists a buyer's deliveries, newest first.
func (s *DownloadService) History(ctx context.Context, buyerID int) ([]models.DownloadHistory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, beat_id, buyer_id, downloaded_at
		FROM download_history
		WHERE buyer_id = $1
		ORDER BY downloaded_at DESC
	`, buyerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := []models.DownloadHistory{}
	for rows.Next() {
		var h models.DownloadHistory
		if err := rows.Scan(&h.ID, &h.BeatID, &h.BuyerID, &h.DownloadedAt); err != nil {
			return nil, err
		}
		history = append(history, h)
	}
	return history, rows.Err()
}
