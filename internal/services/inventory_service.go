package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/warrenbeats/backend/internal/config"
	"github.com/warrenbeats/backend/internal/models"
)

// InventoryService owns the beat lifecycle: available -> reserved -> sold ->
// downloaded, plus expiry-driven rollback. All contended writes are
// conditional UPDATEs checked via RowsAffected, so the database serializes
// racing callers and the second writer is rejected, never double-applied.
type InventoryService struct {
	db     *sql.DB
	config *config.CheckoutConfig
}

func NewInventoryService(db *sql.DB, cfg *config.CheckoutConfig) *InventoryService {
	return &InventoryService{db: db, config: cfg}
}

const beatColumns = `id, album_id, title, description, audio_key, price, duration_secs, bpm,
	       status, reserved_until, download_count, max_downloads, is_favorite, created_at, updated_at`

func scanBeat(row *sql.Row) (*models.Beat, error) {
	var b models.Beat
	err := row.Scan(
		&b.ID, &b.AlbumID, &b.Title, &b.Description, &b.AudioKey, &b.Price,
		&b.DurationSecs, &b.BPM, &b.Status, &b.ReservedUntil, &b.DownloadCount,
		&b.MaxDownloads, &b.IsFavorite, &b.CreatedAt, &b.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBeat fetches a beat by id.
func (s *InventoryService) GetBeat(ctx context.Context, beatID int) (*models.Beat, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+beatColumns+`
		FROM beats WHERE id = $1
	`, beatID)
	return scanBeat(row)
}

// Reserve places a time-boxed exclusive hold on an available beat. Exactly
// one of two racing callers wins; the loser gets ErrAlreadyReserved. The
// expiry sweep runs first so an abandoned hold does not block the sale.
func (s *InventoryService) Reserve(ctx context.Context, beatID int) (*models.Beat, error) {
	if err := s.sweepExpired(ctx, beatID); err != nil {
		return nil, err
	}

	reservedUntil := time.Now().Add(s.config.ReservationTTL)
	result, err := s.db.ExecContext(ctx, `
		UPDATE beats
		SET status = $1, reserved_until = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4
	`, models.BeatReserved, reservedUntil, beatID, models.BeatAvailable)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve beat %d: %w", beatID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		// Lost the race, or the beat is sold/downloaded/unknown.
		beat, err := s.GetBeat(ctx, beatID)
		if err != nil {
			return nil, err
		}
		log.Printf("[INVENTORY] Reserve rejected for beat %d, status: %s", beatID, beat.Status)
		return nil, ErrAlreadyReserved
	}

	log.Printf("[INVENTORY] Beat %d reserved until %v", beatID, reservedUntil)
	return s.GetBeat(ctx, beatID)
}

// ReleaseReservation is the explicit companion called by the ledger on
// payment failure/cancellation. Idempotent. Unless release_on_failure is
// configured, only an already-expired hold is released, matching the
// original marketplace behavior.
func (s *InventoryService) ReleaseReservation(ctx context.Context, beatID int) error {
	query := `
		UPDATE beats
		SET status = $1, reserved_until = NULL, updated_at = NOW()
		WHERE id = $2 AND status = $3 AND reserved_until < NOW()
	`
	if s.config.ReleaseOnFailure {
		query = `
		UPDATE beats
		SET status = $1, reserved_until = NULL, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`
	}

	result, err := s.db.ExecContext(ctx, query, models.BeatAvailable, beatID, models.BeatReserved)
	if err != nil {
		return fmt.Errorf("failed to release beat %d: %w", beatID, err)
	}

	if n, _ := result.RowsAffected(); n > 0 {
		log.Printf("[INVENTORY] Reservation released for beat %d", beatID)
	}
	return nil
}

// IsAvailable reports whether the beat can be purchased. This is a
// read-with-side-effect: expired reservations are rolled back first, so
// availability is discovered lazily with no background sweeper.
func (s *InventoryService) IsAvailable(ctx context.Context, beatID int) (bool, error) {
	if err := s.sweepExpired(ctx, beatID); err != nil {
		return false, err
	}

	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM beats WHERE id = $1`, beatID).Scan(&status)
	if err == sql.ErrNoRows {
		return false, ErrNotFound
	}
	if err != nil {
		return false, err
	}
	return status == models.BeatAvailable, nil
}

// sweepExpired rolls a lapsed reservation back to available.
func (s *InventoryService) sweepExpired(ctx context.Context, beatID int) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE beats
		SET status = $1, reserved_until = NULL, updated_at = NOW()
		WHERE id = $2 AND status = $3 AND reserved_until < NOW()
	`, models.BeatAvailable, beatID, models.BeatReserved)
	if err != nil {
		return fmt.Errorf("expiry sweep failed for beat %d: %w", beatID, err)
	}

	if n, _ := result.RowsAffected(); n > 0 {
		log.Printf("[INVENTORY] Expired reservation swept for beat %d", beatID)
	}
	return nil
}

// CompleteSaleTx marks the beat sold inside the ledger's database
// transaction, so the sale and the completed transaction commit together.
func (s *InventoryService) CompleteSaleTx(tx *sql.Tx, beatID int) error {
	result, err := tx.Exec(`
		UPDATE beats
		SET status = $1, reserved_until = NULL, updated_at = NOW()
		WHERE id = $2 AND status IN ($3, $4)
	`, models.BeatSold, beatID, models.BeatReserved, models.BeatAvailable)
	if err != nil {
		return fmt.Errorf("failed to mark beat %d sold: %w", beatID, err)
	}

	// Zero rows means the beat is already sold or downloaded; a repeated
	// completion callback must not regress the state.
	if n, _ := result.RowsAffected(); n == 0 {
		log.Printf("[INVENTORY] Beat %d already past sold, no transition", beatID)
	}
	return nil
}
