package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/warrenbeats/backend/internal/config"
	"github.com/warrenbeats/backend/internal/models"
)

func testCheckoutConfig() *config.CheckoutConfig {
	return &config.CheckoutConfig{
		ReservationTTL: 5 * time.Minute,
		Currency:       "USD",
	}
}

func beatRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "album_id", "title", "description", "audio_key", "price", "duration_secs", "bpm",
		"status", "reserved_until", "download_count", "max_downloads", "is_favorite", "created_at", "updated_at",
	})
}

func TestInventoryService_Reserve(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewInventoryService(db, testCheckoutConfig())
	ctx := context.Background()
	now := time.Now()

	t.Run("wins the reservation", func(t *testing.T) {
		mock.ExpectExec("UPDATE beats").
			WithArgs(models.BeatAvailable, 1, models.BeatReserved).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("UPDATE beats").
			WithArgs(models.BeatReserved, sqlmock.AnyArg(), 1, models.BeatAvailable).
			WillReturnResult(sqlmock.NewResult(0, 1))
		until := now.Add(5 * time.Minute)
		mock.ExpectQuery("SELECT (.+) FROM beats WHERE id = \\$1").
			WithArgs(1).
			WillReturnRows(beatRows().
				AddRow(1, 1, "Midnight Drive", "", "beats/1.mp3", 2999, 180, 140,
					models.BeatReserved, until, 0, 3, false, now, now))

		beat, err := service.Reserve(ctx, 1)

		assert.NoError(t, err)
		assert.Equal(t, models.BeatReserved, beat.Status)
		assert.NotNil(t, beat.ReservedUntil)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("loses the race to another buyer", func(t *testing.T) {
		mock.ExpectExec("UPDATE beats").
			WithArgs(models.BeatAvailable, 1, models.BeatReserved).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("UPDATE beats").
			WithArgs(models.BeatReserved, sqlmock.AnyArg(), 1, models.BeatAvailable).
			WillReturnResult(sqlmock.NewResult(0, 0))
		until := now.Add(3 * time.Minute)
		mock.ExpectQuery("SELECT (.+) FROM beats WHERE id = \\$1").
			WithArgs(1).
			WillReturnRows(beatRows().
				AddRow(1, 1, "Midnight Drive", "", "beats/1.mp3", 2999, 180, 140,
					models.BeatReserved, until, 0, 3, false, now, now))

		_, err := service.Reserve(ctx, 1)

		assert.ErrorIs(t, err, ErrAlreadyReserved)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("beat does not exist", func(t *testing.T) {
		mock.ExpectExec("UPDATE beats").
			WithArgs(models.BeatAvailable, 99, models.BeatReserved).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("UPDATE beats").
			WithArgs(models.BeatReserved, sqlmock.AnyArg(), 99, models.BeatAvailable).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT (.+) FROM beats WHERE id = \\$1").
			WithArgs(99).
			WillReturnRows(beatRows())

		_, err := service.Reserve(ctx, 99)

		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("sold beat is rejected", func(t *testing.T) {
		mock.ExpectExec("UPDATE beats").
			WithArgs(models.BeatAvailable, 2, models.BeatReserved).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("UPDATE beats").
			WithArgs(models.BeatReserved, sqlmock.AnyArg(), 2, models.BeatAvailable).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT (.+) FROM beats WHERE id = \\$1").
			WithArgs(2).
			WillReturnRows(beatRows().
				AddRow(2, 1, "Cold Keys", "", "beats/2.mp3", 1999, 200, 90,
					models.BeatSold, nil, 1, 3, false, now, now))

		_, err := service.Reserve(ctx, 2)

		assert.ErrorIs(t, err, ErrAlreadyReserved)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestInventoryService_ReleaseReservation(t *testing.T) {
	ctx := context.Background()

	t.Run("default releases only expired holds", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewInventoryService(db, testCheckoutConfig())

		mock.ExpectExec("UPDATE beats(.+)reserved_until < NOW\\(\\)").
			WithArgs(models.BeatAvailable, 1, models.BeatReserved).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.NoError(t, service.ReleaseReservation(ctx, 1))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("release_on_failure frees an unexpired hold", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		cfg := testCheckoutConfig()
		cfg.ReleaseOnFailure = true
		service := NewInventoryService(db, cfg)

		mock.ExpectExec("UPDATE beats(.+)status = \\$3\\s*$").
			WithArgs(models.BeatAvailable, 1, models.BeatReserved).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, service.ReleaseReservation(ctx, 1))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("idempotent when already available", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewInventoryService(db, testCheckoutConfig())

		mock.ExpectExec("UPDATE beats").
			WithArgs(models.BeatAvailable, 1, models.BeatReserved).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.NoError(t, service.ReleaseReservation(ctx, 1))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestInventoryService_IsAvailable(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewInventoryService(db, testCheckoutConfig())
	ctx := context.Background()

	t.Run("expired hold is swept and the beat reappears", func(t *testing.T) {
		mock.ExpectExec("UPDATE beats").
			WithArgs(models.BeatAvailable, 1, models.BeatReserved).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT status FROM beats").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(models.BeatAvailable))

		available, err := service.IsAvailable(ctx, 1)

		assert.NoError(t, err)
		assert.True(t, available)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("live reservation blocks purchase", func(t *testing.T) {
		mock.ExpectExec("UPDATE beats").
			WithArgs(models.BeatAvailable, 1, models.BeatReserved).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT status FROM beats").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(models.BeatReserved))

		available, err := service.IsAvailable(ctx, 1)

		assert.NoError(t, err)
		assert.False(t, available)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown beat", func(t *testing.T) {
		mock.ExpectExec("UPDATE beats").
			WithArgs(models.BeatAvailable, 99, models.BeatReserved).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT status FROM beats").
			WithArgs(99).
			WillReturnRows(sqlmock.NewRows([]string{"status"}))

		_, err := service.IsAvailable(ctx, 99)

		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestInventoryService_CompleteSaleTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewInventoryService(db, testCheckoutConfig())

	t.Run("reserved beat flips to sold", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE beats").
			WithArgs(models.BeatSold, 1, models.BeatReserved, models.BeatAvailable).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		tx, err := db.Begin()
		assert.NoError(t, err)
		assert.NoError(t, service.CompleteSaleTx(tx, 1))
		assert.NoError(t, tx.Commit())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("repeated completion does not regress a sold beat", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE beats").
			WithArgs(models.BeatSold, 1, models.BeatReserved, models.BeatAvailable).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		tx, err := db.Begin()
		assert.NoError(t, err)
		assert.NoError(t, service.CompleteSaleTx(tx, 1))
		assert.NoError(t, tx.Commit())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
