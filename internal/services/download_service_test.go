package services

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/warrenbeats/backend/internal/assets"
	"github.com/warrenbeats/backend/internal/models"
)

// stubStore serves assets from memory.
type stubStore struct {
	objects map[string]string
}

func (s *stubStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := s.objects[key]
	if !ok {
		return nil, assets.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

func (s *stubStore) Exists(_ context.Context, key string) (bool, error) {
	_, ok := s.objects[key]
	return ok, nil
}

func gatedBeatRow(status string, count, max int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "title", "audio_key", "status", "download_count", "max_downloads"}).
		AddRow(1, "Midnight Drive", "beats/1.mp3", status, count, max)
}

func TestDownloadService_AuthorizeAndDeliver(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers and meters one slot", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		store := &stubStore{objects: map[string]string{"beats/1.mp3": "audio-bytes"}}
		service := NewDownloadService(db, store)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(7, 1, models.TxCompleted).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery("SELECT (.+) FROM beats(.+)FOR UPDATE").
			WithArgs(1).
			WillReturnRows(gatedBeatRow(models.BeatSold, 0, 3))
		mock.ExpectQuery("INSERT INTO download_history").
			WithArgs(1, 7).
			WillReturnRows(sqlmock.NewRows([]string{"id", "downloaded_at"}).AddRow(11, time.Now()))
		mock.ExpectExec("UPDATE beats(.+)download_count = download_count \\+ 1").
			WithArgs(models.BeatDownloaded, 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		delivery, err := service.AuthorizeAndDeliver(ctx, 7, 1)

		assert.NoError(t, err)
		assert.Equal(t, "Midnight Drive.mp3", delivery.Filename)
		assert.Equal(t, 11, delivery.History.ID)

		data, err := io.ReadAll(delivery.Asset)
		assert.NoError(t, err)
		assert.Equal(t, "audio-bytes", string(data))
		assert.NoError(t, delivery.Asset.Close())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects a buyer without a completed transaction", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewDownloadService(db, &stubStore{})

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(7, 1, models.TxCompleted).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectRollback()

		_, err = service.AuthorizeAndDeliver(ctx, 7, 1)

		assert.ErrorIs(t, err, ErrNotPurchased)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects when the quota is exhausted", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewDownloadService(db, &stubStore{})

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(7, 1, models.TxCompleted).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery("SELECT (.+) FROM beats(.+)FOR UPDATE").
			WithArgs(1).
			WillReturnRows(gatedBeatRow(models.BeatDownloaded, 3, 3))
		mock.ExpectRollback()

		_, err = service.AuthorizeAndDeliver(ctx, 7, 1)

		assert.ErrorIs(t, err, ErrExhausted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("downloaded status blocks delivery even with quota raised", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewDownloadService(db, &stubStore{objects: map[string]string{"beats/1.mp3": "x"}})

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(7, 1, models.TxCompleted).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery("SELECT (.+) FROM beats(.+)FOR UPDATE").
			WithArgs(1).
			WillReturnRows(gatedBeatRow(models.BeatDownloaded, 3, 5))
		mock.ExpectRollback()

		_, err = service.AuthorizeAndDeliver(ctx, 7, 1)

		assert.ErrorIs(t, err, ErrExhausted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing asset consumes no slot", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewDownloadService(db, &stubStore{})

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(7, 1, models.TxCompleted).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery("SELECT (.+) FROM beats(.+)FOR UPDATE").
			WithArgs(1).
			WillReturnRows(gatedBeatRow(models.BeatSold, 0, 3))
		mock.ExpectRollback()

		_, err = service.AuthorizeAndDeliver(ctx, 7, 1)

		assert.ErrorIs(t, err, ErrAssetMissing)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDownloadService_History(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewDownloadService(db, &stubStore{})
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM download_history").
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id", "beat_id", "buyer_id", "downloaded_at"}).
			AddRow(2, 1, 7, now).
			AddRow(1, 1, 7, now.Add(-time.Hour)))

	history, err := service.History(context.Background(), 7)

	assert.NoError(t, err)
	assert.Len(t, history, 2)
	assert.Equal(t, 2, history[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
