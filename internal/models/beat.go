package models

import (
	"time"
)

// Beat lifecycle statuses. A beat moves available -> reserved -> sold ->
// downloaded; expiry rolls reserved back to available.
const (
	BeatAvailable  = "available"
	BeatReserved   = "reserved"
	BeatSold       = "sold"
	BeatDownloaded = "downloaded"
)

// Beat represents a single purchasable audio asset.
type Beat struct {
	ID            int        `json:"id" db:"id"`
	AlbumID       int        `json:"album_id" db:"album_id"`
	Title         string     `json:"title" db:"title"`
	Description   string     `json:"description" db:"description"`
	AudioKey      string     `json:"-" db:"audio_key"` // asset store key, never exposed
	Price         int64      `json:"price" db:"price"` // in cents
	DurationSecs  int        `json:"duration_secs" db:"duration_secs"`
	BPM           int        `json:"bpm" db:"bpm"`
	Status        string     `json:"status" db:"status"`
	ReservedUntil *time.Time `json:"reserved_until,omitempty" db:"reserved_until"`
	DownloadCount int        `json:"download_count" db:"download_count"`
	MaxDownloads  int        `json:"max_downloads" db:"max_downloads"`
	IsFavorite    bool       `json:"is_favorite" db:"is_favorite"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// Downloadable reports whether the beat can still be delivered. Reserved
// beats are never downloadable; neither is a beat already flipped to
// downloaded, even if max_downloads was raised after the fact.
func (b *Beat) Downloadable() bool {
	return (b.Status == BeatAvailable || b.Status == BeatSold) &&
		b.DownloadCount < b.MaxDownloads
}

// Album groups beats by genre/collection.
type Album struct {
	ID          int       `json:"id" db:"id"`
	GenreID     int       `json:"genre_id" db:"genre_id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	CoverKey    string    `json:"cover_key,omitempty" db:"cover_key"`
	IsFavorite  bool      `json:"is_favorite" db:"is_favorite"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Genre is a beat genre with a unique name.
type Genre struct {
	ID          int    `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description" db:"description"`
}
