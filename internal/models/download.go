package models

import "time"

// DownloadHistory is an append-only record of one successful delivery.
// Inserting a row is the sole trigger of the beat's download_count
// increment; both happen in the same database transaction.
type DownloadHistory struct {
	ID           int       `json:"id" db:"id"`
	BeatID       int       `json:"beat_id" db:"beat_id"`
	BuyerID      int       `json:"buyer_id" db:"buyer_id"`
	DownloadedAt time.Time `json:"downloaded_at" db:"downloaded_at"`
}
