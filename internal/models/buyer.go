package models

import "time"

// Buyer is the purchasing profile linked 1:1 to an external account
// identity. Account creation itself is owned by the identity provider.
type Buyer struct {
	ID          int       `json:"id" db:"id"`
	UserID      string    `json:"user_id" db:"user_id"`
	Email       string    `json:"email" db:"email"`
	PhoneNumber string    `json:"phone_number,omitempty" db:"phone_number"`
	Address     string    `json:"address,omitempty" db:"address"`
	Country     string    `json:"country,omitempty" db:"country"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Rating is a buyer's 1-5 star review of a beat, at most one per
// (beat, buyer) pair.
type Rating struct {
	ID        int       `json:"id" db:"id"`
	BeatID    int       `json:"beat_id" db:"beat_id"`
	BuyerID   int       `json:"buyer_id" db:"buyer_id"`
	Stars     int       `json:"stars" db:"stars"`
	Review    string    `json:"review,omitempty" db:"review"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
