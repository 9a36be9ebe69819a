package audit

import (
	"encoding/json"
	"log"
	"time"
)

// Event is one structured audit record for the purchase/download trail.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	TxID      int       `json:"transaction_id,omitempty"`
	BeatID    int       `json:"beat_id,omitempty"`
	BuyerID   int       `json:"buyer_id,omitempty"`
	Amount    int64     `json:"amount,omitempty"`
	Status    string    `json:"status"`
	Details   any       `json:"details,omitempty"`
}

type Logger struct{}

func NewLogger() *Logger {
	return &Logger{}
}

func (a *Logger) LogPurchase(txID, beatID, buyerID int, amount int64, status string) {
	a.log(Event{
		Timestamp: time.Now(),
		EventType: "PURCHASE",
		TxID:      txID,
		BeatID:    beatID,
		BuyerID:   buyerID,
		Amount:    amount,
		Status:    status,
	})
}

func (a *Logger) LogDownload(beatID, buyerID, downloadCount int) {
	a.log(Event{
		Timestamp: time.Now(),
		EventType: "DOWNLOAD",
		BeatID:    beatID,
		BuyerID:   buyerID,
		Status:    "SUCCESS",
		Details:   map[string]int{"download_count": downloadCount},
	})
}

func (a *Logger) LogError(txID, beatID int, err error) {
	a.log(Event{
		Timestamp: time.Now(),
		EventType: "ERROR",
		TxID:      txID,
		BeatID:    beatID,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	})
}

func (a *Logger) log(event Event) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
