package models

import "time"

// Transaction statuses. completed, failed and cancelled are terminal.
const (
	TxPending   = "pending"
	TxCompleted = "completed"
	TxFailed    = "failed"
	TxCancelled = "cancelled"
)

// Supported payment methods.
const (
	MethodStripe       = "stripe"
	MethodPayPal       = "paypal"
	MethodBankTransfer = "bank_transfer"
	MethodOther        = "other"
)

// Transaction records one payment attempt for one beat by one buyer.
type Transaction struct {
	ID               int        `json:"id" db:"id"`
	BuyerID          int        `json:"buyer_id" db:"buyer_id"`
	BeatID           int        `json:"beat_id" db:"beat_id"`
	Amount           int64      `json:"amount" db:"amount"` // in cents
	Status           string     `json:"status" db:"status"`
	PaymentMethod    string     `json:"payment_method" db:"payment_method"`
	PaymentReference string     `json:"payment_reference" db:"payment_reference"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// Terminal reports whether the status permits no further transitions.
func (t *Transaction) Terminal() bool {
	return t.Status == TxCompleted || t.Status == TxFailed || t.Status == TxCancelled
}

// DailyRevenue is one day's completed revenue rollup.
type DailyRevenue struct {
	Date    time.Time `json:"date"`
	Revenue int64     `json:"revenue"`
	Sales   int       `json:"sales"`
}

// RevenueStats is the aggregate view over the completed ledger.
type RevenueStats struct {
	TotalRevenue int64 `json:"total_revenue"`
	TotalSold    int   `json:"total_sold"`
	AverageSale  int64 `json:"average_sale"`
	TodayRevenue int64 `json:"today_revenue"`
	TodaySales   int   `json:"today_sales"`
}

// RevenueReport is a persisted daily snapshot, keyed by unique date.
type RevenueReport struct {
	ID           int       `json:"id" db:"id"`
	ReportDate   time.Time `json:"report_date" db:"report_date"`
	TotalRevenue int64     `json:"total_revenue" db:"total_revenue"`
	TotalSold    int       `json:"total_beats_sold" db:"total_beats_sold"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
