package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/warrenbeats/backend/internal/audit"
	"github.com/warrenbeats/backend/internal/models"
)

// LedgerService is the append-mostly record of payment attempts and the
// source of truth for revenue. Status writes drive the beat state machine
// through explicit synchronous calls into InventoryService; completion and
// the beat's sold flip commit in one database transaction.
type LedgerService struct {
	db        *sql.DB
	inventory *InventoryService
	audit     *audit.Logger
}

func NewLedgerService(db *sql.DB, inventory *InventoryService) *LedgerService {
	return &LedgerService{
		db:        db,
		inventory: inventory,
		audit:     audit.NewLogger(),
	}
}

// Record opens a pending transaction for a (buyer, beat) pair. Amount is
// expected to equal the beat price at time of purchase; the caller supplies
// it so the ledger stays a faithful record of what was attempted.
func (s *LedgerService) Record(ctx context.Context, buyerID, beatID int, amount int64, method, paymentRef string) (*models.Transaction, error) {
	tx := &models.Transaction{
		BuyerID:          buyerID,
		BeatID:           beatID,
		Amount:           amount,
		Status:           models.TxPending,
		PaymentMethod:    method,
		PaymentReference: paymentRef,
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO transactions (buyer_id, beat_id, amount, status, payment_method, payment_reference, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING id, created_at
	`, buyerID, beatID, amount, models.TxPending, method, paymentRef).Scan(&tx.ID, &tx.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}

	s.audit.LogPurchase(tx.ID, beatID, buyerID, amount, models.TxPending)
	return tx, nil
}

// Transition moves a transaction to newStatus and applies the side effects
// the status implies. Terminal statuses are one-directional: the only
// repeatable write is completed -> completed, which is an idempotent no-op
// so duplicate gateway callbacks cannot double-count a sale.
func (s *LedgerService) Transition(ctx context.Context, txID int, newStatus string) error {
	switch newStatus {
	case models.TxCompleted, models.TxFailed, models.TxCancelled:
	default:
		return fmt.Errorf("unsupported transition target %q", newStatus)
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer dbTx.Rollback()

	var current models.Transaction
	err = dbTx.QueryRowContext(ctx, `
		SELECT id, buyer_id, beat_id, amount, status, completed_at
		FROM transactions
		WHERE id = $1
		FOR UPDATE
	`, txID).Scan(&current.ID, &current.BuyerID, &current.BeatID, &current.Amount, &current.Status, &current.CompletedAt)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if current.Terminal() {
		if current.Status == models.TxCompleted && newStatus == models.TxCompleted {
			log.Printf("[LEDGER] Transaction %d already completed, ignoring duplicate", txID)
			return nil
		}
		return fmt.Errorf("%w: %s -> %s", ErrTerminalStatus, current.Status, newStatus)
	}

	if newStatus == models.TxCompleted {
		// completed_at is set exactly once, guarded by the row lock above
		// and the IS NULL predicate.
		_, err = dbTx.ExecContext(ctx, `
			UPDATE transactions
			SET status = $1, completed_at = NOW(), updated_at = NOW()
			WHERE id = $2 AND completed_at IS NULL
		`, models.TxCompleted, txID)
		if err != nil {
			return fmt.Errorf("failed to complete transaction %d: %w", txID, err)
		}

		if err := s.inventory.CompleteSaleTx(dbTx, current.BeatID); err != nil {
			s.audit.LogError(txID, current.BeatID, err)
			return err
		}

		if err := dbTx.Commit(); err != nil {
			return err
		}

		s.audit.LogPurchase(txID, current.BeatID, current.BuyerID, current.Amount, models.TxCompleted)
		return nil
	}

	_, err = dbTx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $1, updated_at = NOW()
		WHERE id = $2
	`, newStatus, txID)
	if err != nil {
		return fmt.Errorf("failed to transition transaction %d: %w", txID, err)
	}

	if err := dbTx.Commit(); err != nil {
		return err
	}

	s.audit.LogPurchase(txID, current.BeatID, current.BuyerID, current.Amount, newStatus)

	// Attempt to free the hold. Whether an unexpired hold is released is a
	// configuration choice on the inventory side.
	if err := s.inventory.ReleaseReservation(ctx, current.BeatID); err != nil {
		log.Printf("[LEDGER] Release after %s failed for beat %d: %v", newStatus, current.BeatID, err)
	}
	return nil
}

// FindByReference resolves a transaction by its gateway correlation id.
func (s *LedgerService) FindByReference(ctx context.Context, paymentRef string) (*models.Transaction, error) {
	var tx models.Transaction
	err := s.db.QueryRowContext(ctx, `
		SELECT id, buyer_id, beat_id, amount, status, payment_method, payment_reference, created_at, updated_at, completed_at
		FROM transactions
		WHERE payment_reference = $1
	`, paymentRef).Scan(
		&tx.ID, &tx.BuyerID, &tx.BeatID, &tx.Amount, &tx.Status,
		&tx.PaymentMethod, &tx.PaymentReference, &tx.CreatedAt, &tx.UpdatedAt, &tx.CompletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// Stats aggregates the completed ledger. Every aggregate coalesces to zero
// on an empty result set.
func (s *LedgerService) Stats(ctx context.Context) (*models.RevenueStats, error) {
	stats := &models.RevenueStats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0),
		       COUNT(id),
		       COALESCE(AVG(amount), 0)::bigint
		FROM transactions
		WHERE status = $1
	`, models.TxCompleted).Scan(&stats.TotalRevenue, &stats.TotalSold, &stats.AverageSale)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate revenue: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0), COUNT(id)
		FROM transactions
		WHERE status = $1 AND completed_at::date = CURRENT_DATE
	`, models.TxCompleted).Scan(&stats.TodayRevenue, &stats.TodaySales)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate today's revenue: %w", err)
	}

	return stats, nil
}

// DailyRevenue returns per-day revenue/count over a trailing window,
// grouped by completion date, most recent first.
func (s *LedgerService) DailyRevenue(ctx context.Context, days int) ([]models.DailyRevenue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT completed_at::date AS day, SUM(amount), COUNT(id)
		FROM transactions
		WHERE status = $1 AND completed_at >= NOW() - ($2 * INTERVAL '1 day')
		GROUP BY day
		ORDER BY day DESC
	`, models.TxCompleted, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	daily := []models.DailyRevenue{}
	for rows.Next() {
		var d models.DailyRevenue
		if err := rows.Scan(&d.Date, &d.Revenue, &d.Sales); err != nil {
			return nil, err
		}
		daily = append(daily, d)
	}
	return daily, rows.Err()
}

// GenerateDailyReport upserts today's RevenueReport snapshot, keyed by
// unique report date. Safe to run repeatedly.
func (s *LedgerService) GenerateDailyReport(ctx context.Context) (*models.RevenueReport, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return nil, err
	}

	report := &models.RevenueReport{
		TotalRevenue: stats.TotalRevenue,
		TotalSold:    stats.TotalSold,
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO revenue_reports (report_date, total_revenue, total_beats_sold, created_at)
		VALUES (CURRENT_DATE, $1, $2, NOW())
		ON CONFLICT (report_date)
		DO UPDATE SET total_revenue = EXCLUDED.total_revenue, total_beats_sold = EXCLUDED.total_beats_sold
		RETURNING id, report_date, created_at
	`, stats.TotalRevenue, stats.TotalSold).Scan(&report.ID, &report.ReportDate, &report.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert revenue report: %w", err)
	}

	log.Printf("[LEDGER] Revenue report for %s: revenue=%d, sold=%d",
		report.ReportDate.Format(time.DateOnly), report.TotalRevenue, report.TotalSold)
	return report, nil
}
