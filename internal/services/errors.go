package services

import "errors"

// Purchase/download precondition failures surfaced to handlers. Handlers
// recover these into user-facing responses; nothing here crashes a request.
var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyReserved = errors.New("beat already reserved")
	ErrNotPurchased    = errors.New("beat not purchased")
	ErrExhausted       = errors.New("download quota exhausted")
	ErrAssetMissing    = errors.New("asset missing")
	ErrInvalidSession  = errors.New("invalid or expired payment session")
	ErrSessionStore    = errors.New("checkout session store unavailable")
	ErrGateway         = errors.New("payment gateway error")
	ErrTerminalStatus  = errors.New("transaction already in terminal status")
)
