// Package store defines the persistence interface for the trade engine.
// Implementations include PostgreSQL (source of truth) and in-memory
// (for testing).
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/stockdash/trade-engine/internal/model"
)

// ErrNotFound is returned when a balance or holding row does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrStaleBalance is returned when the stored cash balance no longer
// matches the balance the settlement was computed from. It means a
// concurrent writer got there first; the settlement must not land.
var ErrStaleBalance = errors.New("store: balance changed since read")

// Settlement is the full effect of one settled trade, applied
// atomically: either every mutation lands or none do.
type Settlement struct {
	UserID string

	// ExpectedCashBalance is the balance the engine read before
	// computing the trade. The store re-checks it under its own lock
	// and rejects the settlement with ErrStaleBalance on mismatch.
	ExpectedCashBalance decimal.Decimal

	NewCashBalance model.UserBalance

	// Holding is the upserted post-trade holding. Nil when the trade
	// closed the position, in which case DeleteHoldingSymbol names the
	// row to remove.
	Holding             *model.Holding
	DeleteHoldingSymbol string

	Transaction *model.Transaction
}

// Store is the persistence interface. PostgreSQL is the source of
// truth; the settlement engine serializes writers per user above this
// layer.
type Store interface {
	// --- Balances ---

	// CreateBalance provisions the cash-balance row for a user.
	// Signup lives outside this service; this exists for provisioning
	// hooks and tests.
	CreateBalance(ctx context.Context, b *model.UserBalance) error

	// GetBalance retrieves a user's cash balance. ErrNotFound if the
	// user was never provisioned.
	GetBalance(ctx context.Context, userID string) (*model.UserBalance, error)

	// --- Holdings ---

	// GetHolding retrieves the holding for (userID, symbol).
	// ErrNotFound when the user holds none of the symbol.
	GetHolding(ctx context.Context, userID, symbol string) (*model.Holding, error)

	// GetHoldingsByUser returns all holdings for a user.
	GetHoldingsByUser(ctx context.Context, userID string) ([]model.Holding, error)

	// --- Settlement ---

	// ApplySettlement atomically writes the new balance, upserts or
	// deletes the holding, and appends the transaction record.
	ApplySettlement(ctx context.Context, s *Settlement) error

	// --- Immutable transaction log ---

	// GetTransactionsByUser returns a user's trades, newest first.
	GetTransactionsByUser(ctx context.Context, userID string) ([]model.Transaction, error)
}
