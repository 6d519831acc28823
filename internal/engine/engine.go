// Package engine implements trade settlement: normalize → price →
// validate → mutate balance/holding → append to the transaction log.
//
// All monetary values use shopspring/decimal — never float64 for money.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockdash/trade-engine/internal/model"
	"github.com/stockdash/trade-engine/internal/oracle"
	"github.com/stockdash/trade-engine/internal/store"
	"github.com/stockdash/trade-engine/internal/symbol"
)

// Business-rule rejections. These are deterministic facts about the
// order or the ledger and are never retried.
var (
	ErrInvalidQuantity      = errors.New("engine: quantity must be positive")
	ErrInvalidType          = errors.New("engine: transaction type must be BUY or SELL")
	ErrPriceOutOfBounds     = errors.New("engine: proposed price outside allowed deviation")
	ErrInsufficientBalance  = errors.New("engine: insufficient cash balance")
	ErrInsufficientHoldings = errors.New("engine: insufficient holdings")
	ErrNoHoldings           = errors.New("engine: no holdings for symbol")
	ErrNoAccount            = errors.New("engine: no balance account for user")
)

// zeroEpsilon is the remaining-quantity threshold below which a holding
// is considered fully closed and its row deleted.
var zeroEpsilon = decimal.New(1, -9) // 1e-9

// Order is a user-submitted trade request. Symbol is raw user input;
// UserID comes from the authenticated caller, never from the body.
// LimitPrice, when set, is the client-proposed price checked against
// the deviation band; settlement always uses the oracle price.
type Order struct {
	UserID     string
	Symbol     string
	Quantity   decimal.Decimal
	Type       model.TradeType
	LimitPrice *decimal.Decimal
}

// Engine orchestrates settlement. It guarantees at most one in-flight
// settlement per user: the ledger read-compute-write sequence runs
// under a per-user lock, and the store applies the mutations
// atomically underneath.
type Engine struct {
	store   store.Store
	prices  oracle.Source
	symbols *symbol.Normalizer

	mu    sync.Mutex
	locks map[string]*sync.Mutex // userID → settlement lock
}

// New creates a settlement engine.
func New(st store.Store, prices oracle.Source, symbols *symbol.Normalizer) *Engine {
	return &Engine{
		store:   st,
		prices:  prices,
		symbols: symbols,
		locks:   make(map[string]*sync.Mutex),
	}
}

// userLock returns the settlement lock for a user, creating it on
// first use. Locks are never removed; the user population is small
// relative to what a map of mutexes costs.
func (e *Engine) userLock(userID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[userID] = l
	}
	return l
}

// Settle runs one order through the full settlement pipeline and
// returns the recorded transaction. Any error means the ledger was not
// touched: the oracle is consulted and the order validated before the
// per-user lock is taken, and the store applies all mutations in one
// atomic unit.
func (e *Engine) Settle(ctx context.Context, order Order) (*model.Transaction, error) {
	canonical, err := e.symbols.Normalize(order.Symbol)
	if err != nil {
		return nil, err
	}

	price, err := e.prices.CurrentPrice(ctx, canonical)
	if err != nil {
		return nil, err
	}

	if err := ValidateOrder(order.Type, order.Quantity, order.LimitPrice, price); err != nil {
		return nil, err
	}

	lock := e.userLock(order.UserID)
	lock.Lock()
	defer lock.Unlock()

	balance, err := e.store.GetBalance(ctx, order.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNoAccount, order.UserID)
		}
		return nil, fmt.Errorf("read balance: %w", err)
	}

	holding, err := e.store.GetHolding(ctx, order.UserID, canonical)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("read holding: %w", err)
		}
		holding = nil
	}

	now := time.Now().UTC()
	settlement, err := applyTrade(order, canonical, price, balance, holding, now)
	if err != nil {
		return nil, err
	}

	if err := e.store.ApplySettlement(ctx, settlement); err != nil {
		return nil, fmt.Errorf("persist settlement: %w", err)
	}

	slog.Info("trade settled",
		"transaction_id", settlement.Transaction.ID,
		"user", order.UserID,
		"symbol", canonical,
		"type", string(order.Type),
		"quantity", order.Quantity.String(),
		"price", price.String(),
		"new_balance", settlement.NewCashBalance.CashBalance.String(),
	)

	return settlement.Transaction, nil
}

// applyTrade computes the post-trade ledger state. Pure: reads its
// inputs, returns the mutations, touches nothing.
func applyTrade(order Order, canonical string, price decimal.Decimal,
	balance *model.UserBalance, holding *model.Holding, now time.Time) (*store.Settlement, error) {

	total := order.Quantity.Mul(price)

	set := &store.Settlement{
		UserID:              order.UserID,
		ExpectedCashBalance: balance.CashBalance,
		Transaction: &model.Transaction{
			ID:          uuid.New().String(),
			UserID:      order.UserID,
			Symbol:      canonical,
			Type:        order.Type,
			Quantity:    order.Quantity,
			Price:       price,
			TotalAmount: total,
			CreatedAt:   now,
		},
	}

	switch order.Type {
	case model.TradeBuy:
		if total.GreaterThan(balance.CashBalance) {
			return nil, fmt.Errorf("%w: need %s, have %s",
				ErrInsufficientBalance, total, balance.CashBalance)
		}
		set.NewCashBalance = model.UserBalance{
			UserID:      order.UserID,
			CashBalance: balance.CashBalance.Sub(total),
			UpdatedAt:   now,
		}

		if holding == nil {
			set.Holding = &model.Holding{
				UserID:        order.UserID,
				Symbol:        canonical,
				Quantity:      order.Quantity,
				AvgCost:       price,
				TotalInvested: total,
				UpdatedAt:     now,
			}
		} else {
			newQty := holding.Quantity.Add(order.Quantity)
			newInvested := holding.TotalInvested.Add(total)
			set.Holding = &model.Holding{
				UserID:        order.UserID,
				Symbol:        canonical,
				Quantity:      newQty,
				AvgCost:       newInvested.Div(newQty),
				TotalInvested: newInvested,
				UpdatedAt:     now,
			}
		}

	case model.TradeSell:
		if holding == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoHoldings, canonical)
		}
		if order.Quantity.GreaterThan(holding.Quantity) {
			return nil, fmt.Errorf("%w: selling %s, holding %s",
				ErrInsufficientHoldings, order.Quantity, holding.Quantity)
		}

		set.NewCashBalance = model.UserBalance{
			UserID:      order.UserID,
			CashBalance: balance.CashBalance.Add(total),
			UpdatedAt:   now,
		}

		// Proportional cost-basis reduction; AvgCost stays unchanged
		// on a partial sell. Realized P&L is derived by callers, not
		// stored.
		investedSold := holding.TotalInvested.Div(holding.Quantity).Mul(order.Quantity)
		newQty := holding.Quantity.Sub(order.Quantity)
		newInvested := holding.TotalInvested.Sub(investedSold)

		if newQty.Abs().LessThanOrEqual(zeroEpsilon) {
			set.DeleteHoldingSymbol = canonical
		} else {
			set.Holding = &model.Holding{
				UserID:        order.UserID,
				Symbol:        canonical,
				Quantity:      newQty,
				AvgCost:       holding.AvgCost,
				TotalInvested: newInvested,
				UpdatedAt:     now,
			}
		}

	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, order.Type)
	}

	return set, nil
}
