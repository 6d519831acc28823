// Package model defines the core domain types shared across the trade engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeType is the direction of a trade.
type TradeType string

const (
	TradeBuy  TradeType = "BUY"
	TradeSell TradeType = "SELL"
)

// Valid reports whether t is a recognized trade type.
func (t TradeType) Valid() bool {
	return t == TradeBuy || t == TradeSell
}

// UserBalance is the single cash-balance record for a user.
// Created at signup (outside this service), mutated only by the
// settlement engine. CashBalance never goes below zero.
type UserBalance struct {
	UserID      string          `json:"user_id" db:"user_id"`
	CashBalance decimal.Decimal `json:"cash_balance" db:"cash_balance"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// Holding is one position per (user, symbol). It exists only while
// Quantity > 0; selling a position down to zero deletes the row.
// Invariant: TotalInvested = Quantity * AvgCost.
type Holding struct {
	UserID        string          `json:"user_id" db:"user_id"`
	Symbol        string          `json:"symbol" db:"symbol"` // canonical, exchange-qualified
	Quantity      decimal.Decimal `json:"quantity" db:"quantity"`
	AvgCost       decimal.Decimal `json:"avg_cost" db:"avg_cost"`
	TotalInvested decimal.Decimal `json:"total_invested" db:"total_invested"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// Transaction is an immutable record of a settled trade.
// Once created, these are never modified or deleted. Price is the
// oracle price the trade actually settled at.
type Transaction struct {
	ID          string          `json:"id" db:"id"`
	UserID      string          `json:"user_id" db:"user_id"`
	Symbol      string          `json:"symbol" db:"symbol"`
	Type        TradeType       `json:"type" db:"type"`
	Quantity    decimal.Decimal `json:"quantity" db:"quantity"`
	Price       decimal.Decimal `json:"price" db:"price"`
	TotalAmount decimal.Decimal `json:"total_amount" db:"total_amount"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// Quote is a point-in-time price for a canonical symbol.
type Quote struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	FetchedAt time.Time       `json:"fetched_at"`
}
