package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stockdash/trade-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the ledger tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS user_balances (
			user_id      TEXT PRIMARY KEY,
			cash_balance NUMERIC NOT NULL CHECK (cash_balance >= 0),
			updated_at   TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS holdings (
			user_id        TEXT NOT NULL,
			symbol         TEXT NOT NULL,
			quantity       NUMERIC NOT NULL CHECK (quantity > 0),
			avg_cost       NUMERIC NOT NULL,
			total_invested NUMERIC NOT NULL,
			updated_at     TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (user_id, symbol)
		);
		CREATE TABLE IF NOT EXISTS transactions (
			id           TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL,
			symbol       TEXT NOT NULL,
			type         TEXT NOT NULL,
			quantity     NUMERIC NOT NULL,
			price        NUMERIC NOT NULL,
			total_amount NUMERIC NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_user_created
			ON transactions (user_id, created_at DESC);
	`)
	return err
}

func (s *PostgresStore) CreateBalance(ctx context.Context, b *model.UserBalance) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_balances (user_id, cash_balance, updated_at)
		 VALUES ($1, $2::NUMERIC, $3)`,
		b.UserID, b.CashBalance.String(), b.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) GetBalance(ctx context.Context, userID string) (*model.UserBalance, error) {
	var b model.UserBalance
	var cash string

	err := s.pool.QueryRow(ctx,
		`SELECT user_id, cash_balance::TEXT, updated_at
		 FROM user_balances WHERE user_id = $1`, userID).
		Scan(&b.UserID, &cash, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("balance for %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get balance %s: %w", userID, err)
	}

	if b.CashBalance, err = parseDecimal("cash_balance", cash); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *PostgresStore) GetHolding(ctx context.Context, userID, symbol string) (*model.Holding, error) {
	var h model.Holding
	var qty, avgCost, invested string

	err := s.pool.QueryRow(ctx,
		`SELECT user_id, symbol, quantity::TEXT, avg_cost::TEXT, total_invested::TEXT, updated_at
		 FROM holdings WHERE user_id = $1 AND symbol = $2`, userID, symbol).
		Scan(&h.UserID, &h.Symbol, &qty, &avgCost, &invested, &h.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("holding %s/%s: %w", userID, symbol, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get holding %s/%s: %w", userID, symbol, err)
	}

	if h.Quantity, err = parseDecimal("quantity", qty); err != nil {
		return nil, err
	}
	if h.AvgCost, err = parseDecimal("avg_cost", avgCost); err != nil {
		return nil, err
	}
	if h.TotalInvested, err = parseDecimal("total_invested", invested); err != nil {
		return nil, err
	}
	return &h, nil
}

func (s *PostgresStore) GetHoldingsByUser(ctx context.Context, userID string) ([]model.Holding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, symbol, quantity::TEXT, avg_cost::TEXT, total_invested::TEXT, updated_at
		 FROM holdings WHERE user_id = $1 ORDER BY symbol`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanHoldings(rows)
}

// ApplySettlement applies one trade's full effect in a single database
// transaction. The balance row is locked with FOR UPDATE and
// re-checked against the balance the engine computed from, so a
// concurrent writer (a second engine instance, an operator script)
// aborts the settlement with ErrStaleBalance instead of landing stale
// state.
func (s *PostgresStore) ApplySettlement(ctx context.Context, set *Settlement) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin settlement: %w", err)
	}
	defer tx.Rollback(ctx)

	var locked string
	err = tx.QueryRow(ctx,
		`SELECT cash_balance::TEXT FROM user_balances WHERE user_id = $1 FOR UPDATE`,
		set.UserID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("balance for %s: %w", set.UserID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("lock balance %s: %w", set.UserID, err)
	}

	current, err := parseDecimal("cash_balance", locked)
	if err != nil {
		return err
	}
	if !current.Equal(set.ExpectedCashBalance) {
		return fmt.Errorf("balance for %s moved from %s to %s: %w",
			set.UserID, set.ExpectedCashBalance, current, ErrStaleBalance)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE user_balances SET cash_balance = $2::NUMERIC, updated_at = $3
		 WHERE user_id = $1`,
		set.UserID, set.NewCashBalance.CashBalance.String(), set.NewCashBalance.UpdatedAt,
	); err != nil {
		return fmt.Errorf("update balance: %w", err)
	}

	switch {
	case set.Holding != nil:
		h := set.Holding
		if _, err := tx.Exec(ctx,
			`INSERT INTO holdings (user_id, symbol, quantity, avg_cost, total_invested, updated_at)
			 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6)
			 ON CONFLICT (user_id, symbol) DO UPDATE SET
				quantity = EXCLUDED.quantity,
				avg_cost = EXCLUDED.avg_cost,
				total_invested = EXCLUDED.total_invested,
				updated_at = EXCLUDED.updated_at`,
			h.UserID, h.Symbol,
			h.Quantity.String(), h.AvgCost.String(), h.TotalInvested.String(),
			h.UpdatedAt,
		); err != nil {
			return fmt.Errorf("upsert holding: %w", err)
		}
	case set.DeleteHoldingSymbol != "":
		if _, err := tx.Exec(ctx,
			`DELETE FROM holdings WHERE user_id = $1 AND symbol = $2`,
			set.UserID, set.DeleteHoldingSymbol,
		); err != nil {
			return fmt.Errorf("delete holding: %w", err)
		}
	}

	t := set.Transaction
	if _, err := tx.Exec(ctx,
		`INSERT INTO transactions (id, user_id, symbol, type, quantity, price, total_amount, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8)`,
		t.ID, t.UserID, t.Symbol, string(t.Type),
		t.Quantity.String(), t.Price.String(), t.TotalAmount.String(),
		t.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) GetTransactionsByUser(ctx context.Context, userID string) ([]model.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, symbol, type, quantity::TEXT, price::TEXT, total_amount::TEXT, created_at
		 FROM transactions WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// pgxRows is the subset of pgx.Rows the scan helpers need.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// parseDecimal converts a NUMERIC read back as TEXT. A row that fails
// here is corrupt; it must error out rather than feed zero into
// settlement math.
func parseDecimal(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("corrupt %s %q: %w", field, raw, err)
	}
	return d, nil
}

func scanHoldings(rows pgxRows) ([]model.Holding, error) {
	var holdings []model.Holding
	for rows.Next() {
		var h model.Holding
		var qty, avgCost, invested string
		if err := rows.Scan(&h.UserID, &h.Symbol, &qty, &avgCost, &invested, &h.UpdatedAt); err != nil {
			return nil, err
		}
		var err error
		if h.Quantity, err = parseDecimal("quantity", qty); err != nil {
			return nil, err
		}
		if h.AvgCost, err = parseDecimal("avg_cost", avgCost); err != nil {
			return nil, err
		}
		if h.TotalInvested, err = parseDecimal("total_invested", invested); err != nil {
			return nil, err
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

func scanTransactions(rows pgxRows) ([]model.Transaction, error) {
	var txs []model.Transaction
	for rows.Next() {
		var t model.Transaction
		var typ, qty, price, total string
		if err := rows.Scan(&t.ID, &t.UserID, &t.Symbol, &typ, &qty, &price, &total, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Type = model.TradeType(typ)
		var err error
		if t.Quantity, err = parseDecimal("quantity", qty); err != nil {
			return nil, err
		}
		if t.Price, err = parseDecimal("price", price); err != nil {
			return nil, err
		}
		if t.TotalAmount, err = parseDecimal("total_amount", total); err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}
