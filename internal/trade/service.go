// Package trade provides the HTTP handlers for submitting trades and
// querying portfolios, transaction history, and quotes.
package trade

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/stockdash/trade-engine/internal/auth"
	"github.com/stockdash/trade-engine/internal/engine"
	"github.com/stockdash/trade-engine/internal/metrics"
	"github.com/stockdash/trade-engine/internal/model"
	"github.com/stockdash/trade-engine/internal/oracle"
	"github.com/stockdash/trade-engine/internal/store"
	"github.com/stockdash/trade-engine/internal/symbol"
)

// Service handles the trading API. Settlement itself lives in the
// engine; this layer parses requests, maps errors to statuses, and
// feeds the live trade feed.
type Service struct {
	engine  *engine.Engine
	store   store.Store
	prices  oracle.Source
	symbols *symbol.Normalizer
	wsHub   *WSHub // optional WebSocket hub for real-time broadcasts
}

// NewService creates a new trade service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(eng *engine.Engine, st store.Store, prices oracle.Source, symbols *symbol.Normalizer, hub *WSHub) *Service {
	return &Service{
		engine:  eng,
		store:   st,
		prices:  prices,
		symbols: symbols,
		wsHub:   hub,
	}
}

// --- Request/Response types ---

// TradeSubmission is the JSON body for POST /trades.
type TradeSubmission struct {
	Symbol          string           `json:"symbol"`
	Quantity        decimal.Decimal  `json:"quantity"`
	TransactionType string           `json:"transactionType"`
	Price           *decimal.Decimal `json:"price,omitempty"` // client-proposed, optional
}

// TradeResult is the transaction summary returned on success.
type TradeResult struct {
	Symbol      string          `json:"symbol"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Type        model.TradeType `json:"type"`
}

// HoldingView is one portfolio row, marked to the latest quote when
// one is available.
type HoldingView struct {
	Symbol        string           `json:"symbol"`
	Quantity      decimal.Decimal  `json:"quantity"`
	AvgCost       decimal.Decimal  `json:"avg_cost"`
	TotalInvested decimal.Decimal  `json:"total_invested"`
	CurrentPrice  *decimal.Decimal `json:"current_price,omitempty"`
	CurrentValue  *decimal.Decimal `json:"current_value,omitempty"`
	UnrealizedPnL *decimal.Decimal `json:"unrealized_pnl,omitempty"`
}

// PortfolioResponse is the JSON body for GET /portfolio.
type PortfolioResponse struct {
	UserID      string          `json:"user_id"`
	CashBalance decimal.Decimal `json:"cash_balance"`
	Holdings    []HoldingView   `json:"holdings"`
}

// --- HTTP Handlers ---

// SubmitTrade handles POST /api/v1/trades.
// Runs the order through the settlement engine and returns the
// recorded transaction.
func (s *Service) SubmitTrade(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		writeError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var req TradeSubmission
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	order := engine.Order{
		UserID:     userID,
		Symbol:     req.Symbol,
		Quantity:   req.Quantity,
		Type:       model.TradeType(req.TransactionType),
		LimitPrice: req.Price,
	}

	start := time.Now()
	tx, err := s.engine.Settle(r.Context(), order)
	if err != nil {
		status, reason := classify(err)
		metrics.TradesRejected.WithLabelValues(reason).Inc()
		writeError(w, err.Error(), status)
		return
	}

	metrics.TradesSettled.WithLabelValues(string(tx.Type)).Inc()
	metrics.SettlementLatency.WithLabelValues(string(tx.Type)).Observe(time.Since(start).Seconds())

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:     "trade_executed",
			Symbol:   tx.Symbol,
			Side:     string(tx.Type),
			Quantity: tx.Quantity.String(),
			Price:    tx.Price.String(),
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"transaction": TradeResult{
			Symbol:      tx.Symbol,
			Quantity:    tx.Quantity,
			Price:       tx.Price,
			TotalAmount: tx.TotalAmount,
			Type:        tx.Type,
		},
	})
}

// classify maps a settlement error to an HTTP status and a metrics
// reason label. Business rejections are 400s; oracle outage is an
// upstream failure; anything else is a persistence fault.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, symbol.ErrUnsupportedInstrument):
		return http.StatusBadRequest, "unsupported_instrument"
	case errors.Is(err, engine.ErrInvalidQuantity),
		errors.Is(err, engine.ErrInvalidType),
		errors.Is(err, engine.ErrPriceOutOfBounds):
		return http.StatusBadRequest, "invalid_order"
	case errors.Is(err, engine.ErrInsufficientBalance):
		return http.StatusBadRequest, "insufficient_balance"
	case errors.Is(err, engine.ErrNoHoldings),
		errors.Is(err, engine.ErrInsufficientHoldings):
		return http.StatusBadRequest, "insufficient_holdings"
	case errors.Is(err, engine.ErrNoAccount):
		return http.StatusBadRequest, "no_account"
	case errors.Is(err, oracle.ErrPriceUnavailable):
		return http.StatusBadGateway, "price_unavailable"
	default:
		return http.StatusInternalServerError, "persistence"
	}
}

// DescribeTrades handles GET /api/v1/trades.
// Discovery document for the trade endpoint; carries no settlement
// semantics.
func (s *Service) DescribeTrades(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"method": "POST",
		"path":   "/api/v1/trades",
		"parameters": map[string]string{
			"symbol":          "ticker to trade; bare tickers resolve against the exchange symbol table",
			"quantity":        "positive decimal number of shares",
			"transactionType": "BUY or SELL",
			"price":           "optional client-proposed price, must be within 10% of market",
		},
		"authentication": "Bearer token required",
	})
}

// GetPortfolio handles GET /api/v1/portfolio.
// Returns the cash balance and holdings, marked to the latest quote
// where one is available. Quote failures degrade the view, never the
// request.
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		writeError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	ctx := r.Context()

	balance, err := s.store.GetBalance(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, "no balance account for user", http.StatusBadRequest)
			return
		}
		writeError(w, "failed to load balance", http.StatusInternalServerError)
		return
	}

	holdings, err := s.store.GetHoldingsByUser(ctx, userID)
	if err != nil {
		writeError(w, "failed to load holdings", http.StatusInternalServerError)
		return
	}

	views := make([]HoldingView, 0, len(holdings))
	for _, h := range holdings {
		view := HoldingView{
			Symbol:        h.Symbol,
			Quantity:      h.Quantity,
			AvgCost:       h.AvgCost,
			TotalInvested: h.TotalInvested,
		}
		if price, err := s.prices.CurrentPrice(ctx, h.Symbol); err == nil {
			value := price.Mul(h.Quantity)
			pnl := value.Sub(h.TotalInvested)
			view.CurrentPrice = &price
			view.CurrentValue = &value
			view.UnrealizedPnL = &pnl
		}
		views = append(views, view)
	}

	writeJSON(w, http.StatusOK, PortfolioResponse{
		UserID:      userID,
		CashBalance: balance.CashBalance,
		Holdings:    views,
	})
}

// GetTransactions handles GET /api/v1/transactions.
// Returns the caller's trade history, newest first.
func (s *Service) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		writeError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	txs, err := s.store.GetTransactionsByUser(r.Context(), userID)
	if err != nil {
		writeError(w, "failed to load transactions", http.StatusInternalServerError)
		return
	}
	if txs == nil {
		txs = []model.Transaction{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"transactions": txs,
	})
}

// GetQuote handles GET /api/v1/quotes/{symbol}.
// Normalizes the ticker and proxies the current price.
func (s *Service) GetQuote(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "symbol")

	canonical, err := s.symbols.Normalize(raw)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	price, err := s.prices.CurrentPrice(r.Context(), canonical)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, model.Quote{
		Symbol:    canonical,
		Price:     price,
		FetchedAt: time.Now().UTC(),
	})
}

// --- Response helpers ---

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError writes the error envelope the dashboard expects.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
