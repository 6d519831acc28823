package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/stockdash/trade-engine/internal/model"
)

// maxPriceDeviation is the permitted fractional difference between a
// client-proposed price and the oracle price (±10%).
var maxPriceDeviation = decimal.New(1, -1) // 0.10

// ValidateOrder judges the shape and legality of an order before any
// ledger access. It never touches the ledger.
//
// A client-proposed price, when present, must lie within the deviation
// band around the oracle price; the order form shows a quote that may
// be seconds stale, and a fill far from the live price should bounce
// back to the user instead of settling. When proposed is nil the
// oracle price is used directly and the band check is skipped.
func ValidateOrder(typ model.TradeType, quantity decimal.Decimal, proposed *decimal.Decimal, oraclePrice decimal.Decimal) error {
	if !typ.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, typ)
	}
	if !quantity.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidQuantity, quantity)
	}
	if proposed != nil {
		if !proposed.IsPositive() {
			return fmt.Errorf("%w: proposed price %s", ErrPriceOutOfBounds, proposed)
		}
		deviation := proposed.Sub(oraclePrice).Abs()
		if deviation.GreaterThan(oraclePrice.Mul(maxPriceDeviation)) {
			return fmt.Errorf("%w: proposed %s vs market %s",
				ErrPriceOutOfBounds, proposed, oraclePrice)
		}
	}
	return nil
}
