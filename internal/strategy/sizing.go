package strategy

import (
	"math"

	"github.com/shopspring/decimal"
)

// SizeContracts implements SPEC_FULL.md §4.9's position-sizing
// formula verbatim:
//
//	contracts = min(floor(max_risk_per_trade / risk_per_contract),
//	                 floor(max_position_value / (width*100)))
//
// where max_risk_per_trade and max_position_value are fractions of
// available_funds (not net-liquidation). If the computed cap is 0 but
// risk_per_contract <= max_risk_per_trade, 1 contract is permitted.
// Replaces the teacher's Kelly-criterion equity sizing
// (internal/sizing/position_sizer.go) with this closed-form options
// rule, since share-count Kelly sizing does not generalize to
// per-contract max-loss instruments.
func SizeContracts(sizing SizingInputs, riskPerContract, width decimal.Decimal) int {
	maxRiskPerTrade := sizing.AvailableFunds.Mul(sizing.MaxRiskPerTradePct)
	maxPositionValue := sizing.AvailableFunds.Mul(sizing.MaxPositionValuePct)

	if riskPerContract.LessThanOrEqual(decimal.Zero) {
		return 0
	}

	byRisk := int(math.Floor(mustFloat(maxRiskPerTrade.Div(riskPerContract))))
	byPosition := int(math.Floor(mustFloat(maxPositionValue.Div(width.Mul(decimal.NewFromInt(100))))))

	contracts := byRisk
	if byPosition < contracts {
		contracts = byPosition
	}

	if contracts <= 0 && riskPerContract.LessThanOrEqual(maxRiskPerTrade) {
		return 1
	}
	return contracts
}

func mustFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
