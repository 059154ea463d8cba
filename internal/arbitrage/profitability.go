// Package arbitrage holds the per-direction profitability evaluator and the
// builders that turn a profitable decision into chain messages.
package arbitrage

import (
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pegbot/internal/domain"
)

// ratioPlaces is the precision of profit ratios, matching the chain's
// 18-place decimals.
const ratioPlaces = 18

var one = decimal.NewFromInt(1)

// ProfitabilityCheck evaluates one direction of one cycle. Update loads the
// quotes, after which Accept decides against a fee and ProfitRatio reports
// the last computed ratio. A check is reused across cycles by a single bot
// and is not safe for concurrent use.
type ProfitabilityCheck struct {
	margin   decimal.Decimal
	denom    string
	fixedFee *uint256.Int

	offer    *uint256.Int
	received *uint256.Int
	taxRate  decimal.Decimal
	ratio    decimal.Decimal
	updated  bool
}

// NewProfitabilityCheck creates a check with the given margin. fixedFee is
// the fee assumed by Update before the real fee is known, and its denom is
// the one offer and received amounts are counted in.
func NewProfitabilityCheck(margin decimal.Decimal, fixedFee domain.Coin) *ProfitabilityCheck {
	amount := fixedFee.Amount
	if amount == nil {
		amount = new(uint256.Int)
	}
	return &ProfitabilityCheck{margin: margin, denom: fixedFee.Denom, fixedFee: amount}
}

// Denom returns the denom fees must be paid in.
func (p *ProfitabilityCheck) Denom() string { return p.denom }

// Update loads a matching offer/received pair and the tax rate, and computes
// the ratio against the fixed fee.
func (p *ProfitabilityCheck) Update(offer, received *uint256.Int, taxRate decimal.Decimal) {
	p.offer = offer
	p.received = received
	p.taxRate = taxRate
	p.updated = true
	p.ratio = ProfitRatio(offer, received, taxRate, p.fixedFee)
}

// Accept recomputes the ratio against fee and reports whether it clears the
// margin. It returns false before the first Update, for a zero offer and for
// a fee in a denom other than the check's; the ratio is left as it was in
// those cases.
func (p *ProfitabilityCheck) Accept(fee domain.Coin) bool {
	if !p.updated || p.offer == nil || p.offer.IsZero() {
		return false
	}
	if fee.Denom != p.denom {
		return false
	}
	amount := fee.Amount
	if amount == nil {
		amount = new(uint256.Int)
	}
	p.ratio = ProfitRatio(p.offer, p.received, p.taxRate, amount)
	return p.ratio.GreaterThan(one.Add(p.margin))
}

// ProfitRatio returns the last computed ratio, zero before Update.
func (p *ProfitabilityCheck) ProfitRatio() decimal.Decimal { return p.ratio }

// Margin returns the configured margin.
func (p *ProfitabilityCheck) Margin() decimal.Decimal { return p.margin }

// Classify maps a declined check to NoOpportunity or CloseToOpportunity. A
// ratio within margin×closeRatio of break-even is close.
func (p *ProfitabilityCheck) Classify(closeRatio decimal.Decimal) domain.ArbResult {
	if p.ratio.LessThan(one.Add(p.margin.Mul(closeRatio))) {
		return domain.NoOpportunity
	}
	return domain.CloseToOpportunity
}

// WantsWithdraw reports whether the ratio is high enough to redeem all idle
// capital and trade the larger balance.
func (p *ProfitabilityCheck) WantsWithdraw(withdrawRatio decimal.Decimal) bool {
	return p.ratio.GreaterThan(one.Add(p.margin.Mul(withdrawRatio)))
}

// ProfitRatio computes (received − fee − offer×taxRate) / offer exactly to
// 18 places. A zero offer yields zero.
func ProfitRatio(offer, received *uint256.Int, taxRate decimal.Decimal, fee *uint256.Int) decimal.Decimal {
	if offer == nil || offer.IsZero() {
		return decimal.Zero
	}
	o := toDecimal(offer)
	net := toDecimal(received).Sub(toDecimal(fee)).Sub(o.Mul(taxRate))
	return net.DivRound(o, ratioPlaces)
}

// IsProfitable is the stateless form of the decision.
func IsProfitable(offer, received *uint256.Int, taxRate decimal.Decimal, fixedFee *uint256.Int, margin decimal.Decimal) bool {
	if offer == nil || offer.IsZero() {
		return false
	}
	return ProfitRatio(offer, received, taxRate, fixedFee).GreaterThan(one.Add(margin))
}

func toDecimal(x *uint256.Int) decimal.Decimal {
	if x == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(x.ToBig(), 0)
}

// floorMul returns floor(x × ratio), zero when the product is negative.
func floorMul(x *uint256.Int, ratio decimal.Decimal) *uint256.Int {
	return fromDecimal(toDecimal(x).Mul(ratio))
}

// fromDecimal truncates d toward zero and clamps negatives to zero.
func fromDecimal(d decimal.Decimal) *uint256.Int {
	if d.Sign() <= 0 {
		return new(uint256.Int)
	}
	v, overflow := uint256.FromBig(d.Truncate(0).BigInt())
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return v
}
