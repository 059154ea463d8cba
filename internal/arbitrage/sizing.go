package arbitrage

import (
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Sizing holds the trade-size parameters shared by every bot.
type Sizing struct {
	TradeAmount *uint256.Int
	Buffer      decimal.Decimal
	Reserve     *uint256.Int
}

// Offer returns floor(min(tradeAmount, balance) × buffer) − reserve. The
// second result is false when nothing is left to trade.
func (s Sizing) Offer(balance *uint256.Int) (*uint256.Int, bool) {
	base := balance
	if s.TradeAmount != nil && s.TradeAmount.Lt(balance) {
		base = s.TradeAmount
	}
	return s.reserveFrom(floorMul(base, s.Buffer))
}

// MaxOffer sizes a trade from the stable balance plus the stable value of
// the aUST balance, used when idle capital is redeemed for the trade.
func (s Sizing) MaxOffer(stable, uaust *uint256.Int, rate decimal.Decimal) (*uint256.Int, bool) {
	total := toDecimal(stable).Add(toDecimal(uaust).Mul(rate))
	return s.reserveFrom(fromDecimal(total.Mul(s.Buffer)))
}

func (s Sizing) reserveFrom(x *uint256.Int) (*uint256.Int, bool) {
	reserve := s.Reserve
	if reserve == nil {
		reserve = new(uint256.Int)
	}
	if !x.Gt(reserve) {
		return new(uint256.Int), false
	}
	return new(uint256.Int).Sub(x, reserve), true
}
