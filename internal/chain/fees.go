package chain

import (
	"context"
	"math/big"

	"go.uber.org/zap"
)

// FeePolicy sets the EIP-1559 strategy.
type FeePolicy struct {
	MinTipGwei   int64 // priority fee floor
	BasefeeMul   int64 // feeCap = baseFee*BasefeeMul + tip
	GasBufferPct int64 // added on top of eth_estimateGas
}

type Fees struct {
	BaseFee *big.Int
	Tip     *big.Int
	FeeCap  *big.Int
}

// SuggestFees picks tip = max(node suggestion, floor) and feeCap = baseFee*mul + tip.
func (c *Client) SuggestFees(ctx context.Context, p FeePolicy) (Fees, error) {
	h, err := c.head(ctx)
	if err != nil {
		return Fees{}, err
	}
	baseFee := big.NewInt(0)
	if h.BaseFee != nil {
		baseFee = new(big.Int).Set(h.BaseFee)
	}

	tip := GweiToWei(p.MinTipGwei)
	suggested, err := withRetry(ctx, c, "eth_maxPriorityFeePerGas", func() (*big.Int, error) { return c.b.SuggestGasTipCap(ctx) })
	if err != nil {
		c.log.Debug("tip suggestion unavailable, using floor", zap.Error(err))
	} else if suggested != nil && suggested.Cmp(tip) > 0 {
		tip = suggested
	}

	mul := p.BasefeeMul
	if mul < 1 {
		mul = 1
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(mul))
	feeCap.Add(feeCap, tip)
	return Fees{BaseFee: baseFee, Tip: tip, FeeCap: feeCap}, nil
}

// GasWithBuffer adds pct percent on top of an estimate.
func GasWithBuffer(est uint64, pct int64) uint64 {
	if pct <= 0 {
		return est
	}
	return est + est*uint64(pct)/100
}

func GweiToWei(g int64) *big.Int {
	x := new(big.Int).SetInt64(g)
	return x.Mul(x, big.NewInt(1_000_000_000))
}

// FormatGwei renders wei as gwei with two decimals.
func FormatGwei(x *big.Int) string {
	if x == nil {
		return "0"
	}
	r := new(big.Rat).SetFrac(new(big.Int).Set(x), big.NewInt(1_000_000_000))
	return r.FloatString(2)
}

// FormatEther renders wei as ether with six decimals.
func FormatEther(x *big.Int) string {
	if x == nil {
		return "0"
	}
	r := new(big.Rat).SetFrac(new(big.Int).Set(x), big.NewInt(1_000_000_000_000_000_000))
	return r.FloatString(6)
}
