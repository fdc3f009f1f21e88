package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// DefaultDecimals applies when a token does not answer decimals().
const DefaultDecimals = 18

var (
	selDecimals = common.FromHex("0x313ce567")
	selSymbol   = common.FromHex("0x95d89b41")
)

// TokenContext is what the sender needs to know about the selected token.
type TokenContext struct {
	Address   common.Address
	Symbol    string
	Decimals  int
	Balance   *big.Int
	Allowance *big.Int // owner -> multisender contract
}

// Label is the symbol, or the shortened address when the token has none.
func (t TokenContext) Label() string {
	if t.Symbol != "" {
		return t.Symbol
	}
	return Shorten(t.Address)
}

// Decimals returns decimals() or an error; callers usually fall back to FallbackDecimals.
func (c *Client) Decimals(ctx context.Context, token common.Address) (int, error) {
	res, err := c.Call(ctx, ethereum.CallMsg{To: &token, Data: selDecimals})
	if err != nil {
		return 0, fmt.Errorf("decimals(): %w", err)
	}
	if len(res) == 0 {
		return c.FallbackDecimals, nil
	}
	d := new(big.Int).SetBytes(res)
	if !d.IsInt64() || d.Int64() > 77 {
		return 0, fmt.Errorf("decimals(): implausible value %s", d)
	}
	return int(d.Int64()), nil
}

// Symbol returns symbol(); both string and bytes32 encodings are accepted.
func (c *Client) Symbol(ctx context.Context, token common.Address) (string, error) {
	out, err := c.Call(ctx, ethereum.CallMsg{To: &token, Data: selSymbol})
	if err != nil {
		return "", fmt.Errorf("symbol(): %w", err)
	}
	return decodeSymbol(out), nil
}

func decodeSymbol(out []byte) string {
	if len(out) >= 64 {
		l := new(big.Int).SetBytes(out[32:64])
		if l.IsInt64() && l.Int64() > 0 && 64+int(l.Int64()) <= len(out) {
			return string(out[64 : 64+int(l.Int64())])
		}
	}
	return strings.TrimRight(string(out), "\x00")
}

// Balance returns balanceOf(owner).
func (c *Client) Balance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	data, err := ERC20ABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return c.callUint(ctx, token, data, "balanceOf")
}

// Allowance returns allowance(owner, spender).
func (c *Client) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	data, err := ERC20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return c.callUint(ctx, token, data, "allowance")
}

func (c *Client) callUint(ctx context.Context, token common.Address, data []byte, name string) (*big.Int, error) {
	res, err := c.Call(ctx, ethereum.CallMsg{To: &token, Data: data})
	if err != nil {
		return nil, fmt.Errorf("%s(): %w", name, err)
	}
	if len(res) == 0 {
		return big.NewInt(0), nil
	}
	if len(res) > 32 {
		res = res[:32]
	}
	return new(big.Int).SetBytes(res), nil
}

// LoadTokenContext reads symbol, decimals, balance and allowance for owner.
// Unknown decimals fall back to FallbackDecimals; a missing symbol is left empty.
func (c *Client) LoadTokenContext(ctx context.Context, token, owner, spender common.Address) (TokenContext, error) {
	tc := TokenContext{Address: token, Decimals: c.FallbackDecimals}

	if d, err := c.Decimals(ctx, token); err == nil {
		tc.Decimals = d
	} else {
		c.log.Warn("token decimals unavailable, assuming default", zap.Stringer("token", token), zap.String("reason", ShortMessage(err)))
	}
	if s, err := c.Symbol(ctx, token); err == nil {
		tc.Symbol = s
	} else {
		c.log.Debug("token symbol unavailable", zap.Stringer("token", token), zap.String("reason", ShortMessage(err)))
	}

	bal, err := c.Balance(ctx, token, owner)
	if err != nil {
		return tc, err
	}
	tc.Balance = bal

	if spender != (common.Address{}) {
		al, err := c.Allowance(ctx, token, owner, spender)
		if err != nil {
			return tc, err
		}
		tc.Allowance = al
	} else {
		tc.Allowance = big.NewInt(0)
	}
	return tc, nil
}
