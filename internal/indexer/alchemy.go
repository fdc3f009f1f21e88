package indexer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/ligun0805/multisender/internal/chain"
)

// Alchemy uses the alchemy_getTokenBalances / alchemy_getTokenMetadata extension
// methods, which list every ERC-20 the wallet holds instead of a fixed token list.
type Alchemy struct {
	rpc     *rpc.Client
	chainID int64
	meta    *MetaCache
	log     *zap.Logger

	MaxGoroutines int
}

func NewAlchemy(c *rpc.Client, chainID int64, meta *MetaCache, log *zap.Logger) *Alchemy {
	if log == nil {
		log = zap.NewNop()
	}
	return &Alchemy{rpc: c, chainID: chainID, meta: meta, log: log, MaxGoroutines: 4}
}

// DialAlchemy connects to an alchemy-compatible endpoint.
func DialAlchemy(ctx context.Context, url string, chainID int64, meta *MetaCache, log *zap.Logger) (*Alchemy, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial indexer: %w", err)
	}
	return NewAlchemy(c, chainID, meta, log), nil
}

func (a *Alchemy) Close() { a.rpc.Close() }

type tokenBalancesResult struct {
	Address       string `json:"address"`
	TokenBalances []struct {
		ContractAddress string  `json:"contractAddress"`
		TokenBalance    string  `json:"tokenBalance"`
		Error           *string `json:"error"`
	} `json:"tokenBalances"`
}

type tokenMetadataResult struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals *int   `json:"decimals"`
}

// Tokens returns every ERC-20 with a non-zero balance.
func (a *Alchemy) Tokens(ctx context.Context, owner common.Address) ([]chain.TokenContext, error) {
	var res tokenBalancesResult
	if err := a.rpc.CallContext(ctx, &res, "alchemy_getTokenBalances", owner, "erc20"); err != nil {
		return nil, fmt.Errorf("alchemy_getTokenBalances: %w", err)
	}

	p := pool.NewWithResults[chain.TokenContext]().WithContext(ctx).WithMaxGoroutines(a.MaxGoroutines)
	for _, tb := range res.TokenBalances {
		if tb.Error != nil || !common.IsHexAddress(tb.ContractAddress) {
			continue
		}
		bal, ok := parseHexBig(tb.TokenBalance)
		if !ok || bal.Sign() == 0 {
			continue
		}
		addr := common.HexToAddress(tb.ContractAddress)
		p.Go(func(ctx context.Context) (chain.TokenContext, error) {
			m, err := a.metadata(ctx, addr)
			if err != nil {
				return chain.TokenContext{}, err
			}
			return chain.TokenContext{Address: addr, Symbol: m.Symbol, Decimals: m.Decimals, Balance: bal}, nil
		})
	}
	out, err := p.Wait()
	sortTokens(out)
	return out, err
}

func (a *Alchemy) metadata(ctx context.Context, token common.Address) (Meta, error) {
	if m, ok := a.meta.Get(a.chainID, token); ok {
		return m, nil
	}
	var r tokenMetadataResult
	if err := a.rpc.CallContext(ctx, &r, "alchemy_getTokenMetadata", token); err != nil {
		return Meta{}, fmt.Errorf("alchemy_getTokenMetadata %s: %w", token.Hex(), err)
	}
	m := Meta{Symbol: r.Symbol, Decimals: chain.DefaultDecimals}
	if r.Decimals != nil {
		if *r.Decimals < 0 || *r.Decimals > 77 {
			return Meta{}, errors.New("alchemy_getTokenMetadata: implausible decimals")
		}
		m.Decimals = *r.Decimals
	} else {
		a.log.Debug("token metadata without decimals", zap.Stringer("token", token))
	}
	a.meta.Set(a.chainID, token, m)
	return m, nil
}

// parseHexBig accepts zero-padded quantities such as "0x0000...0de0b6b3a7640000".
func parseHexBig(s string) (*big.Int, bool) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if s == "" {
		return big.NewInt(0), true
	}
	return new(big.Int).SetString(s, 16)
}
