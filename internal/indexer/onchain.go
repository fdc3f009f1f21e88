package indexer

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sourcegraph/conc/iter"
	"go.uber.org/zap"

	"github.com/ligun0805/multisender/internal/chain"
	"github.com/ligun0805/multisender/internal/registry"
)

// OnChain reads balanceOf for every token listed for the network.
type OnChain struct {
	c       *chain.Client
	chainID int64
	tokens  []registry.Token
	meta    *MetaCache
	log     *zap.Logger

	MaxGoroutines int
}

func NewOnChain(c *chain.Client, n registry.Network, meta *MetaCache, log *zap.Logger) *OnChain {
	if log == nil {
		log = zap.NewNop()
	}
	return &OnChain{c: c, chainID: n.ChainID, tokens: n.Tokens, meta: meta, log: log, MaxGoroutines: 8}
}

// Tokens returns every listed token with its live balance. A token whose balance
// cannot be read is still returned (Balance nil) and the error is reported.
func (o *OnChain) Tokens(ctx context.Context, owner common.Address) ([]chain.TokenContext, error) {
	mapper := iter.Mapper[registry.Token, chain.TokenContext]{MaxGoroutines: o.MaxGoroutines}
	out, err := mapper.MapErr(o.tokens, func(t *registry.Token) (chain.TokenContext, error) {
		addr := t.Addr()
		m := o.metadata(ctx, *t)
		tc := chain.TokenContext{Address: addr, Symbol: m.Symbol, Decimals: m.Decimals}
		bal, err := o.c.Balance(ctx, addr, owner)
		if err != nil {
			return tc, fmt.Errorf("%s: %w", tc.Label(), err)
		}
		tc.Balance = bal
		return tc, nil
	})
	sortTokens(out)
	return out, err
}

// metadata prefers on-chain decimals/symbol and falls back to the registry entry.
func (o *OnChain) metadata(ctx context.Context, t registry.Token) Meta {
	addr := t.Addr()
	if m, ok := o.meta.Get(o.chainID, addr); ok {
		return m
	}
	m := Meta{Symbol: t.Symbol, Decimals: t.Decimals}
	d, err := o.c.Decimals(ctx, addr)
	if err != nil {
		o.log.Warn("decimals() failed, using registry value",
			zap.Stringer("token", addr), zap.Int("decimals", t.Decimals), zap.String("reason", chain.ShortMessage(err)))
		return m
	}
	if d != t.Decimals && t.Decimals != 0 {
		o.log.Warn("registry decimals differ from chain", zap.Stringer("token", addr), zap.Int("registry", t.Decimals), zap.Int("chain", d))
	}
	m.Decimals = d
	if s, err := o.c.Symbol(ctx, addr); err == nil && s != "" {
		m.Symbol = s
	}
	o.meta.Set(o.chainID, addr, m)
	return m
}
