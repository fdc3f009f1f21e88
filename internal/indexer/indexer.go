// Package indexer lists the wallet's token balances for the token picker.
package indexer

import (
	"context"
	"sort"
	"strings"

	cache "github.com/Code-Hex/go-generics-cache"
	"github.com/Code-Hex/go-generics-cache/policy/lru"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ligun0805/multisender/internal/chain"
)

// Indexer returns the tokens owner holds (or may send) on one chain.
type Indexer interface {
	Tokens(ctx context.Context, owner common.Address) ([]chain.TokenContext, error)
}

// Meta is the immutable part of a token: it is cached per chain and address.
type Meta struct {
	Symbol   string
	Decimals int
}

type metaKey struct {
	chainID int64
	token   common.Address
}

// MetaCache is an LRU of token metadata shared by indexers.
type MetaCache struct {
	c *cache.Cache[metaKey, Meta]
}

func NewMetaCache(capacity int) *MetaCache {
	if capacity <= 0 {
		capacity = 256
	}
	return &MetaCache{c: cache.New(cache.AsLRU[metaKey, Meta](lru.WithCapacity(capacity)))}
}

func (m *MetaCache) Get(chainID int64, token common.Address) (Meta, bool) {
	if m == nil {
		return Meta{}, false
	}
	return m.c.Get(metaKey{chainID, token})
}

func (m *MetaCache) Set(chainID int64, token common.Address, meta Meta) {
	if m == nil {
		return
	}
	m.c.Set(metaKey{chainID, token}, meta)
}

func (m *MetaCache) Len() int {
	if m == nil {
		return 0
	}
	return m.c.Len()
}

func sortTokens(ts []chain.TokenContext) {
	sort.SliceStable(ts, func(i, j int) bool {
		a, b := strings.ToUpper(ts[i].Symbol), strings.ToUpper(ts[j].Symbol)
		if a != b {
			return a < b
		}
		return strings.Compare(ts[i].Address.Hex(), ts[j].Address.Hex()) < 0
	})
}
