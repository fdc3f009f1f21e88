package recipients

import (
	cache "github.com/Code-Hex/go-generics-cache"
	"github.com/Code-Hex/go-generics-cache/policy/lru"
)

type memoKey struct {
	text     string
	decimals int
}

// Memo caches Parse results keyed on (text, decimals). A token switch changes
// the key, so amounts are always re-derived at the new precision.
type Memo struct {
	c *cache.Cache[memoKey, Batch]
}

func NewMemo(capacity int) *Memo {
	if capacity <= 0 {
		capacity = 16
	}
	return &Memo{c: cache.New(cache.AsLRU[memoKey, Batch](lru.WithCapacity(capacity)))}
}

func (m *Memo) Parse(text string, decimals int) Batch {
	if decimals < 0 {
		decimals = DefaultDecimals
	}
	k := memoKey{text: text, decimals: decimals}
	if b, ok := m.c.Get(k); ok {
		return b
	}
	b := Parse(text, decimals)
	m.c.Set(k, b)
	return b
}

func (m *Memo) Len() int { return m.c.Len() }
