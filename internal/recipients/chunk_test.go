package recipients

import (
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunk_250By120(t *testing.T) {
	items := make([]int, 250)
	for i := range items {
		items[i] = i
	}

	chunks := Chunk(items, 120)

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 120)
	assert.Len(t, chunks[1], 120)
	assert.Len(t, chunks[2], 10)

	var flat []int
	for _, c := range chunks {
		flat = append(flat, c...)
	}
	assert.Equal(t, items, flat)
}

func TestChunk_Edges(t *testing.T) {
	assert.Empty(t, Chunk([]int{}, 10))
	assert.Empty(t, Chunk[int](nil, 10))
	assert.Equal(t, [][]int{{1, 2}}, Chunk([]int{1, 2}, 2))
	assert.Equal(t, [][]int{{1}, {2}, {3}}, Chunk([]int{1, 2, 3}, 1))

	long := make([]int, DefaultChunkSize+1)
	got := Chunk(long, 0)
	require.Len(t, got, 2)
	assert.Len(t, got[0], DefaultChunkSize)
}

func TestChunk_NoAliasingOnAppend(t *testing.T) {
	items := []int{1, 2, 3, 4}
	chunks := Chunk(items, 2)
	_ = append(chunks[0], 99)
	assert.Equal(t, []int{1, 2, 3, 4}, items)
}

func TestBatch_Chunks(t *testing.T) {
	var sb strings.Builder
	for i := 1; i <= 250; i++ {
		fmt.Fprintf(&sb, "0x%040x, %d\n", i, i)
	}
	b := Parse(sb.String(), 0)
	require.Equal(t, 250, b.Len())

	parts := b.Chunks(120)

	require.Len(t, parts, 3)
	sizes := []int{parts[0].Len(), parts[1].Len(), parts[2].Len()}
	assert.Equal(t, []int{120, 120, 10}, sizes)

	sum := new(big.Int)
	line := 0
	for _, p := range parts {
		sum.Add(sum, p.Total)
		for _, pair := range p.Pairs {
			line++
			assert.Equal(t, line, pair.Line)
		}
	}
	assert.Equal(t, 0, sum.Cmp(b.Total))
	// 1+...+120
	assert.Equal(t, "7260", parts[0].Total.String())
}
