package recipients

import "math/big"

// DefaultChunkSize keeps a single sendTokens call comfortably under block gas limits.
const DefaultChunkSize = 120

// Chunk splits items into consecutive windows of at most size elements.
// size <= 0 falls back to DefaultChunkSize.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var out [][]T
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[i:end:end])
	}
	return out
}

// Chunks splits the batch into sub-batches, each with its own exact total.
// Rejected lines stay with the parent batch.
func (b Batch) Chunks(size int) []Batch {
	parts := Chunk(b.Pairs, size)
	out := make([]Batch, 0, len(parts))
	for _, pp := range parts {
		total := new(big.Int)
		for _, p := range pp {
			total.Add(total, p.Amount)
		}
		out = append(out, Batch{Decimals: b.Decimals, Pairs: pp, Total: total})
	}
	return out
}
