package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ligun0805/multisender/internal/chain"
	"github.com/ligun0805/multisender/internal/recipients"
)

const previewLines = 5

// inputSummary is what the page shows under the recipients box.
type inputSummary struct {
	Lines    int
	Preview  []string
	Valid    int
	Rejected []recipients.Rejection
	Total    string
	Chunks   int
}

func summarize(memo *recipients.Memo, text string, decimals, chunkSize int) inputSummary {
	b := memo.Parse(text, decimals)
	return inputSummary{
		Lines:    recipients.CountLines(text),
		Preview:  recipients.Preview(text, previewLines),
		Valid:    b.Len(),
		Rejected: b.Rejected,
		Total:    recipients.FormatAmount(b.Total, b.Decimals),
		Chunks:   len(recipients.Chunk(b.Pairs, chunkSize)),
	}
}

func (s inputSummary) headline(symbol string) string {
	out := fmt.Sprintf("Valid: %d   Rejected: %d   Total: %s", s.Valid, len(s.Rejected), s.Total)
	if symbol != "" {
		out += " " + symbol
	}
	if s.Chunks > 1 {
		out += fmt.Sprintf("   Transactions: %d", s.Chunks)
	}
	return out
}

// rejectedText lists the first few rejected lines.
func (s inputSummary) rejectedText(max int) string {
	var sb strings.Builder
	for i, r := range s.Rejected {
		if i == max {
			fmt.Fprintf(&sb, "... and %d more", len(s.Rejected)-max)
			break
		}
		sb.WriteString(r.Error())
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}

// parseChunkSize reads the chunk-size entry; anything unusable falls back to def.
func parseChunkSize(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// tokenOption is the label shown in the token picker.
func tokenOption(t chain.TokenContext) string {
	bal := "?"
	if t.Balance != nil {
		bal = recipients.FormatAmount(t.Balance, t.Decimals)
	}
	return fmt.Sprintf("%s  (%s)  %s", t.Label(), bal, chain.Shorten(t.Address))
}
