package main

import (
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"

	"github.com/ligun0805/multisender/internal/multisend"
	"github.com/ligun0805/multisender/internal/recipients"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	addrColor   = color.New(color.FgCyan)
	amountColor = color.New(color.FgYellow)
	okColor     = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
	errColor    = color.New(color.FgRed)
)

func printBatch(w io.Writer, b recipients.Batch, chunkSize int, symbol string, quiet bool) {
	if !quiet {
		for _, p := range b.Pairs {
			fmt.Fprintf(w, "%6d  %s  %s\n", p.Line, addrColor.Sprint(p.Address.Hex()), amountColor.Sprint(recipients.FormatAmount(p.Amount, b.Decimals)))
		}
	}
	for _, r := range b.Rejected {
		errColor.Fprintf(w, "line %d: %v: %q\n", r.Line, r.Reason, r.Text)
	}
	fmt.Fprintf(w, "Recipients: %d  Rejected: %d\n", b.Len(), len(b.Rejected))
	fmt.Fprintf(w, "Total: %s %s (%s base units)\n", amountColor.Sprint(recipients.FormatAmount(b.Total, b.Decimals)), symbol, b.Total)

	chunks := b.Chunks(chunkSize)
	fmt.Fprintf(w, "Chunks: %d\n", len(chunks))
	for i, ch := range chunks {
		fmt.Fprintf(w, "  #%d  %d recipients  total %s\n", i+1, ch.Len(), recipients.FormatAmount(ch.Total, b.Decimals))
	}
}

func printStatus(w io.Writer, status string) {
	switch {
	case status == multisend.StatusSuccess || status == multisend.StatusApproved || strings.HasSuffix(status, " confirmed."):
		okColor.Fprintln(w, status)
	case status == multisend.StatusCancelled:
		warnColor.Fprintln(w, status)
	default:
		fmt.Fprintln(w, status)
	}
}

func printChunks(w io.Writer, res []multisend.ChunkResult, decimals int, txURL func(common.Hash) string) {
	headerColor.Fprintln(w, "=== CHUNKS ===")
	for _, r := range res {
		line := fmt.Sprintf("#%d  %-10s %4d recipients  %s", r.Index+1, r.Status, r.Size, recipients.FormatAmount(r.Total, decimals))
		if r.TxHash != (common.Hash{}) {
			line += "  " + txURL(r.TxHash)
		}
		if r.Err != nil {
			line += "  (" + multisend.FailureMessage(r.Err) + ")"
		}
		switch r.Status {
		case multisend.ChunkConfirmed:
			okColor.Fprintln(w, line)
		case multisend.ChunkFailed:
			errColor.Fprintln(w, line)
		case multisend.ChunkUnconfirmed:
			warnColor.Fprintln(w, line)
		default:
			fmt.Fprintln(w, line)
		}
	}
}

func formatBalance(v *big.Int, decimals int) string {
	if v == nil {
		return "?"
	}
	return recipients.FormatAmount(v, decimals)
}
