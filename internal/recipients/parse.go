// Package recipients turns pasted "address, amount" text into a validated batch
// of transfers with exact fixed-point amounts.
package recipients

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"unicode"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultDecimals is used when the token precision is unknown.
const DefaultDecimals = 18

// Line rejection reasons. Use errors.Is on Rejection.Reason.
var (
	ErrTokenCount     = errors.New("expected exactly two fields: address, amount")
	ErrInvalidAddress = errors.New("invalid address")
	ErrInvalidAmount  = errors.New("invalid amount")
)

// Pair is one accepted line of input.
type Pair struct {
	Line    int // 1-based physical line in the input text
	Address common.Address
	Raw     string // amount as typed
	Amount  *big.Int
}

// Rejection describes a line that did not make it into the batch.
type Rejection struct {
	Line   int
	Text   string
	Reason error
}

func (r Rejection) Error() string { return fmt.Sprintf("line %d: %v", r.Line, r.Reason) }

// Batch is the result of parsing the whole input.
// Amounts and Total are shared with memoized copies; treat them as read-only.
type Batch struct {
	Decimals int
	Pairs    []Pair
	Total    *big.Int
	Rejected []Rejection
}

// Parse splits text into lines and keeps every line that has exactly two fields,
// a valid address first and an amount that is exact at the given precision.
// Bad lines never stop the scan; they are collected in Batch.Rejected.
func Parse(text string, decimals int) Batch {
	if decimals < 0 {
		decimals = DefaultDecimals
	}
	b := Batch{Decimals: decimals, Total: new(big.Int)}
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		p, err := parseLine(line, decimals)
		if err != nil {
			b.Rejected = append(b.Rejected, Rejection{Line: i + 1, Text: line, Reason: err})
			continue
		}
		p.Line = i + 1
		b.Pairs = append(b.Pairs, p)
		b.Total.Add(b.Total, p.Amount)
	}
	return b
}

func parseLine(line string, decimals int) (Pair, error) {
	fields := SplitFields(line)
	if len(fields) != 2 {
		return Pair{}, fmt.Errorf("%w (got %d)", ErrTokenCount, len(fields))
	}
	if !IsAddress(fields[0]) {
		return Pair{}, fmt.Errorf("%w: %q", ErrInvalidAddress, fields[0])
	}
	amount, err := ParseAmount(fields[1], decimals)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Address: common.HexToAddress(fields[0]), Raw: fields[1], Amount: amount}, nil
}

// SplitFields splits a line on runs of commas, semicolons and whitespace.
func SplitFields(line string) []string {
	return strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ';' || unicode.IsSpace(r)
	})
}

// IsAddress reports whether s is a lower-case 0x followed by 40 hex digits.
// Mixed-case checksums are not enforced.
func IsAddress(s string) bool {
	if !strings.HasPrefix(s, "0x") {
		return false
	}
	return common.IsHexAddress(s)
}

// Len returns the number of accepted pairs.
func (b Batch) Len() int { return len(b.Pairs) }

// Recipients returns the destination addresses in input order.
func (b Batch) Recipients() []common.Address {
	out := make([]common.Address, len(b.Pairs))
	for i, p := range b.Pairs {
		out[i] = p.Address
	}
	return out
}

// Amounts returns the scaled amounts in input order.
func (b Batch) Amounts() []*big.Int {
	out := make([]*big.Int, len(b.Pairs))
	for i, p := range b.Pairs {
		out[i] = p.Amount
	}
	return out
}

// CountLines returns the number of non-empty lines, valid or not.
func CountLines(text string) int {
	n := 0
	for _, l := range strings.Split(text, "\n") {
		if strings.TrimSpace(l) != "" {
			n++
		}
	}
	return n
}

// Preview returns up to n non-empty lines as typed.
func Preview(text string, n int) []string {
	var out []string
	for _, l := range strings.Split(text, "\n") {
		if len(out) >= n {
			break
		}
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// ReasonLabel is a stable snake_case name for a rejection reason.
func ReasonLabel(err error) string {
	switch {
	case errors.Is(err, ErrTokenCount):
		return "token_count"
	case errors.Is(err, ErrInvalidAddress):
		return "invalid_address"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	}
	return "invalid"
}
