package recipients

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// MaxDecimals is the largest precision at which a whole token still fits in uint256.
const MaxDecimals = 77

// ParseAmount converts a human decimal ("1.5", ".25", "10") into an integer scaled
// by 10^decimals. Signs, exponents and values that would need rounding are rejected.
func ParseAmount(s string, decimals int) (*big.Int, error) {
	if decimals < 0 {
		decimals = DefaultDecimals
	}
	s = strings.TrimSpace(s)
	if !isPlainDecimal(s) {
		return nil, fmt.Errorf("%w: %q is not a plain decimal", ErrInvalidAmount, s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if d.IsZero() {
		return new(big.Int), nil
	}
	// the coefficient is at least 1, so the scaled value is at least 10^(exponent+decimals)
	if int64(d.Exponent())+int64(decimals) > MaxDecimals {
		return nil, fmt.Errorf("%w: %s overflows uint256 at %d decimals", ErrInvalidAmount, s, decimals)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("%w: %s has more than %d fractional digits", ErrInvalidAmount, s, decimals)
	}
	v := scaled.BigInt()
	if v.Cmp(maxUint256) > 0 {
		return nil, fmt.Errorf("%w: %s overflows uint256", ErrInvalidAmount, s)
	}
	return v, nil
}

// isPlainDecimal accepts digits with at most one dot and at least one digit.
func isPlainDecimal(s string) bool {
	digits, dots := 0, 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= '0' && c <= '9':
			digits++
		case c == '.':
			dots++
		default:
			return false
		}
	}
	return digits > 0 && dots <= 1
}

// FormatAmount renders a scaled integer back as a decimal string without trailing zeros.
func FormatAmount(v *big.Int, decimals int) string {
	if v == nil {
		return "0"
	}
	if decimals < 0 {
		decimals = DefaultDecimals
	}
	return decimal.NewFromBigInt(v, -int32(decimals)).String()
}
