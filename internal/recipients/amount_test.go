package recipients

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in       string
		decimals int
		want     string
	}{
		{"1.5", 18, "1500000000000000000"},
		{"0.25", 18, "250000000000000000"},
		{"1", 6, "1000000"},
		{".5", 6, "500000"},
		{"5.", 6, "5000000"},
		{"007", 2, "700"},
		{"0", 18, "0"},
		{"1.50", 1, "15"},
		{"1.000000", 0, "1"},
		{"123456789012345678901234567890", 0, "123456789012345678901234567890"},
		{"0.000001", 6, "1"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, err := ParseAmount(tt.in, tt.decimals)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.String())
		})
	}
}

func TestParseAmount_Rejects(t *testing.T) {
	for _, in := range []string{"", " ", "-1", "+1", "1e18", "1E2", "0x10", "1,5", "1.2.3", ".", "abc", "1.0000001", "NaN", "∞"} {
		_, err := ParseAmount(in, 6)
		assert.True(t, errors.Is(err, ErrInvalidAmount), "input %q: %v", in, err)
	}
}

func TestParseAmount_Uint256Bound(t *testing.T) {
	max := maxUint256.String()
	v, err := ParseAmount(max, 0)
	require.NoError(t, err)
	assert.Equal(t, max, v.String())

	_, err = ParseAmount("1"+strings.Repeat("0", 78), 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestParseAmount_HugePrecision(t *testing.T) {
	_, err := ParseAmount("1", 1<<32+6)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ParseAmount("1", 3_000_000_000)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	v, err := ParseAmount("0", 3_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, "0", v.String())

	v, err = ParseAmount("0.1", MaxDecimals+1)
	require.NoError(t, err)
	assert.Equal(t, "1"+strings.Repeat("0", 77), v.String())

	_, err = ParseAmount("1", MaxDecimals+1)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestFormatAmount(t *testing.T) {
	v, err := ParseAmount("1.25", 18)
	require.NoError(t, err)
	assert.Equal(t, "1.25", FormatAmount(v, 18))
	assert.Equal(t, "0", FormatAmount(nil, 18))
	assert.Equal(t, "1250000000000000000", FormatAmount(v, 0))

	w, err := ParseAmount("0.000001", 6)
	require.NoError(t, err)
	assert.Equal(t, "0.000001", FormatAmount(w, 6))
}
