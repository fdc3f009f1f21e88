package recipients

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemo_KeyedOnTextAndDecimals(t *testing.T) {
	m := NewMemo(4)
	in := "0x1111111111111111111111111111111111111111, 1"

	a := m.Parse(in, 6)
	b := m.Parse(in, 6)
	assert.Same(t, a.Total, b.Total)
	assert.Equal(t, 1, m.Len())

	c := m.Parse(in, 18)
	assert.Equal(t, "1000000", a.Total.String())
	assert.Equal(t, "1000000000000000000", c.Total.String())
	assert.Equal(t, 2, m.Len())
}

func TestMemo_Evicts(t *testing.T) {
	m := NewMemo(2)
	m.Parse("a", 1)
	m.Parse("b", 1)
	m.Parse("c", 1)
	assert.Equal(t, 2, m.Len())
}
