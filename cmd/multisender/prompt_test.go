package main

import (
	"bufio"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirm_SharedReader(t *testing.T) {
	in := bufio.NewReader(strings.NewReader("y\nyes\nn\n"))
	assert.True(t, confirm(in, io.Discard, "first?"))
	assert.True(t, confirm(in, io.Discard, "second?"))
	assert.False(t, confirm(in, io.Discard, "third?"))
	assert.False(t, confirm(in, io.Discard, "eof?"))
}

func TestReadInput_StdinLeavesNothingToConfirm(t *testing.T) {
	in := bufio.NewReader(strings.NewReader("0x1111111111111111111111111111111111111111, 1\ny\n"))
	text, err := readInput(in, "-")
	require.NoError(t, err)
	assert.Contains(t, text, "y\n")
	assert.False(t, confirm(in, io.Discard, "continue?"))
	assert.True(t, fromStdin(""))
	assert.True(t, fromStdin("-"))
	assert.False(t, fromStdin("list.txt"))
}
