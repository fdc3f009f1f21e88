package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligun0805/multisender/internal/journal"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true
	var out bytes.Buffer
	a := newApp()
	a.Reader = strings.NewReader(stdin)
	a.Writer = &out
	a.ErrWriter = &out
	err := a.Run(append([]string{"multisender"}, args...))
	return out.String(), err
}

func TestParseCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.txt")
	content := "0x1111111111111111111111111111111111111111, 1.5\n\nnot-an-address 3\n0x2222222222222222222222222222222222222222; 0.25\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	out, err := run(t, "", "parse", "-f", path, "--chunk-size", "1")
	require.NoError(t, err)

	assert.Contains(t, out, "Lines: 3")
	assert.Contains(t, out, "=== PREVIEW ===")
	assert.Contains(t, out, "0x1111111111111111111111111111111111111111  1.5")
	assert.Contains(t, out, `line 3: invalid address`)
	assert.Contains(t, out, "Recipients: 2  Rejected: 1")
	assert.Contains(t, out, "Total: 1.75  (1750000000000000000 base units)")
	assert.Contains(t, out, "Chunks: 2")
}

func TestParseCommand_StdinDecimals(t *testing.T) {
	out, err := run(t, "0x1111111111111111111111111111111111111111 2.000001\n", "parse", "--decimals", "6", "--quiet", "--preview", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "(2000001 base units)")
	assert.NotContains(t, out, "PREVIEW")
}

func TestParseCommand_NothingValid(t *testing.T) {
	_, err := run(t, "hello world\n", "parse")
	require.Error(t, err)
	assert.Equal(t, "No valid recipients parsed.", err.Error())
}

func TestHistoryCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := journal.Open(path)
	require.NoError(t, err)
	ctx := context.Background()
	id, err := j.StartRun(ctx, journal.Run{
		ChainID: 8453, Token: "0x4200000000000000000000000000000000000006", Symbol: "WETH",
		Sender: "0xabc", Contract: "0xdef", Recipients: 250, Total: "250", Chunks: 3,
	})
	require.NoError(t, err)
	require.NoError(t, j.RecordChunk(ctx, journal.Chunk{RunID: id, Index: 0, Size: 120, Total: "120", TxHash: "0xaa", Status: "confirmed"}))
	require.NoError(t, j.FinishRun(ctx, id, journal.RunFailed))
	require.NoError(t, j.Close())

	out, err := run(t, "", "--journal", path, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "WETH")
	assert.Contains(t, out, "1/3")
	assert.Contains(t, out, "failed")

	out, err = run(t, "", "--journal", path, "history", "--run", fmt.Sprint(id))
	require.NoError(t, err)
	assert.Contains(t, out, "0xaa")
	assert.Contains(t, out, "confirmed")
}

func TestHistoryCommand_Disabled(t *testing.T) {
	_, err := run(t, "", "--journal", "", "history")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "journal is disabled")
}

func TestSendCommand_RequiresToken(t *testing.T) {
	_, err := run(t, "", "send", "-f", "-")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token")
}

func TestParseCommand_DecimalsRange(t *testing.T) {
	_, err := run(t, "0x1111111111111111111111111111111111111111 1\n", "parse", "--decimals", "4294967302")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --decimals")

	_, err = run(t, "0x1111111111111111111111111111111111111111 1\n", "parse", "--decimals", "78")
	require.Error(t, err)
}

func TestSendCommand_StdinNeedsYes(t *testing.T) {
	for _, cmd := range []string{"send", "approve"} {
		_, err := run(t, "0x1111111111111111111111111111111111111111 1\n", cmd, "--token", "WETH")
		require.Error(t, err, cmd)
		assert.ErrorIs(t, err, errStdinPrompt, cmd)
	}
}
