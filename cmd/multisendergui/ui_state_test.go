package main

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunState_SingleFlight(t *testing.T) {
	var r runState
	assert.False(t, r.busy())
	assert.False(t, r.stop())

	ctx, ok := r.begin(context.Background())
	require.True(t, ok)
	assert.True(t, r.busy())

	_, again := r.begin(context.Background())
	assert.False(t, again, "second run must wait for the first")

	assert.True(t, r.stop())
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.True(t, r.busy(), "stop cancels but the run still owns the slot")

	r.end()
	assert.False(t, r.busy())
	_, ok = r.begin(context.Background())
	assert.True(t, ok)
	r.end()
}

func TestDraft_RoundTrip(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	assert.Equal(t, draft{}, loadDraft())

	in := draft{Token: "USDC", Text: "0x1111111111111111111111111111111111111111, 1", ChunkSize: "50", Theme: "light"}
	require.NoError(t, saveDraft(in))
	assert.Equal(t, in, loadDraft())
}
