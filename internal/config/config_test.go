package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	st, err := LoadFrom(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "https://mainnet.base.org", st.RPCURL)
	assert.Equal(t, int64(0), st.ChainID)
	assert.Equal(t, 120, st.ChunkSize)
	assert.Equal(t, 18, st.DefaultDecimals)
	assert.Equal(t, int64(2), st.TipGwei)
	assert.Equal(t, int64(2), st.BasefeeMul)
	assert.Equal(t, int64(20), st.GasBufferPct)
	assert.Equal(t, 3*time.Minute, st.ReceiptTimeout)
	assert.Equal(t, 2*time.Second, st.ReceiptPoll)
	assert.Equal(t, 30*time.Second, st.RPCTimeout)
	assert.Equal(t, "logs/multisender.db", st.JournalPath)
	assert.Equal(t, "info", st.LogLevel)
	assert.NoError(t, st.Validate())
}

func TestLoadFrom_Overrides(t *testing.T) {
	st, err := LoadFrom(map[string]string{
		"RPC_URL":         " https://base.example.org ",
		"CHAIN_ID":        "8453",
		"PRIVATE_KEY":     " 0xabc123 ",
		"CHUNK_SIZE":      "50",
		"RECEIPT_TIMEOUT": "90s",
		"JOURNAL_PATH":    "",
		"LOG_LEVEL":       "debug",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://base.example.org", st.RPCURL)
	assert.Equal(t, int64(8453), st.ChainID)
	assert.Equal(t, "0xabc123", st.PrivateKeyHex)
	assert.Equal(t, 50, st.ChunkSize)
	assert.Equal(t, 90*time.Second, st.ReceiptTimeout)
	assert.Empty(t, st.JournalPath)
	assert.Equal(t, "debug", st.LogLevel)
}

func TestLoadFrom_LowerCaseKeys(t *testing.T) {
	st, err := LoadFrom(map[string]string{
		"rpc_url":    "https://lower.example.org",
		"tip_gwei":   "5",
		"chunk_size": "10",
		"CHUNK_SIZE": "20",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://lower.example.org", st.RPCURL)
	assert.Equal(t, int64(5), st.TipGwei)
	assert.Equal(t, 20, st.ChunkSize, "upper-case key wins")
}

func TestLoadFrom_BadNumber(t *testing.T) {
	_, err := LoadFrom(map[string]string{"CHUNK_SIZE": "many"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ChunkSize")
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	st, err := LoadFrom(map[string]string{})
	require.NoError(t, err)

	st.RPCURL = "ftp://node"
	st.ChunkSize = 0
	st.BasefeeMul = 0
	st.ReceiptPoll = time.Minute
	st.ReceiptTimeout = time.Second
	st.LogLevel = "loud"
	st.IndexerURL = "::nope"

	err = st.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "RPC_URL scheme")
	assert.Contains(t, msg, "CHUNK_SIZE")
	assert.Contains(t, msg, "BASEFEE_MUL")
	assert.Contains(t, msg, "RECEIPT_TIMEOUT")
	assert.Contains(t, msg, "LOG_LEVEL")
	assert.Contains(t, msg, "INDEXER_URL")
}

func TestValidate_EmptyRPC(t *testing.T) {
	st, err := LoadFrom(map[string]string{})
	require.NoError(t, err)
	st.RPCURL = ""
	err = st.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RPC_URL is required")
}

func TestMaskedKey(t *testing.T) {
	assert.Equal(t, "******cdef", Settings{PrivateKeyHex: "0x012345cdef"}.MaskedKey())
	assert.Equal(t, "***", Settings{PrivateKeyHex: "abc"}.MaskedKey())
	assert.Equal(t, "", Settings{}.MaskedKey())
}
