package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Embedded(t *testing.T) {
	r, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "embedded", r.Source)
	assert.Len(t, r.SHA256, 64)

	base, ok := r.Lookup(8453)
	require.True(t, ok)
	assert.Equal(t, "Base", base.Name)
	addr, ok := base.Contract()
	require.True(t, ok)
	assert.Equal(t, common.HexToAddress("0x1baE4486b6D64A5174D32AFfAC95e5eac4df186C"), addr)

	eth, ok := r.Lookup(1)
	require.True(t, ok)
	_, ok = eth.Contract()
	assert.False(t, ok, "placeholder address means unsupported")

	_, ok = r.Lookup(10)
	assert.False(t, ok)
	assert.Equal(t, "chain 10", r.NameOf(10))
	assert.Equal(t, "Ethereum", r.NameOf(1))
}

func TestRegistry_Find(t *testing.T) {
	r, err := Load("")
	require.NoError(t, err)

	n, ok := r.Find("8453")
	require.True(t, ok)
	assert.Equal(t, "Base", n.Name)
	assert.Equal(t, "https://mainnet.base.org", n.RPCURL)

	n, ok = r.Find(" ethereum ")
	require.True(t, ok)
	assert.Equal(t, int64(1), n.ChainID)
	assert.NotEmpty(t, n.RPCURL)

	_, ok = r.Find("solana")
	assert.False(t, ok)
	_, ok = r.Find("10")
	assert.False(t, ok)

	assert.Equal(t, []string{"Ethereum", "Base"}, r.Names())
}

func TestNetwork_Token(t *testing.T) {
	r, err := Load("")
	require.NoError(t, err)
	eth, _ := r.Lookup(1)

	tok, ok := eth.Token("usdc")
	require.True(t, ok)
	assert.Equal(t, 6, tok.Decimals)

	tok, ok = eth.Token("0x6b175474e89094c44da98b954eedeac495271d0f")
	require.True(t, ok)
	assert.Equal(t, "DAI", tok.Symbol)

	_, ok = eth.Token("PEPE")
	assert.False(t, ok)
}

func TestNetwork_IsNative(t *testing.T) {
	n := Network{NativeSymbol: "ETH"}
	assert.True(t, n.IsNative("native"))
	assert.True(t, n.IsNative("eth"))
	assert.True(t, n.IsNative("0x0000000000000000000000000000000000000000"))
	assert.False(t, n.IsNative("USDC"))
	assert.False(t, n.IsNative(""))
}

func TestNetwork_TxURL(t *testing.T) {
	h := common.HexToHash("0x01")
	assert.Equal(t, "https://basescan.org/tx/"+h.Hex(), Network{Explorer: "https://basescan.org/"}.TxURL(h))
	assert.Empty(t, Network{}.TxURL(h))
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "networks.yaml")
	doc := `
version: 1
networks:
  - chain_id: 84532
    name: Base Sepolia
    multisender: "0x1111111111111111111111111111111111111111"
    tokens:
      - {symbol: TST, address: "0x2222222222222222222222222222222222222222", decimals: 8}
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	r, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, r.Source)
	n, ok := r.Lookup(84532)
	require.True(t, ok)
	tok, ok := n.Token("tst")
	require.True(t, ok)
	assert.Equal(t, 8, tok.Decimals)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"empty", "version: 1\nnetworks: []\n", "list is empty"},
		{"dup chain", "networks:\n  - {chain_id: 1, name: A}\n  - {chain_id: 1, name: B}\n", "duplicate chain_id"},
		{"no name", "networks:\n  - {chain_id: 5}\n", "name is required"},
		{"bad token", "networks:\n  - chain_id: 5\n    name: X\n    tokens: [{symbol: T, address: nope}]\n", "invalid address"},
		{"dup symbol", "networks:\n  - chain_id: 5\n    name: X\n    tokens:\n      - {symbol: T, address: \"0x1111111111111111111111111111111111111111\"}\n      - {symbol: t, address: \"0x2222222222222222222222222222222222222222\"}\n", "duplicate token symbol"},
		{"bad rpc", "networks:\n  - {chain_id: 5, name: X, rpc_url: \"not a url\"}\n", "invalid rpc_url"},
		{"yaml", "networks: [", "parse networks"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read networks")
}
