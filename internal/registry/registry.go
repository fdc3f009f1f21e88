// Package registry knows which networks have a multisender deployment and which
// tokens to offer on each of them.
package registry

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

//go:embed networks.yaml
var defaultNetworks []byte

// NativeRef is the token reference that selects the chain's native currency.
const NativeRef = "native"

type Token struct {
	Symbol   string `yaml:"symbol"`
	Address  string `yaml:"address"`
	Decimals int    `yaml:"decimals"`
}

func (t Token) Addr() common.Address { return common.HexToAddress(t.Address) }

type Network struct {
	ChainID      int64   `yaml:"chain_id"`
	Name         string  `yaml:"name"`
	NativeSymbol string  `yaml:"native_symbol"`
	RPCURL       string  `yaml:"rpc_url"` // endpoint used when switching to this network
	Explorer     string  `yaml:"explorer"`
	Multisender  string  `yaml:"multisender"`
	Tokens       []Token `yaml:"tokens"`
}

type Registry struct {
	Version  int       `yaml:"version"`
	Networks []Network `yaml:"networks"`

	// SHA256 of the loaded document, logged so operators can tell which file was used.
	SHA256 string `yaml:"-"`
	Source string `yaml:"-"`
}

// Load reads path, or the embedded defaults when path is empty.
func Load(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		r, err := Parse(defaultNetworks)
		if err != nil {
			return nil, err
		}
		r.Source = "embedded"
		return r, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read networks: %w", err)
	}
	r, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	r.Source = path
	return r, nil
}

// Parse decodes and validates a networks document.
func Parse(raw []byte) (*Registry, error) {
	var r Registry
	if err := yaml.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("parse networks: %w", err)
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	sum := sha256.Sum256(raw)
	r.SHA256 = hex.EncodeToString(sum[:])
	sort.SliceStable(r.Networks, func(i, j int) bool { return r.Networks[i].ChainID < r.Networks[j].ChainID })
	return &r, nil
}

func (r *Registry) validate() error {
	if len(r.Networks) == 0 {
		return errors.New("networks: list is empty")
	}
	seen := make(map[int64]struct{}, len(r.Networks))
	for _, n := range r.Networks {
		if n.ChainID <= 0 {
			return fmt.Errorf("networks: invalid chain_id %d", n.ChainID)
		}
		if _, ok := seen[n.ChainID]; ok {
			return fmt.Errorf("networks: duplicate chain_id %d", n.ChainID)
		}
		seen[n.ChainID] = struct{}{}
		if strings.TrimSpace(n.Name) == "" {
			return fmt.Errorf("networks: name is required for chain %d", n.ChainID)
		}
		if n.RPCURL != "" {
			if u, err := url.Parse(n.RPCURL); err != nil || u.Host == "" {
				return fmt.Errorf("networks: %s has invalid rpc_url %q", n.Name, n.RPCURL)
			}
		}
		syms := make(map[string]struct{}, len(n.Tokens))
		for _, t := range n.Tokens {
			if !common.IsHexAddress(t.Address) {
				return fmt.Errorf("networks: %s token %q has invalid address %q", n.Name, t.Symbol, t.Address)
			}
			if t.Decimals < 0 || t.Decimals > 77 {
				return fmt.Errorf("networks: %s token %q has invalid decimals %d", n.Name, t.Symbol, t.Decimals)
			}
			k := strings.ToUpper(t.Symbol)
			if _, ok := syms[k]; ok && k != "" {
				return fmt.Errorf("networks: %s has duplicate token symbol %q", n.Name, t.Symbol)
			}
			syms[k] = struct{}{}
		}
	}
	return nil
}

// Lookup returns the network for chainID.
func (r *Registry) Lookup(chainID int64) (Network, bool) {
	for _, n := range r.Networks {
		if n.ChainID == chainID {
			return n, true
		}
	}
	return Network{}, false
}

// Find resolves a network by chain id ("8453") or case-insensitive name ("base").
func (r *Registry) Find(ref string) (Network, bool) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return r.Lookup(id)
	}
	for _, n := range r.Networks {
		if strings.EqualFold(n.Name, ref) {
			return n, true
		}
	}
	return Network{}, false
}

// Names lists the network names in chain id order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.Networks))
	for _, n := range r.Networks {
		out = append(out, n.Name)
	}
	return out
}

// NameOf returns the network name or "chain <id>" for unknown chains.
func (r *Registry) NameOf(chainID int64) string {
	if n, ok := r.Lookup(chainID); ok {
		return n.Name
	}
	return fmt.Sprintf("chain %d", chainID)
}

// Contract returns the multisender address; false when missing or a placeholder.
func (n Network) Contract() (common.Address, bool) {
	s := strings.TrimSpace(n.Multisender)
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	a := common.HexToAddress(s)
	return a, a != (common.Address{})
}

// Token finds a token by symbol (case-insensitive) or address.
func (n Network) Token(ref string) (Token, bool) {
	ref = strings.TrimSpace(ref)
	isAddr := common.IsHexAddress(ref)
	for _, t := range n.Tokens {
		if isAddr && common.HexToAddress(ref) == t.Addr() {
			return t, true
		}
		if !isAddr && strings.EqualFold(ref, t.Symbol) {
			return t, true
		}
	}
	return Token{}, false
}

// IsNative reports whether ref selects the native currency rather than a token.
func (n Network) IsNative(ref string) bool {
	ref = strings.TrimSpace(ref)
	if strings.EqualFold(ref, NativeRef) || (n.NativeSymbol != "" && strings.EqualFold(ref, n.NativeSymbol)) {
		return true
	}
	return common.IsHexAddress(ref) && common.HexToAddress(ref) == (common.Address{})
}

// TxURL links a transaction on the block explorer, or returns "" without one.
func (n Network) TxURL(hash common.Hash) string {
	if n.Explorer == "" {
		return ""
	}
	return strings.TrimRight(n.Explorer, "/") + "/tx/" + hash.Hex()
}
