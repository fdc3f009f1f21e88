// Package app wires configuration into the clients, stores and sender shared by the
// CLI and the desktop UI.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/ligun0805/multisender/internal/chain"
	"github.com/ligun0805/multisender/internal/config"
	"github.com/ligun0805/multisender/internal/indexer"
	"github.com/ligun0805/multisender/internal/journal"
	"github.com/ligun0805/multisender/internal/metrics"
	"github.com/ligun0805/multisender/internal/multisend"
	"github.com/ligun0805/multisender/internal/recipients"
	"github.com/ligun0805/multisender/internal/registry"
)

// Env holds everything a front end needs. Fields may be nil when the matching
// setting is empty (Signer, Journal).
type Env struct {
	Settings config.Settings
	Log      *zap.Logger
	Registry *registry.Registry
	Metrics  *metrics.Metrics
	Client   *chain.Client
	Signer   *chain.Signer
	Journal  *journal.Journal
	Sender   *multisend.Sender
	Memo     *recipients.Memo

	rpc      *rpc.Client
	indexRPC *indexer.Alchemy
	meta     *indexer.MetaCache
}

// Open dials the RPC endpoint (lazily for HTTP), loads the registry and opens the
// journal. An empty PRIVATE_KEY leaves the wallet disconnected.
func Open(ctx context.Context, st config.Settings, log *zap.Logger) (*Env, error) {
	if log == nil {
		log = zap.NewNop()
	}
	reg, err := registry.Load(st.NetworksFile)
	if err != nil {
		return nil, err
	}
	log.Info("networks loaded", zap.String("source", reg.Source), zap.String("sha256", reg.SHA256), zap.Int("networks", len(reg.Networks)))
	if st.Network != "" {
		net, err := endpoint(reg, st.Network)
		if err != nil {
			return nil, err
		}
		st.RPCURL, st.ChainID = net.RPCURL, net.ChainID
	}

	e := &Env{
		Settings: st,
		Log:      log,
		Registry: reg,
		Metrics:  metrics.New(),
		Memo:     recipients.NewMemo(32),
		meta:     indexer.NewMetaCache(256),
	}

	if e.Client, e.rpc, err = e.dial(ctx, st.RPCURL); err != nil {
		return nil, err
	}

	if st.PrivateKeyHex != "" {
		if e.Signer, err = chain.NewSigner(st.PrivateKeyHex); err != nil {
			e.Close()
			return nil, err
		}
		log.Info("wallet loaded", zap.String("address", e.Signer.Address.Hex()), zap.String("key", st.MaskedKey()))
	}

	if st.JournalPath != "" {
		if e.Journal, err = journal.Open(st.JournalPath); err != nil {
			e.Close()
			return nil, err
		}
	}

	e.Sender = multisend.New(e.Client, e.Signer, reg, e.senderOptions())
	return e, nil
}

// SwitchNetwork re-dials the rpc_url of a registry network and rebuilds the sender.
// Wallet, journal and metrics carry over. INDEXER_URL serves a single chain, so
// token balances fall back to on-chain reads after a switch.
func (e *Env) SwitchNetwork(ctx context.Context, ref string) (registry.Network, error) {
	net, err := endpoint(e.Registry, ref)
	if err != nil {
		return registry.Network{}, err
	}
	client, rc, err := e.dial(ctx, net.RPCURL)
	if err != nil {
		return registry.Network{}, err
	}
	e.closeRPC()
	e.Client, e.rpc = client, rc
	e.Settings.RPCURL, e.Settings.ChainID, e.Settings.IndexerURL = net.RPCURL, net.ChainID, ""
	e.Sender = multisend.New(client, e.Signer, e.Registry, e.senderOptions())
	e.Log.Info("network switched", zap.String("network", net.Name), zap.Int64("chain_id", net.ChainID))
	return net, nil
}

func (e *Env) dial(ctx context.Context, url string) (*chain.Client, *rpc.Client, error) {
	client, rc, err := chain.Dial(ctx, url, e.Settings.RPCTimeout, e.Log.Named("chain"))
	if err != nil {
		return nil, nil, err
	}
	client.OnRetry = e.Metrics.RecordRPCRetry
	client.FallbackDecimals = e.Settings.DefaultDecimals
	return client, rc, nil
}

func endpoint(reg *registry.Registry, ref string) (registry.Network, error) {
	net, ok := reg.Find(ref)
	if !ok {
		return registry.Network{}, fmt.Errorf("unknown network %q (known: %s)", ref, strings.Join(reg.Names(), ", "))
	}
	if net.RPCURL == "" {
		return registry.Network{}, fmt.Errorf("network %s has no rpc_url", net.Name)
	}
	return net, nil
}

// SetKey connects a wallet after start-up (CLI prompt, GUI key field).
func (e *Env) SetKey(hexKey string) error {
	s, err := chain.NewSigner(hexKey)
	if err != nil {
		return err
	}
	e.Signer = s
	e.Sender = multisend.New(e.Client, s, e.Registry, e.senderOptions())
	e.Log.Info("wallet loaded", zap.String("address", s.Address.Hex()))
	return nil
}

func (e *Env) senderOptions() multisend.Options {
	st := e.Settings
	opts := multisend.Options{
		ChainID: st.ChainID,
		Fees: chain.FeePolicy{
			MinTipGwei:   st.TipGwei,
			BasefeeMul:   st.BasefeeMul,
			GasBufferPct: st.GasBufferPct,
		},
		ChunkSize:      st.ChunkSize,
		ReceiptPoll:    st.ReceiptPoll,
		ReceiptTimeout: st.ReceiptTimeout,
		Memo:           e.Memo,
		Metrics:        e.Metrics,
		Log:            e.Log,
	}
	// a nil *journal.Journal must not become a non-nil interface
	if e.Journal != nil {
		opts.Journal = e.Journal
	}
	return opts
}

// Indexer picks the alchemy endpoint when INDEXER_URL is set, on-chain reads otherwise.
func (e *Env) Indexer(ctx context.Context) (indexer.Indexer, error) {
	net, err := e.Sender.Network(ctx)
	if err != nil {
		return nil, err
	}
	url := strings.TrimSpace(e.Settings.IndexerURL)
	if url == "" {
		return indexer.NewOnChain(e.Client, net, e.meta, e.Log.Named("indexer")), nil
	}
	if e.indexRPC == nil {
		if url == e.Settings.RPCURL {
			e.indexRPC = indexer.NewAlchemy(e.rpc, net.ChainID, e.meta, e.Log.Named("indexer"))
		} else {
			a, err := indexer.DialAlchemy(ctx, url, net.ChainID, e.meta, e.Log.Named("indexer"))
			if err != nil {
				return nil, err
			}
			e.indexRPC = a
		}
	}
	return e.indexRPC, nil
}

// Close releases the journal and RPC connections.
func (e *Env) Close() error {
	var errs []error
	if e.Journal != nil {
		if err := e.Journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close journal: %w", err))
		}
		e.Journal = nil
	}
	e.closeRPC()
	return errors.Join(errs...)
}

func (e *Env) closeRPC() {
	if e.indexRPC != nil && e.Settings.IndexerURL != e.Settings.RPCURL {
		e.indexRPC.Close()
	}
	e.indexRPC = nil
	if e.rpc != nil {
		e.rpc.Close()
		e.rpc = nil
	}
}
