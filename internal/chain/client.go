// Package chain wraps the EVM JSON-RPC calls the multisender needs: token reads,
// EIP-1559 fee selection, signing, submission and receipt polling.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// Backend is the subset of *ethclient.Client used here.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

var _ Backend = (*ethclient.Client)(nil)

// Client adds retrying reads and transaction helpers on top of a Backend.
type Client struct {
	b   Backend
	log *zap.Logger

	// Attempts and Delay control read retries. Writes are never retried.
	Attempts uint
	Delay    time.Duration
	// OnRetry is called once per retried read with the RPC method name.
	OnRetry func(method string)
	// FallbackDecimals applies when a token does not answer decimals().
	FallbackDecimals int
}

func NewClient(b Backend, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{b: b, log: log, Attempts: 3, Delay: 200 * time.Millisecond, FallbackDecimals: DefaultDecimals}
}

// Dial connects to an RPC endpoint. HTTP endpoints get keep-alives and a per-request
// timeout; the raw rpc.Client is returned for extension methods and Close.
func Dial(ctx context.Context, url string, timeout time.Duration, log *zap.Logger) (*Client, *rpc.Client, error) {
	var opts []rpc.ClientOption
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		opts = append(opts, rpc.WithHTTPClient(&http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    100,
				IdleConnTimeout: 90 * time.Second,
			},
		}))
	}
	rc, err := rpc.DialOptions(ctx, url, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rpc: %w", err)
	}
	return NewClient(ethclient.NewClient(rc), log), rc, nil
}

func (c *Client) Backend() Backend { return c.b }

// ChainID asks the node for its chain id.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return withRetry(ctx, c, "eth_chainId", func() (*big.Int, error) { return c.b.ChainID(ctx) })
}

// Call performs eth_call against the latest block.
func (c *Client) Call(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	return withRetry(ctx, c, "eth_call", func() ([]byte, error) { return c.b.CallContract(ctx, msg, nil) })
}

func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return withRetry(ctx, c, "eth_estimateGas", func() (uint64, error) { return c.b.EstimateGas(ctx, msg) })
}

func (c *Client) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	return withRetry(ctx, c, "eth_getBalance", func() (*big.Int, error) { return c.b.BalanceAt(ctx, owner, nil) })
}

func (c *Client) head(ctx context.Context) (*types.Header, error) {
	return withRetry(ctx, c, "eth_getBlockByNumber", func() (*types.Header, error) { return c.b.HeaderByNumber(ctx, nil) })
}

func (c *Client) pendingNonce(ctx context.Context, a common.Address) (uint64, error) {
	return withRetry(ctx, c, "eth_getTransactionCount", func() (uint64, error) { return c.b.PendingNonceAt(ctx, a) })
}
