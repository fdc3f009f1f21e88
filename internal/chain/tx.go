package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

var ErrNoKey = errors.New("empty private key")

// Signer holds the local wallet key.
type Signer struct {
	key     *ecdsa.PrivateKey
	Address common.Address
}

// NewSigner parses a hex ECDSA private key (with or without 0x).
func NewSigner(hexKey string) (*Signer, error) {
	h := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if h == "" {
		return nil, ErrNoKey
	}
	prv, err := gethcrypto.HexToECDSA(h)
	if err != nil {
		return nil, fmt.Errorf("bad private key: %w", err)
	}
	return &Signer{key: prv, Address: gethcrypto.PubkeyToAddress(prv.PublicKey)}, nil
}

// Sign signs tx with the latest signer for chainID.
func (s *Signer) Sign(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
}

// BuildDynamicTx builds an unsigned EIP-1559 transaction.
func BuildDynamicTx(chainID *big.Int, nonce uint64, to *common.Address, value *big.Int, gasLimit uint64, tip, feeCap *big.Int, data []byte) *types.Transaction {
	if value == nil {
		value = big.NewInt(0)
	}
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		Gas:       gasLimit,
		GasTipCap: new(big.Int).Set(tip),
		GasFeeCap: new(big.Int).Set(feeCap),
		To:        to,
		Value:     new(big.Int).Set(value),
		Data:      data,
	})
}

// Send estimates, prices, signs and submits a zero-value call to `to`.
// Submission itself is never retried.
func (c *Client) Send(ctx context.Context, s *Signer, chainID *big.Int, to common.Address, data []byte, p FeePolicy) (*types.Transaction, error) {
	nonce, err := c.pendingNonce(ctx, s.Address)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	est, err := c.EstimateGas(ctx, ethereum.CallMsg{From: s.Address, To: &to, Data: data})
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}
	gas := GasWithBuffer(est, p.GasBufferPct)
	fees, err := c.SuggestFees(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("fees: %w", err)
	}
	tx, err := s.Sign(BuildDynamicTx(chainID, nonce, &to, nil, gas, fees.Tip, fees.FeeCap, data), chainID)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	c.log.Info("submitting transaction",
		zap.Stringer("to", to),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas", gas),
		zap.String("tipGwei", FormatGwei(fees.Tip)),
		zap.String("feeCapGwei", FormatGwei(fees.FeeCap)),
	)
	if err := c.b.SendTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}
	return tx, nil
}

// WaitMined polls for the receipt until it appears, ctx ends or timeout elapses.
// A receipt with failed status yields ErrReverted together with the receipt.
func (c *Client) WaitMined(ctx context.Context, hash common.Hash, poll, timeout time.Duration) (*types.Receipt, error) {
	if poll <= 0 {
		poll = 2 * time.Second
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	t := time.NewTicker(poll)
	defer t.Stop()
	for {
		r, err := c.b.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && r != nil:
			if r.Status != types.ReceiptStatusSuccessful {
				return r, ErrReverted
			}
			return r, nil
		case err != nil && !errors.Is(err, ethereum.NotFound) && ctx.Err() == nil:
			c.log.Debug("receipt poll error", zap.Stringer("tx", hash), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrReceiptTimeout
			}
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}
