// Package chaintest provides an in-memory chain.Backend that understands the
// ERC-20 and multisender calls used by this module.
package chaintest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/ligun0805/multisender/internal/chain"
)

// Token is a fake ERC-20.
type Token struct {
	Symbol     string
	Decimals   uint8
	NoMetadata bool // decimals() and symbol() revert

	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
}

// Fake implements chain.Backend. Zero values of the hook fields mean "behave normally".
type Fake struct {
	mu sync.Mutex

	ChainIDValue *big.Int
	BaseFee      *big.Int
	TipCap       *big.Int
	GasEstimate  uint64
	Contract     common.Address // multisender

	// CallFailures makes the next N CallContract calls fail with CallErr.
	CallFailures int
	CallErr      error
	// SendErr can reject the n-th (0-based) SendTransaction.
	SendErr func(n int, tx *types.Transaction) error
	// RevertOnMine marks the n-th sent transaction as failed in its receipt.
	RevertOnMine func(n int) bool
	// ReceiptDelay is the number of NotFound answers before a receipt appears.
	ReceiptDelay int

	Calls int
	Sent  []*types.Transaction

	native   map[common.Address]*big.Int
	tokens   map[common.Address]*Token
	nonces   map[common.Address]uint64
	receipts map[common.Hash]*types.Receipt
	polls    map[common.Hash]int
}

var _ chain.Backend = (*Fake)(nil)

func New(chainID int64) *Fake {
	return &Fake{
		ChainIDValue: big.NewInt(chainID),
		BaseFee:      big.NewInt(1_000_000_000),
		TipCap:       big.NewInt(1_000_000_000),
		GasEstimate:  100_000,
		native:       map[common.Address]*big.Int{},
		tokens:       map[common.Address]*Token{},
		nonces:       map[common.Address]uint64{},
		receipts:     map[common.Hash]*types.Receipt{},
		polls:        map[common.Hash]int{},
	}
}

// AddToken registers a token contract.
func (f *Fake) AddToken(addr common.Address, symbol string, decimals uint8) *Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &Token{
		Symbol:     symbol,
		Decimals:   decimals,
		balances:   map[common.Address]*big.Int{},
		allowances: map[common.Address]map[common.Address]*big.Int{},
	}
	f.tokens[addr] = t
	return t
}

func (f *Fake) Fund(token, owner common.Address, amount *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[token].balances[owner] = new(big.Int).Set(amount)
}

func (f *Fake) SetNative(owner common.Address, amount *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.native[owner] = new(big.Int).Set(amount)
}

func (f *Fake) SetAllowance(token, owner, spender common.Address, amount *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[token].setAllowance(owner, spender, amount)
}

func (f *Fake) BalanceOf(token, owner common.Address) *big.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokens[token].balance(owner)
}

func (f *Fake) AllowanceOf(token, owner, spender common.Address) *big.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokens[token].allowance(owner, spender)
}

// SentCount is safe to call while a sender is running.
func (f *Fake) SentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Sent)
}

func (t *Token) balance(a common.Address) *big.Int {
	if b, ok := t.balances[a]; ok {
		return new(big.Int).Set(b)
	}
	return big.NewInt(0)
}

func (t *Token) allowance(owner, spender common.Address) *big.Int {
	if m, ok := t.allowances[owner]; ok {
		if v, ok := m[spender]; ok {
			return new(big.Int).Set(v)
		}
	}
	return big.NewInt(0)
}

func (t *Token) setAllowance(owner, spender common.Address, v *big.Int) {
	if t.allowances[owner] == nil {
		t.allowances[owner] = map[common.Address]*big.Int{}
	}
	t.allowances[owner][spender] = new(big.Int).Set(v)
}

func (f *Fake) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.ChainIDValue), nil
}

func (f *Fake) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var bf *big.Int
	if f.BaseFee != nil {
		bf = new(big.Int).Set(f.BaseFee)
	}
	return &types.Header{Number: big.NewInt(int64(100 + len(f.Sent))), BaseFee: bf}, nil
}

func (f *Fake) SuggestGasTipCap(context.Context) (*big.Int, error) {
	if f.TipCap == nil {
		return nil, errors.New("method not found")
	}
	return new(big.Int).Set(f.TipCap), nil
}

func (f *Fake) PendingNonceAt(_ context.Context, a common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonces[a], nil
}

func (f *Fake) BalanceAt(_ context.Context, a common.Address, _ *big.Int) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.native[a]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (f *Fake) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	if f.CallFailures > 0 {
		f.CallFailures--
		if f.CallErr != nil {
			return nil, f.CallErr
		}
		return nil, errors.New("429 Too Many Requests")
	}
	if msg.To == nil {
		return nil, errors.New("missing to")
	}
	t, ok := f.tokens[*msg.To]
	if !ok {
		return nil, nil // no code at address: empty return
	}
	if len(msg.Data) < 4 {
		return nil, errors.New("execution reverted")
	}
	m, err := chain.ERC20ABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, errors.New("execution reverted")
	}
	args, err := m.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, fmt.Errorf("execution reverted: %v", err)
	}
	switch m.Name {
	case "decimals":
		if t.NoMetadata {
			return nil, errors.New("execution reverted")
		}
		return m.Outputs.Pack(t.Decimals)
	case "symbol":
		if t.NoMetadata {
			return nil, errors.New("execution reverted")
		}
		return m.Outputs.Pack(t.Symbol)
	case "balanceOf":
		return m.Outputs.Pack(t.balance(args[0].(common.Address)))
	case "allowance":
		return m.Outputs.Pack(t.allowance(args[0].(common.Address), args[1].(common.Address)))
	}
	return nil, errors.New("execution reverted")
}

func (f *Fake) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg.To == nil {
		return 0, errors.New("contract creation not supported")
	}
	if _, err := f.simulate(msg.From, *msg.To, msg.Data, false); err != nil {
		return 0, err
	}
	return f.GasEstimate, nil
}

func (f *Fake) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.Sent)
	if f.SendErr != nil {
		if err := f.SendErr(n, tx); err != nil {
			return err
		}
	}
	from, err := types.Sender(types.LatestSignerForChainID(f.ChainIDValue), tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if tx.Nonce() != f.nonces[from] {
		return fmt.Errorf("nonce too low: have %d want %d", tx.Nonce(), f.nonces[from])
	}
	f.nonces[from]++
	f.Sent = append(f.Sent, tx)

	rc := &types.Receipt{
		Type:        tx.Type(),
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      tx.Hash(),
		GasUsed:     tx.Gas() / 2,
		BlockNumber: big.NewInt(int64(100 + n)),
	}
	if f.RevertOnMine != nil && f.RevertOnMine(n) {
		rc.Status = types.ReceiptStatusFailed
	} else if logs, err := f.simulate(from, *tx.To(), tx.Data(), true); err != nil {
		rc.Status = types.ReceiptStatusFailed
	} else {
		for _, l := range logs {
			l.TxHash = tx.Hash()
		}
		rc.Logs = logs
	}
	f.receipts[tx.Hash()] = rc
	return nil
}

func (f *Fake) TransactionReceipt(_ context.Context, h common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rc, ok := f.receipts[h]
	if !ok {
		return nil, ethereum.NotFound
	}
	if f.polls[h] < f.ReceiptDelay {
		f.polls[h]++
		return nil, ethereum.NotFound
	}
	return rc, nil
}

// simulate executes approve and sendTokens; apply commits the state change.
func (f *Fake) simulate(from, to common.Address, data []byte, apply bool) ([]*types.Log, error) {
	if len(data) < 4 {
		return nil, nil
	}
	if t, ok := f.tokens[to]; ok {
		m, err := chain.ERC20ABI.MethodById(data[:4])
		if err != nil || m.Name != "approve" {
			return nil, errors.New("execution reverted")
		}
		args, err := m.Inputs.Unpack(data[4:])
		if err != nil {
			return nil, fmt.Errorf("execution reverted: %v", err)
		}
		if apply {
			t.setAllowance(from, args[0].(common.Address), args[1].(*big.Int))
		}
		return nil, nil
	}
	if to != f.Contract {
		return nil, nil
	}
	m, err := chain.MultisenderABI.MethodById(data[:4])
	if err != nil || m.Name != "sendTokens" {
		return nil, errors.New("execution reverted")
	}
	args, err := m.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, fmt.Errorf("execution reverted: %v", err)
	}
	tokenAddr := args[0].(common.Address)
	recipients := args[1].([]common.Address)
	amounts := args[2].([]*big.Int)
	t, ok := f.tokens[tokenAddr]
	if !ok {
		return nil, errors.New("execution reverted: unknown token")
	}
	if len(recipients) != len(amounts) {
		return nil, errors.New("execution reverted: length mismatch")
	}
	total := new(big.Int)
	for _, a := range amounts {
		total.Add(total, a)
	}
	if t.allowance(from, to).Cmp(total) < 0 {
		return nil, errors.New("execution reverted: ERC20: insufficient allowance")
	}
	if t.balance(from).Cmp(total) < 0 {
		return nil, errors.New("execution reverted: ERC20: transfer amount exceeds balance")
	}
	if !apply {
		return nil, nil
	}
	t.setAllowance(from, to, new(big.Int).Sub(t.allowance(from, to), total))
	t.balances[from] = new(big.Int).Sub(t.balance(from), total)
	for i, r := range recipients {
		t.balances[r] = new(big.Int).Add(t.balance(r), amounts[i])
	}
	ev := chain.MultisenderABI.Events["TokensSent"]
	payload, err := ev.Inputs.NonIndexed().Pack(total, big.NewInt(int64(len(recipients))))
	if err != nil {
		return nil, err
	}
	return []*types.Log{{
		Address: to,
		Topics: []common.Hash{
			ev.ID,
			common.BytesToHash(tokenAddr.Bytes()),
			common.BytesToHash(from.Bytes()),
		},
		Data: payload,
	}}, nil
}

// Key returns a deterministic test key and its address.
func Key(seed byte) (string, common.Address) {
	b := bytes.Repeat([]byte{seed}, 32)
	prv, err := gethcrypto.ToECDSA(b)
	if err != nil {
		panic(err)
	}
	return common.Bytes2Hex(b), gethcrypto.PubkeyToAddress(prv.PublicKey)
}
