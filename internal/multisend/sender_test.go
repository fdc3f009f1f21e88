package multisend

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligun0805/multisender/internal/chain"
	"github.com/ligun0805/multisender/internal/chain/chaintest"
	"github.com/ligun0805/multisender/internal/journal"
	"github.com/ligun0805/multisender/internal/metrics"
	"github.com/ligun0805/multisender/internal/registry"
)

var (
	weth     = common.HexToAddress("0x4200000000000000000000000000000000000006")
	contract = common.HexToAddress("0x1baE4486b6D64A5174D32AFfAC95e5eac4df186C")
	eth      = big.NewInt(1_000_000_000_000_000_000)
)

type memJournal struct {
	mu       sync.Mutex
	runs     []journal.Run
	chunks   []journal.Chunk
	finished map[int64]string
}

func (m *memJournal) StartRun(_ context.Context, r journal.Run) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, r)
	return int64(len(m.runs)), nil
}

func (m *memJournal) RecordChunk(_ context.Context, c journal.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = append(m.chunks, c)
	return nil
}

func (m *memJournal) FinishRun(_ context.Context, id int64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finished == nil {
		m.finished = map[int64]string{}
	}
	m.finished[id] = status
	return nil
}

func (m *memJournal) lastStatus(idx int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := ""
	for _, c := range m.chunks {
		if c.Index == idx {
			s = c.Status
		}
	}
	return s
}

type env struct {
	fake    *chaintest.Fake
	sender  *Sender
	owner   common.Address
	journal *memJournal
	metrics *metrics.Metrics
	reg     *prometheus.Registry
}

func newEnv(t *testing.T, chainID int64, connected bool) *env {
	t.Helper()
	key, owner := chaintest.Key(7)
	fake := chaintest.New(chainID)
	fake.Contract = contract
	fake.AddToken(weth, "WETH", 18)
	fake.SetNative(owner, eth)

	reg, err := registry.Load("")
	require.NoError(t, err)

	var signer *chain.Signer
	if connected {
		signer, err = chain.NewSigner(key)
		require.NoError(t, err)
	}
	client := chain.NewClient(fake, nil)
	client.Delay = time.Millisecond

	preg := prometheus.NewRegistry()
	e := &env{fake: fake, owner: owner, journal: &memJournal{}, metrics: metrics.NewWith(preg, preg), reg: preg}
	e.sender = New(client, signer, reg, Options{
		Fees:           chain.FeePolicy{MinTipGwei: 1, BasefeeMul: 2, GasBufferPct: 20},
		ChunkSize:      120,
		ReceiptPoll:    time.Millisecond,
		ReceiptTimeout: 2 * time.Second,
		Journal:        e.journal,
		Metrics:        e.metrics,
	})
	return e
}

func recipientsText(n int, amount string) string {
	var sb strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&sb, "0x%040x, %s\n", 0x1000+i, amount)
	}
	return sb.String()
}

func TestPrepare_PreconditionOrder(t *testing.T) {
	one := "0x00000000000000000000000000000000000000aa, 1"

	tests := []struct {
		name    string
		chainID int64
		noKey   bool
		fund    *big.Int
		req     Request
		want    string
	}{
		{name: "wallet", chainID: 8453, noKey: true, req: Request{Token: "WETH", Text: one}, want: MsgNoWallet},
		{name: "no token", chainID: 8453, req: Request{Text: one}, want: MsgNoToken},
		{name: "native keyword", chainID: 8453, req: Request{Token: "native", Text: one}, want: MsgNative},
		{name: "native symbol", chainID: 8453, req: Request{Token: "eth", Text: one}, want: MsgNative},
		{name: "zero address", chainID: 8453, req: Request{Token: common.Address{}.Hex(), Text: one}, want: MsgNative},
		{name: "placeholder contract", chainID: 1, req: Request{Token: "USDC", Text: one}, want: "Multisender contract is not deployed on Ethereum."},
		{name: "unknown chain", chainID: 999, req: Request{Token: "WETH", Text: one}, want: "Multisender contract is not deployed on chain 999."},
		{name: "unknown token", chainID: 8453, req: Request{Token: "FOO", Text: one}, want: `Unknown token "FOO" on Base.`},
		{name: "no recipients", chainID: 8453, req: Request{Token: "WETH", Text: "hello\n0x12, 1"}, want: MsgNoRecipients},
		{name: "zero total", chainID: 8453, req: Request{Token: "WETH", Text: "0x00000000000000000000000000000000000000aa, 0"}, want: MsgZeroTotal},
		{name: "balance", chainID: 8453, req: Request{Token: "WETH", Text: one}, want: "Insufficient WETH balance: have 0, need 1."},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t, tc.chainID, !tc.noKey)
			plan, err := e.sender.Prepare(context.Background(), tc.req)
			require.Error(t, err)
			assert.Nil(t, plan)
			assert.True(t, IsPrecondition(err))
			assert.Equal(t, tc.want, FailureMessage(err))
			assert.Zero(t, e.fake.SentCount(), "nothing is written before checks pass")
		})
	}
}

func TestPrepare_ApprovalRequired(t *testing.T) {
	e := newEnv(t, 8453, true)
	e.fake.Fund(weth, e.owner, eth)

	plan, err := e.sender.Prepare(context.Background(), Request{Token: "WETH", Text: recipientsText(3, "0.1")})
	require.ErrorIs(t, err, ErrApprovalRequired)
	require.NotNil(t, plan)
	assert.Equal(t, "Approval required: allowance 0 < total 0.3.", FailureMessage(err))
	assert.True(t, plan.NeedsApproval())

	var steps []string
	rc, err := e.sender.Approve(context.Background(), plan, nil, func(s string) { steps = append(steps, s) })
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, rc.Status)
	assert.Equal(t, []string{StatusConfirmWallet, StatusWaiting, StatusApproved}, steps)
	assert.False(t, plan.NeedsApproval())
	assert.Equal(t, "300000000000000000", e.fake.AllowanceOf(weth, e.owner, contract).String())

	plan, err = e.sender.Prepare(context.Background(), Request{Token: "WETH", Text: recipientsText(3, "0.1")})
	require.NoError(t, err)
	assert.Equal(t, "Sending 3 payments in 1 chunk(s)...", plan.Summary())
}

func TestPrepare_ByAddressAndCountsLines(t *testing.T) {
	e := newEnv(t, 8453, true)
	e.fake.Fund(weth, e.owner, eth)
	e.fake.SetAllowance(weth, e.owner, contract, eth)

	text := recipientsText(2, "1.5") + "bad line\n0x00000000000000000000000000000000000000aa, 1.0000000000000000001\n"
	plan, err := e.sender.Prepare(context.Background(), Request{Token: weth.Hex(), Text: text})
	require.Error(t, err, "3 ETH exceeds the balance")

	e.fake.Fund(weth, e.owner, new(big.Int).Mul(eth, big.NewInt(5)))
	plan, err = e.sender.Prepare(context.Background(), Request{Token: weth.Hex(), Text: text})
	require.ErrorIs(t, err, ErrApprovalRequired)
	assert.Equal(t, "WETH", plan.Token.Symbol)
	assert.Equal(t, 2, plan.Batch.Len())
	assert.Len(t, plan.Batch.Rejected, 2)
	assert.Equal(t, "3000000000000000000", plan.Batch.Total.String())

	expected := `
# HELP multisender_lines_total Recipient lines parsed, by result (accepted or the rejection reason)
# TYPE multisender_lines_total counter
multisender_lines_total{result="accepted"} 4
multisender_lines_total{result="invalid_address"} 2
multisender_lines_total{result="invalid_amount"} 2
`
	require.NoError(t, testutil.GatherAndCompare(e.reg, strings.NewReader(expected), "multisender_lines_total"))
}

func TestRun_SequentialChunks(t *testing.T) {
	e := newEnv(t, 8453, true)
	e.fake.Fund(weth, e.owner, eth)
	e.fake.SetAllowance(weth, e.owner, contract, eth)

	plan, err := e.sender.Prepare(context.Background(), Request{Token: "WETH", Text: recipientsText(250, "0.001")})
	require.NoError(t, err)
	require.Len(t, plan.Chunks, 3)

	var statuses []string
	var maxInFlight int
	rep, err := e.sender.Run(context.Background(), plan, func(p Progress) {
		statuses = append(statuses, p.Status)
		inFlight := 0
		for _, c := range p.Chunks {
			if c.Status == ChunkPending || c.Status == ChunkConfirming {
				inFlight++
			}
		}
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
	})
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, rep.Status)
	assert.Equal(t, 3, rep.Confirmed())
	assert.Equal(t, 1, maxInFlight, "never more than one chunk outstanding")
	assert.Equal(t, 3, e.fake.SentCount())
	assert.Equal(t, []int{120, 120, 10}, []int{rep.Chunks[0].Size, rep.Chunks[1].Size, rep.Chunks[2].Size})

	assert.Equal(t, "Sending 250 payments in 3 chunk(s)...", statuses[0])
	assert.Contains(t, statuses, StatusConfirmWallet)
	assert.Contains(t, statuses, StatusWaiting)
	assert.Contains(t, statuses, "Chunk 2/3 confirmed.")
	assert.Equal(t, StatusSuccess, statuses[len(statuses)-1])

	for i, tx := range e.fake.Sent {
		assert.Equal(t, uint64(i), tx.Nonce())
		assert.Equal(t, contract, *tx.To())
		assert.Equal(t, rep.Chunks[i].TxHash, tx.Hash())
	}

	assert.Equal(t, "750000000000000000", e.fake.BalanceOf(weth, e.owner).String())
	last := common.HexToAddress(fmt.Sprintf("0x%040x", 0x1000+250))
	assert.Equal(t, "1000000000000000", e.fake.BalanceOf(weth, last).String())

	require.Len(t, e.journal.runs, 1)
	assert.Equal(t, 250, e.journal.runs[0].Recipients)
	assert.Equal(t, journal.RunCompleted, e.journal.finished[1])
	assert.Equal(t, "confirmed", e.journal.lastStatus(2))
}

func TestRun_FailedChunkStopsQueue(t *testing.T) {
	e := newEnv(t, 8453, true)
	e.fake.Fund(weth, e.owner, eth)
	e.fake.SetAllowance(weth, e.owner, contract, eth)
	e.fake.RevertOnMine = func(n int) bool { return n == 1 }

	plan, err := e.sender.Prepare(context.Background(), Request{Token: "WETH", Text: recipientsText(250, "0.001")})
	require.NoError(t, err)

	rep, err := e.sender.Run(context.Background(), plan, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, chain.ErrReverted)
	assert.False(t, IsPrecondition(err))

	assert.Equal(t, 2, e.fake.SentCount(), "chunk 3 is never submitted")
	assert.Equal(t, ChunkConfirmed, rep.Chunks[0].Status)
	assert.Equal(t, ChunkFailed, rep.Chunks[1].Status)
	assert.Equal(t, ChunkSkipped, rep.Chunks[2].Status)
	assert.Equal(t, "Chunk 2/3 failed: execution reverted", rep.Status)

	assert.Equal(t, journal.RunFailed, e.journal.finished[1])
	assert.Equal(t, "skipped", e.journal.lastStatus(2))
}

func TestRun_SubmitErrorShortMessage(t *testing.T) {
	e := newEnv(t, 8453, true)
	e.fake.Fund(weth, e.owner, eth)
	e.fake.SetAllowance(weth, e.owner, contract, eth)
	e.fake.SendErr = func(int, *types.Transaction) error {
		return errors.New("insufficient funds for gas * price + value: balance 0")
	}

	plan, err := e.sender.Prepare(context.Background(), Request{Token: "WETH", Text: recipientsText(2, "0.5")})
	require.NoError(t, err)

	rep, err := e.sender.Run(context.Background(), plan, nil)
	require.Error(t, err)
	assert.Equal(t, "insufficient native balance for gas", rep.Status)
	assert.Equal(t, ChunkFailed, rep.Chunks[0].Status)
	assert.Equal(t, common.Hash{}, rep.Chunks[0].TxHash)
}

func TestRun_Cancelled(t *testing.T) {
	e := newEnv(t, 8453, true)
	e.fake.Fund(weth, e.owner, eth)
	e.fake.SetAllowance(weth, e.owner, contract, eth)

	plan, err := e.sender.Prepare(context.Background(), Request{Token: "WETH", Text: recipientsText(5, "0.01"), ChunkSize: 2})
	require.NoError(t, err)
	require.Len(t, plan.Chunks, 3)

	ctx, cancel := context.WithCancel(context.Background())
	rep, err := e.sender.Run(ctx, plan, func(p Progress) {
		if p.Confirmed() == 1 {
			cancel()
		}
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusCancelled, rep.Status)
	assert.Equal(t, 1, rep.Confirmed())
	assert.Equal(t, ChunkSkipped, rep.Chunks[2].Status)
	assert.Equal(t, journal.RunCancelled, e.journal.finished[1])
}

func TestRun_ReceiptTimeoutLeavesChunkUnconfirmed(t *testing.T) {
	e := newEnv(t, 8453, true)
	e.fake.Fund(weth, e.owner, eth)
	e.fake.SetAllowance(weth, e.owner, contract, eth)
	e.fake.ReceiptDelay = 1 << 30
	e.sender.opts.ReceiptTimeout = 20 * time.Millisecond

	plan, err := e.sender.Prepare(context.Background(), Request{Token: "WETH", Text: recipientsText(3, "0.01"), ChunkSize: 2})
	require.NoError(t, err)

	rep, err := e.sender.Run(context.Background(), plan, nil)
	require.ErrorIs(t, err, chain.ErrReceiptTimeout)
	assert.Equal(t, ChunkUnconfirmed, rep.Chunks[0].Status)
	assert.NotEqual(t, common.Hash{}, rep.Chunks[0].TxHash)
	assert.Equal(t, ChunkSkipped, rep.Chunks[1].Status)
	assert.Contains(t, rep.Status, "Chunk 1/2 unconfirmed")
	assert.Contains(t, rep.Status, rep.Chunks[0].TxHash.Hex())
	assert.Equal(t, string(ChunkUnconfirmed), e.journal.lastStatus(0))
	assert.Equal(t, journal.RunFailed, e.journal.finished[1])
}

func TestRun_CancelWhileWaitingLeavesChunkUnconfirmed(t *testing.T) {
	e := newEnv(t, 8453, true)
	e.fake.Fund(weth, e.owner, eth)
	e.fake.SetAllowance(weth, e.owner, contract, eth)
	e.fake.ReceiptDelay = 1 << 30

	plan, err := e.sender.Prepare(context.Background(), Request{Token: "WETH", Text: recipientsText(1, "0.01")})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	rep, err := e.sender.Run(ctx, plan, func(p Progress) {
		if p.Status == StatusWaiting {
			cancel()
		}
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, ChunkUnconfirmed, rep.Chunks[0].Status)
	assert.True(t, strings.HasPrefix(rep.Status, StatusCancelled+" "))
	assert.Contains(t, rep.Status, "broadcast but not confirmed")
	assert.Equal(t, journal.RunCancelled, e.journal.finished[1])
}

func TestRun_NotConnected(t *testing.T) {
	e := newEnv(t, 8453, false)
	_, err := e.sender.Run(context.Background(), &Plan{}, nil)
	assert.Equal(t, MsgNoWallet, FailureMessage(err))
}

func TestFailureMessage(t *testing.T) {
	assert.Equal(t, "", FailureMessage(nil))
	assert.Equal(t, "boom", FailureMessage(errors.New("boom")))
	assert.Equal(t, StatusFailed, FailureMessage(errors.New("")))
	assert.Equal(t, "execution reverted: nope", FailureMessage(fmt.Errorf("estimate gas: %w", errors.New("execution reverted: nope"))))
}

func TestChainID_Mismatch(t *testing.T) {
	e := newEnv(t, 8453, true)
	reg, err := registry.Load("")
	require.NoError(t, err)
	s := New(chain.NewClient(e.fake, nil), nil, reg, Options{ChainID: 1})
	_, err = s.ChainID(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CHAIN_ID is 1")
}

func TestToken_PastedAddress(t *testing.T) {
	e := newEnv(t, 8453, false)
	usdc := common.HexToAddress("0x00000000000000000000000000000000000000c1")
	e.fake.AddToken(usdc, "USDC", 6)

	tc, err := e.sender.Token(context.Background(), " "+usdc.Hex()+" ")
	require.NoError(t, err)
	assert.Equal(t, usdc, tc.Address)
	assert.Equal(t, 6, tc.Decimals)
	assert.Equal(t, "USDC", tc.Symbol)

	tc, err = e.sender.Token(context.Background(), "weth")
	require.NoError(t, err)
	assert.Equal(t, weth, tc.Address)
	assert.Equal(t, 18, tc.Decimals)

	_, err = e.sender.Token(context.Background(), "PEPE")
	require.Error(t, err)
	assert.Equal(t, `Unknown token "PEPE" on Base.`, FailureMessage(err))
}
