// Package multisend validates a batch against the selected token and submits it to the
// multisender contract as a strictly sequential queue of sendTokens transactions.
package multisend

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/ligun0805/multisender/internal/chain"
	"github.com/ligun0805/multisender/internal/journal"
	"github.com/ligun0805/multisender/internal/metrics"
	"github.com/ligun0805/multisender/internal/recipients"
	"github.com/ligun0805/multisender/internal/registry"
)

// Journal receives run history. *journal.Journal implements it.
type Journal interface {
	StartRun(ctx context.Context, r journal.Run) (int64, error)
	RecordChunk(ctx context.Context, c journal.Chunk) error
	FinishRun(ctx context.Context, id int64, status string) error
}

type Options struct {
	ChainID        int64 // expected chain; 0 accepts whatever the node reports
	Fees           chain.FeePolicy
	ChunkSize      int
	ReceiptPoll    time.Duration
	ReceiptTimeout time.Duration

	Memo    *recipients.Memo
	Journal Journal
	Metrics *metrics.Metrics
	Log     *zap.Logger
}

// Sender owns the wallet key and the submission queue.
type Sender struct {
	c      *chain.Client
	signer *chain.Signer
	reg    *registry.Registry
	opts   Options
	log    *zap.Logger

	mu      sync.Mutex
	chainID *big.Int
}

// New builds a Sender. A nil signer means no wallet is connected.
func New(c *chain.Client, signer *chain.Signer, reg *registry.Registry, opts Options) *Sender {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = recipients.DefaultChunkSize
	}
	if opts.ReceiptPoll <= 0 {
		opts.ReceiptPoll = 2 * time.Second
	}
	return &Sender{c: c, signer: signer, reg: reg, opts: opts, log: opts.Log.Named("multisend")}
}

// Connected reports whether a signing key is loaded.
func (s *Sender) Connected() bool { return s.signer != nil }

// Account is the sending wallet, or the zero address when not connected.
func (s *Sender) Account() common.Address {
	if s.signer == nil {
		return common.Address{}
	}
	return s.signer.Address
}

// ChainID asks the node once and caches the answer.
func (s *Sender) ChainID(ctx context.Context) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chainID != nil {
		return s.chainID, nil
	}
	id, err := s.c.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	if s.opts.ChainID != 0 && id.Int64() != s.opts.ChainID {
		return nil, fmt.Errorf("rpc reports chain %s but CHAIN_ID is %d", id, s.opts.ChainID)
	}
	s.chainID = id
	return id, nil
}

// Network returns the registry entry for the connected chain. Unknown chains get a
// bare entry without a contract.
func (s *Sender) Network(ctx context.Context) (registry.Network, error) {
	id, err := s.ChainID(ctx)
	if err != nil {
		return registry.Network{}, err
	}
	if n, ok := s.reg.Lookup(id.Int64()); ok {
		return n, nil
	}
	return registry.Network{ChainID: id.Int64(), Name: s.reg.NameOf(id.Int64())}, nil
}

// Request is what the user filled in.
type Request struct {
	Token     string // symbol, address or "native"; empty when nothing is selected
	Text      string
	ChunkSize int // 0 uses the configured size
}

// Plan is a validated batch ready to send.
type Plan struct {
	ChainID  *big.Int
	Network  registry.Network
	Contract common.Address
	Token    chain.TokenContext
	Batch    recipients.Batch
	Chunks   []recipients.Batch
}

// Summary describes the plan in one line.
func (p *Plan) Summary() string {
	return fmt.Sprintf("Sending %d payments in %d chunk(s)...", p.Batch.Len(), len(p.Chunks))
}

// NeedsApproval reports whether the allowance is below the batch total.
func (p *Plan) NeedsApproval() bool {
	return p.Token.Allowance == nil || p.Token.Allowance.Cmp(p.Batch.Total) < 0
}

func (s *Sender) parse(text string, decimals int) recipients.Batch {
	if s.opts.Memo != nil {
		return s.opts.Memo.Parse(text, decimals)
	}
	return recipients.Parse(text, decimals)
}

// Prepare runs every pre-send check in order and stops at the first failure, which
// is returned as a *PreconditionError. Nothing is written to the chain.
// When only the allowance is short the plan is returned together with an error
// wrapping ErrApprovalRequired, so the caller can approve and then Run it.
func (s *Sender) Prepare(ctx context.Context, req Request) (*Plan, error) {
	if s.signer == nil {
		return nil, &PreconditionError{Message: MsgNoWallet, Err: chain.ErrNoKey}
	}
	ref := strings.TrimSpace(req.Token)
	if ref == "" {
		return nil, precondition(MsgNoToken)
	}

	net, err := s.Network(ctx)
	if err != nil {
		return nil, err
	}
	if net.IsNative(ref) {
		return nil, precondition(MsgNative)
	}
	contract, ok := net.Contract()
	if !ok {
		return nil, precondition("Multisender contract is not deployed on %s.", net.Name)
	}

	tc, err := s.loadToken(ctx, net, ref, contract)
	if err != nil {
		return nil, err
	}

	batch := s.parse(req.Text, tc.Decimals)
	for range batch.Pairs {
		s.opts.Metrics.RecordLine("accepted")
	}
	for _, rj := range batch.Rejected {
		s.opts.Metrics.RecordLine(recipients.ReasonLabel(rj.Reason))
	}
	if batch.Len() == 0 {
		return nil, precondition(MsgNoRecipients)
	}
	if batch.Total.Sign() == 0 {
		return nil, precondition(MsgZeroTotal)
	}

	size := req.ChunkSize
	if size <= 0 {
		size = s.opts.ChunkSize
	}
	plan := &Plan{
		ChainID:  big.NewInt(net.ChainID),
		Network:  net,
		Contract: contract,
		Token:    tc,
		Batch:    batch,
		Chunks:   batch.Chunks(size),
	}

	if tc.Balance.Cmp(batch.Total) < 0 {
		return nil, precondition("Insufficient %s balance: have %s, need %s.", tc.Label(),
			recipients.FormatAmount(tc.Balance, tc.Decimals), recipients.FormatAmount(batch.Total, tc.Decimals))
	}
	if plan.NeedsApproval() {
		return plan, &PreconditionError{
			Message: fmt.Sprintf("Approval required: allowance %s < total %s.",
				recipients.FormatAmount(tc.Allowance, tc.Decimals), recipients.FormatAmount(batch.Total, tc.Decimals)),
			Err: ErrApprovalRequired,
		}
	}

	s.log.Info("batch prepared",
		zap.Int64("chainId", net.ChainID),
		zap.String("token", tc.Label()),
		zap.Int("recipients", batch.Len()),
		zap.Int("rejected", len(batch.Rejected)),
		zap.String("total", batch.Total.String()),
		zap.Int("chunks", len(plan.Chunks)),
	)
	return plan, nil
}

// Token loads symbol, decimals, balance and allowance for a symbol or address on the
// connected network without checking a batch. Front ends use it to preview amounts
// of a pasted token at its real precision.
func (s *Sender) Token(ctx context.Context, ref string) (chain.TokenContext, error) {
	net, err := s.Network(ctx)
	if err != nil {
		return chain.TokenContext{}, err
	}
	contract, _ := net.Contract()
	return s.loadToken(ctx, net, strings.TrimSpace(ref), contract)
}

func (s *Sender) loadToken(ctx context.Context, net registry.Network, ref string, spender common.Address) (chain.TokenContext, error) {
	var token common.Address
	if t, ok := net.Token(ref); ok {
		token = t.Addr()
	} else if recipients.IsAddress(ref) {
		token = common.HexToAddress(ref)
	} else {
		return chain.TokenContext{}, precondition("Unknown token %q on %s.", ref, net.Name)
	}

	tc, err := s.c.LoadTokenContext(ctx, token, s.Account(), spender)
	if err != nil {
		return tc, fmt.Errorf("load token %s: %w", chain.Shorten(token), err)
	}
	if tc.Symbol == "" {
		if t, ok := net.Token(token.Hex()); ok {
			tc.Symbol = t.Symbol
		}
	}
	return tc, nil
}

// Approve submits approve(contract, amount) for the plan's token and waits for it.
// A nil amount approves exactly the batch total.
func (s *Sender) Approve(ctx context.Context, plan *Plan, amount *big.Int, onProgress func(string)) (*types.Receipt, error) {
	if s.signer == nil {
		return nil, &PreconditionError{Message: MsgNoWallet, Err: chain.ErrNoKey}
	}
	if amount == nil {
		amount = plan.Batch.Total
	}
	notify := func(msg string) {
		if onProgress != nil {
			onProgress(msg)
		}
	}
	data, err := chain.PackApprove(plan.Contract, amount)
	if err != nil {
		return nil, err
	}
	notify(StatusConfirmWallet)
	tx, err := s.c.Send(ctx, s.signer, plan.ChainID, plan.Token.Address, data, s.opts.Fees)
	if err != nil {
		return nil, fmt.Errorf("approve: %w", err)
	}
	s.log.Info("approve submitted", zap.Stringer("tx", tx.Hash()), zap.String("amount", amount.String()))
	notify(StatusWaiting)
	rc, err := s.c.WaitMined(ctx, tx.Hash(), s.opts.ReceiptPoll, s.opts.ReceiptTimeout)
	if err != nil {
		return rc, fmt.Errorf("approve %s: %w", tx.Hash().Hex(), err)
	}
	plan.Token.Allowance = new(big.Int).Set(amount)
	notify(StatusApproved)
	return rc, nil
}

// ChunkResult is the outcome of one chunk.
type ChunkResult struct {
	Index   int
	Size    int
	Total   *big.Int
	TxHash  common.Hash
	Status  ChunkStatus
	GasUsed uint64
	Block   uint64
	Err     error
}

// Progress is reported after every status transition.
type Progress struct {
	Status  string
	Current int // index of the chunk being worked on
	Chunks  []ChunkResult
}

// Confirmed counts the confirmed chunks.
func (p Progress) Confirmed() int {
	n := 0
	for _, c := range p.Chunks {
		if c.Status == ChunkConfirmed {
			n++
		}
	}
	return n
}

// Report is the final state of a run.
type Report struct {
	RunID  int64
	Status string
	Chunks []ChunkResult
}

func (r Report) Confirmed() int { return Progress{Chunks: r.Chunks}.Confirmed() }

// Run submits the chunks one at a time: chunk i+1 starts only after chunk i is confirmed.
// The first failure stops the queue and the remaining chunks are reported as skipped.
// Writes are never retried.
func (s *Sender) Run(ctx context.Context, plan *Plan, onProgress func(Progress)) (Report, error) {
	if s.signer == nil {
		return Report{Status: MsgNoWallet}, &PreconditionError{Message: MsgNoWallet, Err: chain.ErrNoKey}
	}
	r := &run{s: s, plan: plan, onProgress: onProgress}
	r.results = make([]ChunkResult, len(plan.Chunks))
	for i, ch := range plan.Chunks {
		r.results[i] = ChunkResult{Index: i, Size: ch.Len(), Total: ch.Total, Status: ChunkQueued}
	}
	r.start(ctx)
	r.emit(-1, plan.Summary())

	var runErr error
	for i := range plan.Chunks {
		if err := ctx.Err(); err != nil {
			runErr = err
			r.skipFrom(ctx, i)
			r.emit(i, StatusCancelled)
			break
		}
		if err := r.sendChunk(ctx, i); err != nil {
			runErr = err
			r.skipFrom(ctx, i+1)
			if errors.Is(err, context.Canceled) {
				r.emit(i, r.cancelStatus())
			} else {
				r.emit(i, r.failureStatus(i))
			}
			break
		}
	}

	rep := Report{RunID: r.runID, Chunks: r.snapshot()}
	switch {
	case runErr == nil:
		rep.Status = StatusSuccess
		r.emit(len(plan.Chunks)-1, StatusSuccess)
		r.finish(journal.RunCompleted)
	case errors.Is(runErr, context.Canceled):
		rep.Status = r.cancelStatus()
		r.finish(journal.RunCancelled)
	default:
		rep.Status = r.failureStatus(r.failedIndex())
		r.finish(journal.RunFailed)
	}
	return rep, runErr
}

type run struct {
	s          *Sender
	plan       *Plan
	onProgress func(Progress)
	results    []ChunkResult
	runID      int64
}

func (r *run) sendChunk(ctx context.Context, i int) error {
	s, plan := r.s, r.plan
	ch := plan.Chunks[i]
	began := time.Now()
	log := s.log.With(zap.Int("chunk", i+1), zap.Int("of", len(plan.Chunks)), zap.Int("size", ch.Len()))

	r.results[i].Status = ChunkPending
	r.emit(i, StatusConfirmWallet)

	data, err := chain.PackSendTokens(plan.Token.Address, ch.Recipients(), ch.Amounts())
	if err != nil {
		return r.fail(ctx, i, began, err)
	}
	tx, err := s.c.Send(ctx, s.signer, plan.ChainID, plan.Contract, data, s.opts.Fees)
	if err != nil {
		log.Warn("chunk not submitted", zap.Error(err))
		return r.fail(ctx, i, began, err)
	}
	r.results[i].TxHash = tx.Hash()
	r.results[i].Status = ChunkConfirming
	r.record(ctx, i)
	log.Info("chunk submitted", zap.Stringer("tx", tx.Hash()))
	r.emit(i, StatusWaiting)

	rc, err := s.c.WaitMined(ctx, tx.Hash(), s.opts.ReceiptPoll, s.opts.ReceiptTimeout)
	if rc != nil {
		r.results[i].GasUsed = rc.GasUsed
		if rc.BlockNumber != nil {
			r.results[i].Block = rc.BlockNumber.Uint64()
		}
	}
	if err != nil && rc == nil && waitInterrupted(err) {
		log.Warn("chunk unconfirmed", zap.Stringer("tx", tx.Hash()), zap.Error(err))
		return r.settle(ctx, i, began, ChunkUnconfirmed, err)
	}
	if err != nil {
		log.Warn("chunk failed", zap.Stringer("tx", tx.Hash()), zap.Error(err))
		return r.fail(ctx, i, began, err)
	}

	if ev, ok := chain.ParseTokensSent(plan.Contract, rc.Logs); ok {
		if ev.TotalAmount.Cmp(ch.Total) != 0 || ev.RecipientCount.Int64() != int64(ch.Len()) {
			log.Warn("TokensSent event does not match chunk",
				zap.String("eventTotal", ev.TotalAmount.String()), zap.String("chunkTotal", ch.Total.String()))
		}
	}
	r.results[i].Status = ChunkConfirmed
	r.record(ctx, i)
	s.opts.Metrics.RecordChunk(string(ChunkConfirmed), time.Since(began))
	s.opts.Metrics.RecordRecipientsPaid(plan.Token.Label(), ch.Len())
	log.Info("chunk confirmed", zap.Stringer("tx", tx.Hash()), zap.Uint64("gasUsed", rc.GasUsed), zap.Uint64("block", r.results[i].Block))
	if i < len(plan.Chunks)-1 {
		r.emit(i, fmt.Sprintf("Chunk %d/%d confirmed.", i+1, len(plan.Chunks)))
	}
	return nil
}

func (r *run) fail(ctx context.Context, i int, began time.Time, err error) error {
	return r.settle(ctx, i, began, ChunkFailed, err)
}

func (r *run) settle(ctx context.Context, i int, began time.Time, status ChunkStatus, err error) error {
	r.results[i].Status = status
	r.results[i].Err = err
	r.record(ctx, i)
	r.s.opts.Metrics.RecordChunk(string(status), time.Since(began))
	return fmt.Errorf("chunk %d/%d: %w", i+1, len(r.plan.Chunks), err)
}

// waitInterrupted reports whether a receipt wait stopped before the chain answered.
func waitInterrupted(err error) bool {
	return errors.Is(err, chain.ErrReceiptTimeout) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (r *run) skipFrom(ctx context.Context, from int) {
	for j := from; j < len(r.results); j++ {
		if r.results[j].Status.Terminal() {
			continue
		}
		r.results[j].Status = ChunkSkipped
		r.record(ctx, j)
		r.s.opts.Metrics.RecordChunk(string(ChunkSkipped), 0)
	}
}

func (r *run) failedIndex() int {
	for i, c := range r.results {
		if c.Status == ChunkFailed || c.Status == ChunkUnconfirmed {
			return i
		}
	}
	return 0
}

func (r *run) failureStatus(i int) string {
	res := r.results[i]
	if res.Status == ChunkUnconfirmed {
		msg := fmt.Sprintf(MsgUnconfirmed, res.TxHash.Hex())
		if len(r.plan.Chunks) > 1 {
			return fmt.Sprintf("Chunk %d/%d unconfirmed: %s", i+1, len(r.plan.Chunks), msg)
		}
		return msg
	}
	msg := FailureMessage(res.Err)
	if msg == "" {
		msg = StatusFailed
	}
	if len(r.plan.Chunks) > 1 {
		return fmt.Sprintf("Chunk %d/%d failed: %s", i+1, len(r.plan.Chunks), msg)
	}
	return msg
}

// cancelStatus warns about a chunk left in flight by the cancellation.
func (r *run) cancelStatus() string {
	if len(r.results) == 0 {
		return StatusCancelled
	}
	i := r.failedIndex()
	if r.results[i].Status == ChunkUnconfirmed {
		return StatusCancelled + " " + r.failureStatus(i)
	}
	return StatusCancelled
}

func (r *run) snapshot() []ChunkResult {
	out := make([]ChunkResult, len(r.results))
	copy(out, r.results)
	return out
}

func (r *run) emit(i int, status string) {
	if r.onProgress == nil {
		return
	}
	r.onProgress(Progress{Status: status, Current: i, Chunks: r.snapshot()})
}

// Journal writes are best effort and use a context that survives cancellation.
func (r *run) start(ctx context.Context) {
	j := r.s.opts.Journal
	if j == nil {
		return
	}
	id, err := j.StartRun(context.WithoutCancel(ctx), journal.Run{
		ChainID:    r.plan.ChainID.Int64(),
		Token:      r.plan.Token.Address.Hex(),
		Symbol:     r.plan.Token.Symbol,
		Sender:     r.s.signer.Address.Hex(),
		Contract:   r.plan.Contract.Hex(),
		Recipients: r.plan.Batch.Len(),
		Total:      r.plan.Batch.Total.String(),
		Chunks:     len(r.plan.Chunks),
	})
	if err != nil {
		r.s.log.Warn("journal: start run", zap.Error(err))
		return
	}
	r.runID = id
}

func (r *run) record(ctx context.Context, i int) {
	j := r.s.opts.Journal
	if j == nil || r.runID == 0 {
		return
	}
	c := r.results[i]
	jc := journal.Chunk{
		RunID: r.runID, Index: c.Index, Size: c.Size, Total: c.Total.String(),
		Status: string(c.Status), GasUsed: c.GasUsed, Block: c.Block,
	}
	if c.TxHash != (common.Hash{}) {
		jc.TxHash = c.TxHash.Hex()
	}
	if c.Err != nil {
		jc.Error = FailureMessage(c.Err)
	}
	if err := j.RecordChunk(context.WithoutCancel(ctx), jc); err != nil {
		r.s.log.Warn("journal: record chunk", zap.Int("chunk", i), zap.Error(err))
	}
}

func (r *run) finish(status string) {
	j := r.s.opts.Journal
	if j == nil || r.runID == 0 {
		return
	}
	if err := j.FinishRun(context.Background(), r.runID, status); err != nil {
		r.s.log.Warn("journal: finish run", zap.Error(err))
	}
}
