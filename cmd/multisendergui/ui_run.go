package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/ligun0805/multisender/internal/chain"
	"github.com/ligun0805/multisender/internal/multisend"
)

func (p *page) request() multisend.Request {
	ref, _, _ := p.tokenRef()
	return multisend.Request{
		Token:     ref,
		Text:      p.text.Text,
		ChunkSize: parseChunkSize(p.chunkEntry.Text, p.env.Settings.ChunkSize),
	}
}

func (p *page) setBusy(busy bool) {
	if busy {
		p.execBtn.Disable()
		p.approveBtn.Disable()
		p.netSel.Disable()
		p.stopBtn.Enable()
		return
	}
	p.execBtn.Enable()
	p.netSel.Enable()
	p.stopBtn.Disable()
	p.mu.Lock()
	pending := p.pending != nil
	p.mu.Unlock()
	if pending {
		p.approveBtn.Enable()
	}
}

func (p *page) execute() {
	ctx, ok := p.run.begin(context.Background())
	if !ok {
		return
	}
	req := p.request()
	p.txLink.Hide()
	p.setStatus(multisend.StatusPreparing)
	p.setBusy(true)

	go func() {
		defer func() {
			p.run.end()
			p.setBusy(false)
		}()

		plan, err := p.env.Sender.Prepare(ctx, req)
		if errors.Is(err, multisend.ErrApprovalRequired) {
			p.mu.Lock()
			p.pending = plan
			p.mu.Unlock()
			p.setStatus(multisend.FailureMessage(err) + " Press Approve, then Execute again.")
			p.log.Info("approval required", zap.String("token", plan.Token.Label()), zap.String("total", plan.Batch.Total.String()))
			return
		}
		if err != nil {
			p.setStatus(multisend.FailureMessage(err))
			if !multisend.IsPrecondition(err) {
				p.log.Warn("prepare failed", zap.Error(err))
			}
			return
		}
		p.mu.Lock()
		p.pending = nil
		p.mu.Unlock()

		p.setStatus(plan.Summary())
		appendLogLine(p.a, fmt.Sprintf("%s  token=%s  total=%s", plan.Summary(), plan.Token.Label(), plan.Batch.Total))
		setProgress(0, len(plan.Chunks))
		telAdd(TelemetryItem{Time: now(), Action: "start", Status: plan.Summary()})

		rep, err := p.env.Sender.Run(ctx, plan, func(pr multisend.Progress) { p.onProgress(plan, pr) })
		p.setStatus(rep.Status)
		telAdd(TelemetryItem{Time: now(), Action: "finish", Status: rep.Status, Error: errString(err)})
		appendLogLine(p.a, fmt.Sprintf("Run finished: %s (%d/%d chunks confirmed)", rep.Status, rep.Confirmed(), len(rep.Chunks)))
		if err != nil && !errors.Is(err, context.Canceled) {
			p.log.Warn("batch failed", zap.Int64("run", rep.RunID), zap.String("reason", chain.ShortMessage(err)))
		}
		p.refreshTokens(context.Background())
	}()
}

func (p *page) onProgress(plan *multisend.Plan, pr multisend.Progress) {
	p.setStatus(pr.Status)
	setProgress(pr.Confirmed(), len(pr.Chunks))
	if pr.Current < 0 || pr.Current >= len(pr.Chunks) {
		return
	}
	c := pr.Chunks[pr.Current]
	item := TelemetryItem{Time: now(), Action: "chunk", Chunk: c.Index + 1, Status: string(c.Status), Error: errString(c.Err)}
	if c.TxHash != (common.Hash{}) {
		item.TxHash = c.TxHash.Hex()
		p.showTx(plan, c.TxHash)
	}
	telAdd(item)
	appendLogLine(p.a, fmt.Sprintf("chunk %d/%d  %s  %s", c.Index+1, len(pr.Chunks), c.Status, item.TxHash))
}

func (p *page) approve() {
	p.mu.Lock()
	plan := p.pending
	p.mu.Unlock()
	if plan == nil {
		return
	}
	ctx, ok := p.run.begin(context.Background())
	if !ok {
		return
	}
	p.setBusy(true)

	go func() {
		defer func() {
			p.run.end()
			p.setBusy(false)
		}()
		rc, err := p.env.Sender.Approve(ctx, plan, nil, p.setStatus)
		if err != nil {
			p.setStatus(multisend.FailureMessage(err))
			telAdd(TelemetryItem{Time: now(), Action: "approve", Error: errString(err)})
			p.log.Warn("approve failed", zap.String("reason", chain.ShortMessage(err)))
			return
		}
		p.mu.Lock()
		p.pending = nil
		p.mu.Unlock()
		p.approveBtn.Disable()
		p.showTx(plan, rc.TxHash)
		telAdd(TelemetryItem{Time: now(), Action: "approve", TxHash: rc.TxHash.Hex(), Status: multisend.StatusApproved})
		appendLogLine(p.a, "Approved "+plan.Batch.Total.String()+" for "+plan.Contract.Hex())
	}()
}

func now() string { return time.Now().UTC().Format(time.RFC3339) }

func errString(err error) string {
	if err == nil {
		return ""
	}
	return chain.ShortMessage(err)
}
