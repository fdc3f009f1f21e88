package multisend

import (
	"errors"
	"fmt"

	"github.com/ligun0805/multisender/internal/chain"
)

// User-facing status lines.
const (
	StatusIdle          = "Enter recipients and amounts below."
	StatusPreparing     = "Preparing..."
	StatusConfirmWallet = "Check your wallet to confirm the transaction..."
	StatusWaiting       = "Waiting for transaction confirmation..."
	StatusSuccess       = "Transaction successful!"
	StatusApproved      = "Approval confirmed."
	StatusCancelled     = "Cancelled."
	StatusFailed        = "Failed to send batch"
)

// Precondition messages, in the order they are checked.
const (
	MsgNoWallet     = "Please connect your wallet first."
	MsgNoToken      = "Select a token to send."
	MsgNative       = "Native currency batch sending is not supported."
	MsgNoRecipients = "No valid recipients parsed."
	MsgZeroTotal    = "Total amount must be greater than zero."
)

// MsgUnconfirmed takes the transaction hash.
const MsgUnconfirmed = "transaction %s was broadcast but not confirmed; check it on the explorer before sending again."

// ErrApprovalRequired marks a plan whose allowance does not cover the total.
var ErrApprovalRequired = errors.New("approval required")

// PreconditionError is a check that failed before anything was sent.
// Message is ready to show as the status line.
type PreconditionError struct {
	Message string
	Err     error
}

func (e *PreconditionError) Error() string { return e.Message }

func (e *PreconditionError) Unwrap() error { return e.Err }

func precondition(format string, args ...any) *PreconditionError {
	return &PreconditionError{Message: fmt.Sprintf(format, args...)}
}

// IsPrecondition reports whether err came from a failed pre-send check.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}

// FailureMessage renders err as a status line: the precondition text, the node's short
// message (revert reason when present), or the generic fallback.
func FailureMessage(err error) string {
	if err == nil {
		return ""
	}
	var pe *PreconditionError
	if errors.As(err, &pe) {
		return pe.Message
	}
	if msg := chain.ShortMessage(err); msg != "" {
		return msg
	}
	return StatusFailed
}

// ChunkStatus is the lifecycle of one submitted chunk.
type ChunkStatus string

const (
	ChunkQueued     ChunkStatus = "queued"
	ChunkPending    ChunkStatus = "pending"
	ChunkConfirming ChunkStatus = "confirming"
	ChunkConfirmed  ChunkStatus = "confirmed"
	ChunkFailed     ChunkStatus = "failed"
	ChunkSkipped    ChunkStatus = "skipped"

	// ChunkUnconfirmed was broadcast but the wait ended without a receipt; it may still be mined.
	ChunkUnconfirmed ChunkStatus = "unconfirmed"
)

// Terminal reports whether no further transition is possible.
func (s ChunkStatus) Terminal() bool {
	switch s {
	case ChunkConfirmed, ChunkFailed, ChunkSkipped, ChunkUnconfirmed:
		return true
	}
	return false
}
