package chain

import (
	"context"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

var (
	ErrReverted       = errors.New("transaction reverted")
	ErrReceiptTimeout = errors.New("timed out waiting for receipt")
)

// IsRateLimit reports provider throttling (HTTP 429 / JSON-RPC -32005).
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	var rerr rpc.Error
	if errors.As(err, &rerr) && rerr.ErrorCode() == -32005 {
		return true
	}
	var herr rpc.HTTPError
	if errors.As(err, &herr) && herr.StatusCode == 429 {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "Too Many Requests") || strings.Contains(s, "-32005")
}

// IsRevert reports an EVM revert returned by eth_call or eth_estimateGas.
func IsRevert(err error) bool {
	return err != nil && strings.Contains(err.Error(), "execution reverted")
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// RevertReason extracts the Error(string) message of a revert, if any.
func RevertReason(err error) string {
	if err == nil {
		return ""
	}
	var derr rpc.DataError
	if errors.As(err, &derr) {
		if s, ok := derr.ErrorData().(string); ok {
			if b, e := hexutil.Decode(s); e == nil {
				if r, e := abi.UnpackRevert(b); e == nil {
					return r
				}
			}
		}
	}
	s := err.Error()
	if i := strings.Index(s, "execution reverted"); i >= 0 {
		rest := strings.TrimSpace(strings.TrimPrefix(s[i+len("execution reverted"):], ":"))
		return rest
	}
	return ""
}

// ShortMessage returns a concise, user-facing reason for a failed RPC call.
func ShortMessage(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case IsRateLimit(err):
		return "provider throttled the request"
	case IsRevert(err) || errors.Is(err, ErrReverted):
		if r := RevertReason(err); r != "" {
			return "execution reverted: " + r
		}
		return "execution reverted"
	case errors.Is(err, ErrReceiptTimeout):
		return ErrReceiptTimeout.Error()
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "request timed out"
	}
	s := err.Error()
	ls := strings.ToLower(s)
	switch {
	case strings.Contains(ls, "insufficient funds"):
		return "insufficient native balance for gas"
	case strings.Contains(ls, "nonce too low"), strings.Contains(ls, "already known"):
		return "nonce already used; another transaction is pending"
	case strings.Contains(ls, "dial tcp"), strings.Contains(ls, "no such host"):
		return "network/DNS error"
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// Shorten renders an address as 0x1234...abcd.
func Shorten(a common.Address) string {
	h := a.Hex()
	return h[:6] + "..." + h[len(h)-4:]
}
