package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const multisenderJSON = `[
{"inputs":[{"internalType":"address","name":"tokenAddress","type":"address"},{"internalType":"address[]","name":"recipients","type":"address[]"},{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"name":"sendTokens","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"anonymous":false,"inputs":[{"indexed":true,"internalType":"address","name":"token","type":"address"},{"indexed":true,"internalType":"address","name":"sender","type":"address"},{"indexed":false,"internalType":"uint256","name":"totalAmount","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"recipientCount","type":"uint256"}],"name":"TokensSent","type":"event"}
]`

const erc20JSON = `[
{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"name":"recipient","type":"address"},{"name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
{"anonymous":false,"inputs":[{"indexed":true,"name":"from","type":"address"},{"indexed":true,"name":"to","type":"address"},{"indexed":false,"name":"value","type":"uint256"}],"name":"Transfer","type":"event"}
]`

var (
	MultisenderABI abi.ABI
	ERC20ABI       abi.ABI
)

func init() {
	var err error
	if MultisenderABI, err = abi.JSON(strings.NewReader(multisenderJSON)); err != nil {
		panic(err)
	}
	if ERC20ABI, err = abi.JSON(strings.NewReader(erc20JSON)); err != nil {
		panic(err)
	}
}

// PackSendTokens encodes sendTokens(token, recipients, amounts).
func PackSendTokens(token common.Address, recipients []common.Address, amounts []*big.Int) ([]byte, error) {
	if len(recipients) != len(amounts) {
		return nil, fmt.Errorf("recipients/amounts length mismatch: %d != %d", len(recipients), len(amounts))
	}
	return MultisenderABI.Pack("sendTokens", token, recipients, amounts)
}

// PackApprove encodes approve(spender, amount).
func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return ERC20ABI.Pack("approve", spender, amount)
}

// TokensSent is the decoded multisender event.
type TokensSent struct {
	Token          common.Address
	Sender         common.Address
	TotalAmount    *big.Int
	RecipientCount *big.Int
}

// ParseTokensSent finds the TokensSent event among receipt logs emitted by contract.
func ParseTokensSent(contract common.Address, logs []*types.Log) (*TokensSent, bool) {
	ev := MultisenderABI.Events["TokensSent"]
	for _, l := range logs {
		if l.Address != contract || len(l.Topics) != 3 || l.Topics[0] != ev.ID {
			continue
		}
		vals, err := ev.Inputs.NonIndexed().Unpack(l.Data)
		if err != nil || len(vals) != 2 {
			continue
		}
		total, _ := vals[0].(*big.Int)
		count, _ := vals[1].(*big.Int)
		return &TokensSent{
			Token:          common.BytesToAddress(l.Topics[1].Bytes()),
			Sender:         common.BytesToAddress(l.Topics[2].Bytes()),
			TotalAmount:    total,
			RecipientCount: count,
		}, true
	}
	return nil, false
}
