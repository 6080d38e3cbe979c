package feed

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const oracleABIJSON = `[
  {
    "inputs": [],
    "name": "observation",
    "outputs": [{"internalType": "bytes", "name": "", "type": "bytes"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

var (
	oracleABI     abi.ABI
	oracleABIOnce sync.Once
	oracleABIErr  error
)

// OracleABI returns the parsed ABI of an on-chain observation oracle.
func OracleABI() (abi.ABI, error) {
	oracleABIOnce.Do(func() {
		oracleABI, oracleABIErr = abi.JSON(strings.NewReader(oracleABIJSON))
	})
	return oracleABI, oracleABIErr
}

// ContractCaller performs eth_call. *chain.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ChainSource reads observations from an oracle contract's observation().
type ChainSource struct {
	caller   ContractCaller
	contract common.Address
	abi      abi.ABI
}

func NewChainSource(caller ContractCaller, contract common.Address) (*ChainSource, error) {
	parsed, err := OracleABI()
	if err != nil {
		return nil, fmt.Errorf("parse oracle abi: %w", err)
	}
	return &ChainSource{caller: caller, contract: contract, abi: parsed}, nil
}

func (s *ChainSource) Fetch(ctx context.Context) ([]byte, error) {
	data, err := s.abi.Pack("observation")
	if err != nil {
		return nil, fmt.Errorf("pack observation: %w", err)
	}
	msg := ethereum.CallMsg{To: &s.contract, Data: data}
	resp, err := s.caller.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call observation: %w", err)
	}
	values, err := s.abi.Unpack("observation", resp)
	if err != nil {
		return nil, fmt.Errorf("unpack observation: %w", err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected observation outputs: %d", len(values))
	}
	raw, ok := values[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected observation type %T", values[0])
	}
	return raw, nil
}
