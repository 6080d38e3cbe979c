// Package chain reads oracle contracts over JSON-RPC.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// ErrChainMismatch is returned by Dial when the endpoint serves another chain.
var ErrChainMismatch = errors.New("chain id mismatch")

// Client is an RPC connection pinned to the chain it reported at dial time.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
	chainID   uint64
}

// Dial connects to rpcURL and reads its chain id. A non-zero wantChainID
// must match what the endpoint reports.
func Dial(ctx context.Context, rpcURL string, wantChainID uint64) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	c := &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
	}

	id, err := c.ethClient.ChainID(ctx)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("read chain id: %w", err)
	}
	if !id.IsUint64() {
		c.Close()
		return nil, fmt.Errorf("chain id %s out of range", id)
	}
	if wantChainID != 0 && id.Uint64() != wantChainID {
		c.Close()
		return nil, fmt.Errorf("rpc serves chain %d, want %d: %w", id.Uint64(), wantChainID, ErrChainMismatch)
	}
	c.chainID = id.Uint64()
	return c, nil
}

// ChainID is the id the endpoint reported when dialed.
func (c *Client) ChainID() uint64 { return c.chainID }

func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// CallContract performs an eth_call; a nil blockNumber reads latest state.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.ethClient.CallContract(ctx, msg, blockNumber)
}
