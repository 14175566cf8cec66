package rpc

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/dusk-network/evm-sequencer/pkg/core/sequencer"
)

// Upstream is an alias for the passthrough method set the sequencer
// already defines; the registry delegates to whatever handle
// Sequencer.Provider() returns without needing its own copy.
type Upstream = sequencer.UpstreamHandle

// EthclientUpstream adapts *ethclient.Client (plus its underlying raw
// client, for eth_accounts) to Upstream.
type EthclientUpstream struct {
	*ethclient.Client
	raw *gethrpc.Client
}

// DialUpstream connects to an Ethereum JSON-RPC endpoint (HTTP or
// WebSocket) and returns it wrapped as an Upstream.
func DialUpstream(ctx context.Context, url string) (*EthclientUpstream, error) {
	raw, err := gethrpc.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return &EthclientUpstream{Client: ethclient.NewClient(raw), raw: raw}, nil
}

// Accounts issues eth_accounts directly against the underlying client,
// since ethclient.Client does not expose it.
func (u *EthclientUpstream) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := u.raw.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (u *EthclientUpstream) Close() {
	u.Client.Close()
}
