package mempool_test

import (
	"context"
	"encoding/json"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/dusk-network/evm-sequencer/pkg/core/mempool"
	"github.com/dusk-network/evm-sequencer/pkg/core/txenvelope"
)

func signedTx(t *testing.T, nonce uint64) *types.Transaction {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	tx := types.NewTransaction(nonce, crypto.PubkeyToAddress(key.PublicKey), big.NewInt(1), 21000, big.NewInt(1), nil)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(big.NewInt(1)), key)
	require.NoError(t, err)
	return signed
}

// jsonRPCStub answers any request with a fixed JSON-RPC 2.0 result.
func jsonRPCStub(t *testing.T, result string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  result,
		})
	}))
}

func newMempool(t *testing.T, clientURL string) *mempool.Mempool {
	t.Helper()
	m, err := mempool.New(mempool.Config{
		Path:      filepath.Join(t.TempDir(), "db"),
		ClientURL: clientURL,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := mempool.New(mempool.Config{})
	require.Error(t, err)

	_, err = mempool.New(mempool.Config{Path: "x"})
	require.Error(t, err)
}

func TestAddThenTransactionCount(t *testing.T) {
	relay := jsonRPCStub(t, "ok")
	defer relay.Close()

	m := newMempool(t, relay.URL)

	tx := signedTx(t, 0)
	hash, err := txenvelope.ComputeHash(tx)
	require.NoError(t, err)

	require.NoError(t, m.Add(hash, tx))

	n, err := m.TransactionCount()
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestDeleteIsNotAnErrorForMissingKey(t *testing.T) {
	relay := jsonRPCStub(t, "ok")
	defer relay.Close()

	m := newMempool(t, relay.URL)
	require.NoError(t, m.Delete(txenvelope.Hash{}))
}

func TestStoreBatchWritesAllThenRelays(t *testing.T) {
	relay := jsonRPCStub(t, "relayed")
	defer relay.Close()

	m := newMempool(t, relay.URL)

	batch := []*types.Transaction{signedTx(t, 0), signedTx(t, 1), signedTx(t, 2)}

	require.NoError(t, m.StoreBatch(context.Background(), batch, 8545))

	n, err := m.TransactionCount()
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestRelayFailureReturnsRelayError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	closedURL := "http://" + ln.Addr().String()
	require.NoError(t, ln.Close()) // close immediately: nothing is listening

	m := newMempool(t, closedURL)

	err = m.Relay(context.Background(), []*types.Transaction{signedTx(t, 0)}, 8545)
	require.Error(t, err)

	var relayErr *mempool.RelayError
	require.ErrorAs(t, err, &relayErr)
}
