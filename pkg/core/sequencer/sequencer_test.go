package sequencer_test

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/dusk-network/evm-sequencer/pkg/core/mempool"
	"github.com/dusk-network/evm-sequencer/pkg/core/sequencer"
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

func jsonRPCStub(t *testing.T, result string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID json.RawMessage `json:"id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0", "id": req.ID, "result": result,
		})
	}))
}

func newSequencer(t *testing.T, batchSize int, relayURL string) *sequencer.Sequencer {
	t.Helper()
	m, err := mempool.New(mempool.Config{
		Path:      filepath.Join(t.TempDir(), "db"),
		ClientURL: relayURL,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	s, err := sequencer.New(sequencer.Config{
		Mempool:    m,
		BatchSize:  batchSize,
		ServerPort: 8080,
	})
	require.NoError(t, err)
	return s
}

func TestSubmitReturnsStableHash(t *testing.T) {
	relay := jsonRPCStub(t, "ok")
	defer relay.Close()

	s := newSequencer(t, 10, relay.URL)
	tx := signedTx(t, 0)

	hash, err := s.Submit(context.Background(), tx)
	require.NoError(t, err)

	want, err := txenvelope.ComputeHash(tx)
	require.NoError(t, err)
	require.Equal(t, want, hash)
}

func TestSubmitBelowBatchSizeDoesNotDrain(t *testing.T) {
	relay := jsonRPCStub(t, "ok")
	defer relay.Close()

	s := newSequencer(t, 5, relay.URL)
	for i := uint64(0); i < 3; i++ {
		_, err := s.Submit(context.Background(), signedTx(t, i))
		require.NoError(t, err)
	}

	n, err := s.PendingCount()
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestSubmitAtBatchSizeDrainsAndLeavesOnlyTheTriggeringEntry(t *testing.T) {
	relay := jsonRPCStub(t, "ok")
	defer relay.Close()

	s := newSequencer(t, 2, relay.URL)

	_, err := s.Submit(context.Background(), signedTx(t, 0))
	require.NoError(t, err)

	// the second submission itself fills the queue to BatchSize, so it
	// rides along in the batch that drains, then is re-added individually.
	_, err = s.Submit(context.Background(), signedTx(t, 1))
	require.NoError(t, err)

	n, err := s.PendingCount()
	require.NoError(t, err)
	require.Equal(t, 1, n, "the drain prunes both members; the triggering submission is re-added individually")
}

func TestSubmitRawRejectsMalformedInput(t *testing.T) {
	relay := jsonRPCStub(t, "ok")
	defer relay.Close()

	s := newSequencer(t, 10, relay.URL)
	_, err := s.SubmitRaw(context.Background(), []byte{0xff, 0x00, 0x01})
	require.Error(t, err)
}

func TestSubmitRawRoundTripsTypedTransaction(t *testing.T) {
	relay := jsonRPCStub(t, "ok")
	defer relay.Close()

	s := newSequencer(t, 10, relay.URL)
	tx := signedTx(t, 7)
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)

	hash, err := s.SubmitRaw(context.Background(), raw)
	require.NoError(t, err)

	want, err := txenvelope.ComputeHash(tx)
	require.NoError(t, err)
	require.Equal(t, want, hash)
}

func TestSubmitRejectsContractCreationEnvelope(t *testing.T) {
	relay := jsonRPCStub(t, "ok")
	defer relay.Close()

	s := newSequencer(t, 10, relay.URL)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	creationTx := types.NewContractCreation(0, big.NewInt(0), 100000, big.NewInt(1), []byte{0x60, 0x00})
	signed, err := types.SignTx(creationTx, types.NewEIP155Signer(big.NewInt(1)), key)
	require.NoError(t, err)

	_, err = s.Submit(context.Background(), signed)
	require.Error(t, err)

	var validationErr *sequencer.ValidationError
	require.ErrorAs(t, err, &validationErr)

	n, err := s.PendingCount()
	require.NoError(t, err)
	require.Equal(t, 0, n, "a rejected envelope must not mutate sequencer state")
}

func TestSubmitRejectsFeeCapBelowTipCap(t *testing.T) {
	relay := jsonRPCStub(t, "ok")
	defer relay.Close()

	s := newSequencer(t, 10, relay.URL)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	to := crypto.PubkeyToAddress(key.PublicKey)
	dynamicTx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(1),
		Nonce:     0,
		To:        &to,
		Value:     big.NewInt(1),
		Gas:       21000,
		GasFeeCap: big.NewInt(1),
		GasTipCap: big.NewInt(5),
	})
	signed, err := types.SignTx(dynamicTx, types.NewLondonSigner(big.NewInt(1)), key)
	require.NoError(t, err)

	_, err = s.Submit(context.Background(), signed)
	require.Error(t, err)

	var validationErr *sequencer.ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestNewRequiresMempoolAndPositiveBatchSize(t *testing.T) {
	_, err := sequencer.New(sequencer.Config{})
	require.Error(t, err)

	m, err := mempool.New(mempool.Config{
		Path:      filepath.Join(t.TempDir(), "db"),
		ClientURL: "http://127.0.0.1:1",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	_, err = sequencer.New(sequencer.Config{Mempool: m, BatchSize: 0})
	require.Error(t, err)
}
