// Package mempool persists individual and batched transactions and
// relays completed batches to the downstream endpoint. It keeps the
// teacher's logging idiom (pkg/core/mempool/mempool.go's
// logger.WithFields(logger.Fields{"prefix": ...})) but replaces the
// UTXO/Dusk transaction model and event-bus wiring with the flat
// EVM-envelope store-and-relay pipeline this system needs.
package mempool

import (
	"context"

	"github.com/ethereum/go-ethereum/rpc"
	logger "github.com/sirupsen/logrus"

	pkgerrors "github.com/pkg/errors"

	"github.com/dusk-network/evm-sequencer/pkg/core/store"
	"github.com/dusk-network/evm-sequencer/pkg/core/txenvelope"
)

var log = logger.WithFields(logger.Fields{"prefix": "mempool"})

// Config enumerates the fields required to construct a Mempool. Both
// are mandatory; New fails with ConfigError if either is missing. If
// the store cannot be opened, New fails with the wrapped store error,
// which is not a ConfigError.
type Config struct {
	Path      string
	ClientURL string
}

// ConfigError reports a missing required Config field.
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string { return "mempool: missing required config field: " + e.Field }

// RelayError wraps a transport or RPC failure from the downstream
// endpoint. It does not imply the batch's writes were rolled back —
// see §7/§9 of the design: relay failures are logged and returned to
// the caller but at-least-once persistence semantics are preserved.
type RelayError struct {
	Err error
}

func (e *RelayError) Error() string { return "mempool: relay: " + e.Err.Error() }
func (e *RelayError) Unwrap() error { return e.Err }

// Mempool persists transactions to an embedded ordered store and
// relays completed batches downstream over JSON-RPC.
type Mempool struct {
	store     *store.Store
	clientURL string
}

// New constructs a Mempool. Both cfg.Path and cfg.ClientURL are
// required.
func New(cfg Config) (*Mempool, error) {
	if cfg.Path == "" {
		return nil, &ConfigError{Field: "path"}
	}
	if cfg.ClientURL == "" {
		return nil, &ConfigError{Field: "client_url"}
	}

	s, err := store.NewStore(cfg.Path)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "mempool: open store")
	}

	log.WithFields(logger.Fields{"path": cfg.Path, "client_url": cfg.ClientURL}).Info("mempool initialized")

	return &Mempool{store: s, clientURL: cfg.ClientURL}, nil
}

// Close releases the underlying store.
func (m *Mempool) Close() error {
	return m.store.Close()
}

// Add serializes tx to its canonical text form and writes it under
// hash. Idempotent for equal (hash, serialization).
func (m *Mempool) Add(hash txenvelope.Hash, tx *txenvelope.Envelope) error {
	serialized, err := txenvelope.CanonicalSerialize(tx)
	if err != nil {
		return err
	}

	if err := m.store.Put(keyFor(hash), serialized); err != nil {
		return pkgerrors.Wrap(err, "mempool: add")
	}
	return nil
}

// Delete removes the entry for hash. Deleting a non-existent key is
// not an error.
func (m *Mempool) Delete(hash txenvelope.Hash) error {
	if err := m.store.Delete(keyFor(hash)); err != nil {
		return pkgerrors.Wrap(err, "mempool: delete")
	}
	return nil
}

// TransactionCount returns the current number of persisted entries.
func (m *Mempool) TransactionCount() (int, error) {
	n, err := m.store.Count()
	if err != nil {
		return 0, pkgerrors.Wrap(err, "mempool: transaction_count")
	}
	return n, nil
}

// StoreBatch writes every member of batch under its hash (duplicating
// Add's work so StoreBatch is self-contained), logs the batch, then
// relays it downstream. If any individual write fails, the whole call
// fails with a StoreError and no relay attempt is made.
func (m *Mempool) StoreBatch(ctx context.Context, batch []*txenvelope.Envelope, relayPort uint16) error {
	hashes := make([]txenvelope.Hash, len(batch))

	for i, tx := range batch {
		hash, err := txenvelope.ComputeHash(tx)
		if err != nil {
			return err
		}
		hashes[i] = hash

		if err := m.Add(hash, tx); err != nil {
			return err
		}
	}

	m.logBatch(hashes)

	return m.Relay(ctx, batch, relayPort)
}

func (m *Mempool) logBatch(hashes []txenvelope.Hash) {
	hexHashes := make([]string, len(hashes))
	for i, h := range hashes {
		hexHashes[i] = h.Hex()
	}
	log.WithFields(logger.Fields{"count": len(hashes), "hashes": hexHashes}).Info("stored batch")
}

// Relay opens a JSON-RPC HTTP client to clientURL and issues
// twrep_sendTransaction with the ordered batch as a single positional
// parameter. Transport or RPC errors are logged and returned as
// RelayError; the caller is responsible for not undoing prior writes.
func (m *Mempool) Relay(ctx context.Context, batch []*txenvelope.Envelope, relayPort uint16) error {
	client, err := rpc.DialContext(ctx, m.clientURL)
	if err != nil {
		log.WithError(err).WithField("client_url", m.clientURL).Error("relay: dial failed")
		return &RelayError{Err: err}
	}
	defer client.Close()

	var result string
	if err := client.CallContext(ctx, &result, "twrep_sendTransaction", batch); err != nil {
		log.WithError(err).WithField("relay_port", relayPort).Error("relay: twrep_sendTransaction failed")
		return &RelayError{Err: err}
	}

	log.WithFields(logger.Fields{"count": len(batch), "response": result}).Info("relayed batch")
	return nil
}

func keyFor(hash txenvelope.Hash) []byte {
	return []byte(hash.Hex())
}
