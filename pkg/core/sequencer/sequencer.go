// Package sequencer implements the FIFO batching state machine that
// sits between the RPC surface and the mempool. It mirrors the
// teacher's locking discipline in pkg/core/mempool/mempool.go (hold
// one mutex across the full submit path, including outbound calls)
// while replacing the UTXO consensus pipeline with a fixed-size batch
// drain.
package sequencer

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	logger "github.com/sirupsen/logrus"

	pkgerrors "github.com/pkg/errors"

	"github.com/dusk-network/evm-sequencer/pkg/core/mempool"
	"github.com/dusk-network/evm-sequencer/pkg/core/txenvelope"
)

var log = logger.WithFields(logger.Fields{"prefix": "sequencer"})

// UpstreamHandle is the subset of an upstream Ethereum node the
// sequencer exposes, immutably, through Provider() for the registry's
// read-only passthrough methods. It is structurally satisfied by
// *ethclient.Client (via rpc.EthclientUpstream) without either package
// importing the other.
type UpstreamHandle interface {
	Accounts(ctx context.Context) ([]common.Address, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	StorageAt(ctx context.Context, account common.Address, key common.Hash, blockNumber *big.Int) ([]byte, error)
	Close()
}

// BatchError reports a failed drain: StoreBatch could not write every
// member of the batch, or the batch was written but could not be
// relayed. Per the at-least-once relay contract, the members of the
// failed batch are not re-queued onto the pending list — the store
// itself is the recovery point for any out-of-band resend.
type BatchError struct {
	Count int
	Err   error
}

func (e *BatchError) Error() string {
	return pkgerrors.Wrapf(e.Err, "sequencer: batch of %d failed to store or relay", e.Count).Error()
}
func (e *BatchError) Unwrap() error { return e.Err }

// PruneError reports that a relayed batch member could not be removed
// from the store afterward — either its hash could not be recomputed
// or mempool.delete itself failed. Per §4.3 step 2b these failures
// "are propagated", so the batch member is left durably stored with no
// silent success reported to the caller.
type PruneError struct {
	Hash txenvelope.Hash
	Err  error
}

func (e *PruneError) Error() string {
	return pkgerrors.Wrapf(e.Err, "sequencer: prune %s", e.Hash.Hex()).Error()
}
func (e *PruneError) Unwrap() error { return e.Err }

// ConfigError reports a missing required Config field.
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string {
	return "sequencer: missing required config field: " + e.Field
}

// ValidationError reports a transaction that fails pre-pool
// well-formedness checks, before it ever touches the store.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "sequencer: validation: " + e.Reason }

// Config enumerates the fields required to construct a Sequencer.
type Config struct {
	Mempool    *mempool.Mempool
	BatchSize  int
	ServerPort uint16
	Provider   UpstreamHandle
}

// Sequencer accumulates submitted transactions into a FIFO pending
// queue and drains it to the mempool, relaying, exactly when the
// queue reaches BatchSize.
type Sequencer struct {
	mu sync.Mutex

	mempool    *mempool.Mempool
	batchSize  int
	serverPort uint16
	provider   UpstreamHandle

	pending []*txenvelope.Envelope
}

// New constructs a Sequencer. Mempool and a positive BatchSize are
// required.
func New(cfg Config) (*Sequencer, error) {
	if cfg.Mempool == nil {
		return nil, &ConfigError{Field: "mempool"}
	}
	if cfg.BatchSize <= 0 {
		return nil, &ConfigError{Field: "batch_size"}
	}

	return &Sequencer{
		mempool:    cfg.Mempool,
		batchSize:  cfg.BatchSize,
		serverPort: cfg.ServerPort,
		provider:   cfg.Provider,
	}, nil
}

// Provider returns the upstream handle configured for read-only
// passthrough methods. It takes the sequencer's lock only to borrow the
// handle and releases it before returning, so callers perform their
// upstream I/O unlocked.
func (s *Sequencer) Provider() UpstreamHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provider
}

// Submit appends tx to the pending queue; if the queue reaches
// BatchSize, tx's own submission is the one that triggers the drain,
// so it rides along in the batch that gets relayed and pruned. Either
// way tx is then (re-)persisted individually, which is what leaves a
// single durable entry behind immediately after a drain. The
// sequencer's mutex is held for the whole call, including any drain's
// relay round-trip, so that submission order is never interleaved
// with a concurrent drain.
func (s *Sequencer) Submit(ctx context.Context, tx *txenvelope.Envelope) (txenvelope.Hash, error) {
	if err := validate(tx); err != nil {
		return txenvelope.Hash{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	hash, err := txenvelope.ComputeHash(tx)
	if err != nil {
		return txenvelope.Hash{}, err
	}

	s.pending = append(s.pending, tx)

	if len(s.pending) >= s.batchSize {
		if err := s.drainLocked(ctx); err != nil {
			return txenvelope.Hash{}, err
		}
	}

	if err := s.mempool.Add(hash, tx); err != nil {
		return txenvelope.Hash{}, err
	}

	log.WithFields(logger.Fields{"hash": hash.Hex(), "pending": len(s.pending)}).Debug("submitted transaction")

	return hash, nil
}

// SubmitRaw decodes encoded per the §4.3 raw-transaction contract and
// forwards to Submit.
func (s *Sequencer) SubmitRaw(ctx context.Context, encoded []byte) (txenvelope.Hash, error) {
	tx, err := txenvelope.ParseRaw(encoded)
	if err != nil {
		return txenvelope.Hash{}, err
	}
	return s.Submit(ctx, tx)
}

// PendingCount returns the number of transactions currently durable in
// the mempool. Submit persists every still-pending entry eagerly; the
// members of a batch are pruned after a successful relay and remain
// there only when their drain failed.
func (s *Sequencer) PendingCount() (int, error) {
	return s.mempool.TransactionCount()
}

// validate rejects a transaction before it touches any durable state.
// It requires a non-nil recipient (no contract-creation envelopes) and
// that the fee cap is never below the tip cap. go-ethereum's
// GasFeeCap/GasTipCap accessors already fold legacy and access-list
// transactions' single gas price into both fields, so this check
// applies uniformly across envelope types without a separate
// "missing EIP-1559 fields" branch.
func validate(tx *txenvelope.Envelope) error {
	if tx.To() == nil {
		return &ValidationError{Reason: "missing 'to' field"}
	}
	if tx.GasFeeCap().Cmp(tx.GasTipCap()) < 0 {
		return &ValidationError{Reason: "max_fee_per_gas must be >= max_priority_fee_per_gas"}
	}
	return nil
}

// drainLocked relays the current pending queue as a batch and clears
// it. Callers must hold s.mu. On relay failure the batch's members
// stay durable in the mempool — per the at-least-once contract they
// are not re-queued onto s.pending, and a fresh pending queue starts
// accumulating from the next Submit.
func (s *Sequencer) drainLocked(ctx context.Context) error {
	batch := s.pending
	s.pending = nil

	if err := s.mempool.StoreBatch(ctx, batch, s.serverPort); err != nil {
		log.WithError(err).WithField("count", len(batch)).Error("batch drain failed")
		return &BatchError{Count: len(batch), Err: err}
	}

	for _, tx := range batch {
		hash, err := txenvelope.ComputeHash(tx)
		if err != nil {
			log.WithError(err).Error("failed to recompute hash of relayed transaction")
			return &PruneError{Err: err}
		}
		if err := s.mempool.Delete(hash); err != nil {
			log.WithError(err).WithField("hash", hash.Hex()).Error("failed to prune relayed transaction")
			return &PruneError{Hash: hash, Err: err}
		}
	}

	log.WithField("count", len(batch)).Info("drained batch")
	return nil
}
