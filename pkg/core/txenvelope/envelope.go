// Package txenvelope defines the canonical serialization and hashing
// rules for signed Ethereum transactions as they flow through the
// sequencer. The envelope itself is go-ethereum's *types.Transaction,
// which already covers the legacy, EIP-2930, EIP-1559, and EIP-4844
// variants; this package adds the hash/serialize contract the rest of
// the system depends on.
package txenvelope

import (
	"encoding/hex"
	"encoding/json"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// Envelope is the opaque, serializable representation the sequencer
// moves around without interpreting its contents.
type Envelope = types.Transaction

// Hash is the 32-byte TxHash: keccak256 of the canonical serialization.
type Hash [32]byte

// Hex renders h as lowercase hex without a 0x prefix, the form
// returned to submitters and used as the store key.
func (h Hash) Hex() string { return hex.EncodeToString(h[:]) }

// CanonicalSerialize returns the canonical UTF-8 text serialization of
// an envelope: its JSON encoding. Two envelopes that serialize
// identically must produce identical bytes here.
func CanonicalSerialize(tx *Envelope) ([]byte, error) {
	b, err := json.Marshal(tx)
	if err != nil {
		return nil, errors.Wrap(err, "txenvelope: canonical serialize")
	}
	return b, nil
}

// ComputeHash applies keccak256 to tx's canonical serialization.
func ComputeHash(tx *Envelope) (Hash, error) {
	b, err := CanonicalSerialize(tx)
	if err != nil {
		return Hash{}, err
	}
	return Hash(crypto.Keccak256Hash(b)), nil
}

// ParseRaw decodes the raw transaction bytes of eth_sendRawTransaction
// (the RLP or typed-transaction binary encoding, already hex-decoded by
// the caller) into an Envelope. The bytes are first hex-encoded with a
// 0x prefix and then decoded back; that round trip cannot fail, so
// malformed input is reported by the binary decode that follows.
func ParseRaw(encoded []byte) (*Envelope, error) {
	hexStr := "0x" + hex.EncodeToString(encoded)
	decoded, err := hex.DecodeString(hexStr[2:])
	if err != nil {
		return nil, errors.Wrap(err, "txenvelope: parse raw transaction hex")
	}

	tx := new(Envelope)
	if err := tx.UnmarshalBinary(decoded); err != nil {
		return nil, errors.Wrap(err, "txenvelope: decode raw transaction")
	}
	return tx, nil
}
