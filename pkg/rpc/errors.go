// Package rpc implements the JSON-RPC 2.0 method registry and server
// shell: the transport-facing layer that parses requests, delegates to
// the sequencer or the upstream Ethereum provider, and maps failures
// onto the wire error codes below.
package rpc

import (
	"errors"
	"fmt"

	"github.com/dusk-network/evm-sequencer/pkg/core/sequencer"
)

// Error codes per the method registry's error taxonomy. These are
// method-level codes carried in the JSON-RPC error object, distinct
// from the JSON-RPC 2.0 protocol-level codes (-326xx) used for
// malformed envelopes.
const (
	CodeParse     = 1
	CodeUpstream  = 2
	CodeNotString = 3
	CodeBadHex    = 4
	CodeArity     = 5
	CodeBadHash   = 6
)

// Error is the method-level error surfaced to JSON-RPC clients. It
// deliberately mirrors the shape of go-ethereum's rpc.Error interface
// (an ErrorCode method alongside Error) so the server shell can treat
// it identically to errors returned from go-ethereum client code.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string  { return e.Message }
func (e *Error) ErrorCode() int { return e.Code }

func newError(code int, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func parseError(err error) *Error {
	return newError(CodeParse, "parse error: %v", err)
}

func arityError(want, got int) *Error {
	return newError(CodeArity, "wrong number of params: want %d, got %d", want, got)
}

func notStringError(index int) *Error {
	return newError(CodeNotString, "param %d must be a string", index)
}

func badHexError(err error) *Error {
	return newError(CodeBadHex, "bad hex: %v", err)
}

func badHashError(err error) *Error {
	return newError(CodeBadHash, "bad hash: %v", err)
}

func upstreamError(err error) *Error {
	return newError(CodeUpstream, "upstream: %v", err)
}

// submitFailure maps a Sequencer.Submit/SubmitRaw failure to its wire
// code: a ValidationError is a pre-pool parse-equivalent failure
// (code 1, since the method table defines no dedicated code for it),
// everything else — store or relay failure — is code 2 per the
// eth_sendTransaction/eth_sendRawTransaction rows.
func submitFailure(err error) *Error {
	var validationErr *sequencer.ValidationError
	if errors.As(err, &validationErr) {
		return newError(CodeParse, "validation failed: %v", err)
	}
	return newError(CodeUpstream, "submit failed: %v", err)
}

// pendingCountError maps a get_pending_transactions failure to code 1,
// its own row's dedicated code.
func pendingCountError(err error) *Error {
	return newError(1, "pending count failed: %v", err)
}
