package rpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/dusk-network/evm-sequencer/pkg/core/sequencer"
	"github.com/dusk-network/evm-sequencer/pkg/core/txenvelope"
)

// MethodFunc handles one JSON-RPC method's raw params array and
// returns a value to be marshaled as the result, or an *Error.
type MethodFunc func(ctx context.Context, params []json.RawMessage) (interface{}, *Error)

// Registry is a literal, per-method dispatch table. A reflection-based
// dispatcher (as go-ethereum's own rpc package, or gorilla/rpc, build
// theirs) forces a single uniform naming convention onto every
// registered method; this surface mixes namespaced camelCase
// (eth_sendTransaction) with a bare, non-namespaced method
// (get_pending_transactions), so each entry is registered by its
// literal wire name instead.
type Registry struct {
	methods map[string]MethodFunc
}

// NewRegistry builds the method table bound to seq. The registry holds
// seq.Provider()'s handle only for the duration of each upstream call;
// it never keeps the sequencer's exclusive lock across I/O.
func NewRegistry(seq *sequencer.Sequencer) *Registry {
	r := &Registry{methods: make(map[string]MethodFunc)}

	r.methods["eth_sendTransaction"] = r.ethSendTransaction(seq)
	r.methods["eth_sendRawTransaction"] = r.ethSendRawTransaction(seq)
	r.methods["eth_getBalance"] = r.ethGetBalance(seq)
	r.methods["eth_accounts"] = r.ethAccounts(seq)
	r.methods["eth_blockNumber"] = r.ethBlockNumber(seq)
	r.methods["eth_chainId"] = r.ethChainID(seq)
	r.methods["eth_gasPrice"] = r.ethGasPrice(seq)
	r.methods["eth_getCode"] = r.ethGetCode(seq)
	r.methods["eth_getTransactionByHash"] = r.ethGetTransactionByHash(seq)
	r.methods["eth_getTransactionReceipt"] = r.ethGetTransactionReceipt(seq)
	r.methods["eth_maxPriorityFeePerGas"] = r.ethMaxPriorityFeePerGas(seq)
	r.methods["eth_call"] = r.ethCall(seq)
	r.methods["eth_getLogs"] = r.ethGetLogs(seq)
	r.methods["eth_getStorageAt"] = r.ethGetStorageAt(seq)
	r.methods["get_pending_transactions"] = r.getPendingTransactions(seq)

	return r
}

// Lookup returns the handler registered for method, or nil if unknown.
func (r *Registry) Lookup(method string) MethodFunc {
	return r.methods[method]
}

func decodeParam(params []json.RawMessage, index int, v interface{}) *Error {
	if index >= len(params) {
		return arityError(index+1, len(params))
	}
	if err := json.Unmarshal(params[index], v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if _, isString := v.(*string); isString && errors.As(err, &typeErr) {
			return notStringError(index)
		}
		return parseError(err)
	}
	return nil
}

func parseAddress(raw string) (common.Address, *Error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, badHexError(errInvalidAddress(raw))
	}
	return common.HexToAddress(raw), nil
}

func errInvalidAddress(raw string) error {
	return &addrErr{raw: raw}
}

type addrErr struct{ raw string }

func (e *addrErr) Error() string { return "not a valid hex address: " + e.raw }

func parseHash(raw string) (common.Hash, *Error) {
	if !strings.HasPrefix(raw, "0x") || len(raw) != 66 {
		return common.Hash{}, badHashError(&hashErr{raw: raw})
	}
	b, err := hex.DecodeString(raw[2:])
	if err != nil {
		return common.Hash{}, badHashError(err)
	}
	return common.BytesToHash(b), nil
}

type hashErr struct{ raw string }

func (e *hashErr) Error() string { return "not a valid 32-byte hex hash: " + e.raw }

func (r *Registry) ethSendTransaction(seq *sequencer.Sequencer) MethodFunc {
	return func(ctx context.Context, params []json.RawMessage) (interface{}, *Error) {
		var raw json.RawMessage
		if aerr := decodeParam(params, 0, &raw); aerr != nil {
			return nil, aerr
		}

		tx := new(txenvelope.Envelope)
		if err := json.Unmarshal(raw, tx); err != nil {
			return nil, parseError(err)
		}

		hash, err := seq.Submit(ctx, tx)
		if err != nil {
			return nil, submitFailure(err)
		}
		return hash.Hex(), nil
	}
}

func (r *Registry) ethSendRawTransaction(seq *sequencer.Sequencer) MethodFunc {
	return func(ctx context.Context, params []json.RawMessage) (interface{}, *Error) {
		var hexStr string
		if aerr := decodeParam(params, 0, &hexStr); aerr != nil {
			return nil, aerr
		}
		if !strings.HasPrefix(hexStr, "0x") {
			return nil, badHexError(errors.New("missing 0x prefix: " + hexStr))
		}

		decoded, err := hex.DecodeString(hexStr[2:])
		if err != nil {
			return nil, badHexError(err)
		}

		hash, err := seq.SubmitRaw(ctx, decoded)
		if err != nil {
			return nil, submitFailure(err)
		}
		return hash.Hex(), nil
	}
}

func (r *Registry) ethGetBalance(seq *sequencer.Sequencer) MethodFunc {
	return func(ctx context.Context, params []json.RawMessage) (interface{}, *Error) {
		var addrStr string
		if aerr := decodeParam(params, 0, &addrStr); aerr != nil {
			return nil, aerr
		}
		addr, aerr := parseAddress(addrStr)
		if aerr != nil {
			return nil, aerr
		}

		balance, err := seq.Provider().BalanceAt(ctx, addr, nil)
		if err != nil {
			return nil, upstreamError(err)
		}
		return hexutil.EncodeBig(balance), nil
	}
}

func (r *Registry) ethAccounts(seq *sequencer.Sequencer) MethodFunc {
	return func(ctx context.Context, params []json.RawMessage) (interface{}, *Error) {
		accounts, err := seq.Provider().Accounts(ctx)
		if err != nil {
			return nil, upstreamError(err)
		}
		out := make([]string, len(accounts))
		for i, a := range accounts {
			out[i] = a.Hex()
		}
		return out, nil
	}
}

func (r *Registry) ethBlockNumber(seq *sequencer.Sequencer) MethodFunc {
	return func(ctx context.Context, params []json.RawMessage) (interface{}, *Error) {
		n, err := seq.Provider().BlockNumber(ctx)
		if err != nil {
			return nil, upstreamError(err)
		}
		return n, nil
	}
}

func (r *Registry) ethChainID(seq *sequencer.Sequencer) MethodFunc {
	return func(ctx context.Context, params []json.RawMessage) (interface{}, *Error) {
		id, err := seq.Provider().ChainID(ctx)
		if err != nil {
			return nil, upstreamError(err)
		}
		return id, nil
	}
}

func (r *Registry) ethGasPrice(seq *sequencer.Sequencer) MethodFunc {
	return func(ctx context.Context, params []json.RawMessage) (interface{}, *Error) {
		price, err := seq.Provider().SuggestGasPrice(ctx)
		if err != nil {
			return nil, upstreamError(err)
		}
		return hexutil.EncodeBig(price), nil
	}
}

func (r *Registry) ethGetCode(seq *sequencer.Sequencer) MethodFunc {
	return func(ctx context.Context, params []json.RawMessage) (interface{}, *Error) {
		var addrStr string
		if aerr := decodeParam(params, 0, &addrStr); aerr != nil {
			return nil, aerr
		}
		addr, aerr := parseAddress(addrStr)
		if aerr != nil {
			return nil, aerr
		}

		code, err := seq.Provider().CodeAt(ctx, addr, nil)
		if err != nil {
			return nil, upstreamError(err)
		}
		return hexutil.Encode(code), nil
	}
}

func (r *Registry) ethGetTransactionByHash(seq *sequencer.Sequencer) MethodFunc {
	return func(ctx context.Context, params []json.RawMessage) (interface{}, *Error) {
		var hashStr string
		if aerr := decodeParam(params, 0, &hashStr); aerr != nil {
			return nil, aerr
		}
		hash, aerr := parseHash(hashStr)
		if aerr != nil {
			return nil, aerr
		}

		tx, _, err := seq.Provider().TransactionByHash(ctx, hash)
		if err != nil {
			if err == ethereum.NotFound {
				return nil, nil
			}
			return nil, upstreamError(err)
		}
		return tx, nil
	}
}

func (r *Registry) ethGetTransactionReceipt(seq *sequencer.Sequencer) MethodFunc {
	return func(ctx context.Context, params []json.RawMessage) (interface{}, *Error) {
		var hashStr string
		if aerr := decodeParam(params, 0, &hashStr); aerr != nil {
			return nil, aerr
		}
		hash, aerr := parseHash(hashStr)
		if aerr != nil {
			return nil, aerr
		}

		receipt, err := seq.Provider().TransactionReceipt(ctx, hash)
		if err != nil {
			if err == ethereum.NotFound {
				return nil, nil
			}
			return nil, upstreamError(err)
		}
		return receipt, nil
	}
}

func (r *Registry) ethMaxPriorityFeePerGas(seq *sequencer.Sequencer) MethodFunc {
	return func(ctx context.Context, params []json.RawMessage) (interface{}, *Error) {
		tip, err := seq.Provider().SuggestGasTipCap(ctx)
		if err != nil {
			return nil, upstreamError(err)
		}
		return hexutil.EncodeBig(tip), nil
	}
}

// callRequest mirrors the standard eth_call transaction-request object.
type callRequest struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Gas      string `json:"gas"`
	GasPrice string `json:"gasPrice"`
	Value    string `json:"value"`
	Data     string `json:"data"`
}

func (r *Registry) ethCall(seq *sequencer.Sequencer) MethodFunc {
	return func(ctx context.Context, params []json.RawMessage) (interface{}, *Error) {
		var req callRequest
		if aerr := decodeParam(params, 0, &req); aerr != nil {
			return nil, aerr
		}

		msg := ethereum.CallMsg{}
		if req.To != "" {
			addr, aerr := parseAddress(req.To)
			if aerr != nil {
				return nil, aerr
			}
			msg.To = &addr
		}
		if req.From != "" {
			from, aerr := parseAddress(req.From)
			if aerr != nil {
				return nil, aerr
			}
			msg.From = from
		}
		if req.Data != "" {
			data, err := hexutil.Decode(req.Data)
			if err != nil {
				return nil, badHexError(err)
			}
			msg.Data = data
		}
		if req.Value != "" {
			v, err := hexutil.DecodeBig(req.Value)
			if err != nil {
				return nil, badHexError(err)
			}
			msg.Value = v
		}

		out, err := seq.Provider().CallContract(ctx, msg, nil)
		if err != nil {
			return nil, upstreamError(err)
		}
		return hexutil.Encode(out), nil
	}
}

func (r *Registry) ethGetLogs(seq *sequencer.Sequencer) MethodFunc {
	return func(ctx context.Context, params []json.RawMessage) (interface{}, *Error) {
		var filter ethereum.FilterQuery
		if aerr := decodeParam(params, 0, &filter); aerr != nil {
			return nil, aerr
		}

		logs, err := seq.Provider().FilterLogs(ctx, filter)
		if err != nil {
			return nil, upstreamError(err)
		}
		return logs, nil
	}
}

func (r *Registry) ethGetStorageAt(seq *sequencer.Sequencer) MethodFunc {
	return func(ctx context.Context, params []json.RawMessage) (interface{}, *Error) {
		var addrStr, slotStr string
		if aerr := decodeParam(params, 0, &addrStr); aerr != nil {
			return nil, aerr
		}
		if aerr := decodeParam(params, 1, &slotStr); aerr != nil {
			return nil, aerr
		}
		addr, aerr := parseAddress(addrStr)
		if aerr != nil {
			return nil, aerr
		}
		slot, err := hexutil.DecodeBig(slotStr)
		if err != nil {
			return nil, badHexError(err)
		}

		value, err := seq.Provider().StorageAt(ctx, addr, common.BigToHash(slot), nil)
		if err != nil {
			return nil, upstreamError(err)
		}
		return new(big.Int).SetBytes(value), nil
	}
}

func (r *Registry) getPendingTransactions(seq *sequencer.Sequencer) MethodFunc {
	return func(ctx context.Context, params []json.RawMessage) (interface{}, *Error) {
		n, err := seq.PendingCount()
		if err != nil {
			return nil, pendingCountError(err)
		}
		return n, nil
	}
}
