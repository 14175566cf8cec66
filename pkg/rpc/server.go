package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	logger "github.com/sirupsen/logrus"
)

var log = logger.WithFields(logger.Fields{"prefix": "rpc"})

// request is a JSON-RPC 2.0 request envelope.
type request struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

// response is a JSON-RPC 2.0 response envelope. Exactly one of Result
// or Error is populated.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *wireError      `json:"error,omitempty"`
}

type wireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ServerHandle is returned by Serve; its lifecycle governs shutdown.
// Stopped completes once the listener has fully shut down.
type ServerHandle struct {
	server  *http.Server
	stopped chan struct{}
}

// Stopped returns a channel that closes when the server has shut down.
func (h *ServerHandle) Stopped() <-chan struct{} {
	return h.stopped
}

// Shutdown gracefully stops the server, waiting for in-flight requests
// to complete or ctx to expire.
func (h *ServerHandle) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

// Serve binds the loopback interface on port, installs registry as the
// sole handler, and returns immediately with a ServerHandle. No
// request-level concurrency limit is imposed; net/http serves each
// connection on its own goroutine.
func Serve(port uint16, registry *Registry) (*ServerHandle, error) {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", handleRequest(registry))

	httpServer := &http.Server{Handler: mux}
	handle := &ServerHandle{server: httpServer, stopped: make(chan struct{})}

	go func() {
		defer close(handle.stopped)
		if err := httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("server stopped unexpectedly")
		}
	}()

	log.WithField("addr", addr).Info("rpc server listening")
	return handle, nil
}

func handleRequest(registry *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, nil, newError(-32700, "parse error: %v", err))
			return
		}

		handler := registry.Lookup(req.Method)
		if handler == nil {
			writeError(w, req.ID, newError(-32601, "method not found: %s", req.Method))
			return
		}

		result, rpcErr := handler(r.Context(), req.Params)
		if rpcErr != nil {
			writeError(w, req.ID, rpcErr)
			return
		}
		writeResult(w, req.ID, result)
	}
}

func writeResult(w http.ResponseWriter, id json.RawMessage, result interface{}) {
	if result == nil {
		result = json.RawMessage("null")
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response{JSONRPC: "2.0", ID: id, Result: result})
}

func writeError(w http.ResponseWriter, id json.RawMessage, err *Error) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &wireError{Code: err.ErrorCode(), Message: err.Error()},
	})
}
