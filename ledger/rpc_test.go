package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRPCClientCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "testuser", user)
		assert.Equal(t, "testpass", pass)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "2.0", req.JSONRPC)
		assert.Equal(t, "eth_blockNumber", req.Method)

		resp := rpcResponse{ID: req.ID, Result: json.RawMessage(`"0x64"`)}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewRPCClient(RPCConfig{URL: server.URL, User: "testuser", Password: "testpass"})
	var height string
	err := client.Call(context.Background(), "eth_blockNumber", nil, &height)
	require.NoError(t, err)
	assert.Equal(t, "0x64", height)
}

func TestRPCClientRPCError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := rpcResponse{
			ID:    req.ID,
			Error: &RPCError{Code: -32000, Message: "execution reverted"},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewRPCClient(RPCConfig{URL: server.URL})
	var result string
	err := client.Call(context.Background(), "eth_call", []interface{}{"x"}, &result)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRPC)
	assert.Contains(t, err.Error(), "execution reverted")

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32000, rpcErr.Code)
}

func TestRPCClientRPCErrorWithHTTPStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(rpcResponse{
			Error: &RPCError{Code: -32603, Message: "internal error"},
		})
	}))
	defer server.Close()

	client := NewRPCClient(RPCConfig{URL: server.URL})
	err := client.Call(context.Background(), "eth_chainId", nil, nil)
	assert.ErrorIs(t, err, ErrRPC)
	assert.NotErrorIs(t, err, ErrConnectionFailed)
}

func TestRPCClientHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewRPCClient(RPCConfig{URL: server.URL})
	err := client.Call(context.Background(), "eth_chainId", nil, nil)
	assert.ErrorIs(t, err, ErrConnectionFailed)
	assert.Contains(t, err.Error(), "503")
}

func TestRPCClientConnectionError(t *testing.T) {
	client := NewRPCClient(RPCConfig{URL: "http://localhost:1"})
	var result string
	err := client.Call(context.Background(), "eth_chainId", nil, &result)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectionFailed)
}

func TestRPCClientTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := NewRPCClient(RPCConfig{URL: server.URL, Timeout: 50 * time.Millisecond})
	start := time.Now()
	err := client.Call(context.Background(), "eth_chainId", nil, nil)
	assert.ErrorIs(t, err, ErrConnectionFailed)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRPCClientInvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	client := NewRPCClient(RPCConfig{URL: server.URL})
	err := client.Call(context.Background(), "eth_chainId", nil, nil)
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestRPCClientIDMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(rpcResponse{ID: 999, Result: json.RawMessage(`"0x1"`)})
	}))
	defer server.Close()

	client := NewRPCClient(RPCConfig{URL: server.URL})
	var result string
	err := client.Call(context.Background(), "eth_chainId", nil, &result)
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestRPCClientSequentialIDs(t *testing.T) {
	var (
		mu  sync.Mutex
		ids []int64
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		ids = append(ids, req.ID)
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(rpcResponse{ID: req.ID, Result: json.RawMessage(`"0x1"`)})
	}))
	defer server.Close()

	client := NewRPCClient(RPCConfig{URL: server.URL})
	for i := 0; i < 3; i++ {
		require.NoError(t, client.Call(context.Background(), "eth_chainId", nil, nil))
	}
	assert.Equal(t, []int64{1, 2, 3}, ids)
}

func TestRPCClientNilParamsSentAsEmptyArray(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		assert.JSONEq(t, `[]`, string(raw["params"]))

		var id int64
		require.NoError(t, json.Unmarshal(raw["id"], &id))
		_ = json.NewEncoder(w).Encode(rpcResponse{ID: id, Result: json.RawMessage(`"0x1"`)})
	}))
	defer server.Close()

	client := NewRPCClient(RPCConfig{URL: server.URL})
	require.NoError(t, client.Call(context.Background(), "eth_chainId", nil, nil))
}
