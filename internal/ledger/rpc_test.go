package ledger

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/verifybuild/internal/config"
	"git.home.luguber.info/inful/verifybuild/internal/retry"
)

type rpcHandler func(method string, params []json.RawMessage) (any, *RPCError)

func newRPCServer(t *testing.T, h rpcHandler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     uint64            `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		result, rpcErr := h(req.Method, req.Params)
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGetAccountInfo(t *testing.T) {
	data := []byte{1, 2, 3}
	srv := newRPCServer(t, func(method string, params []json.RawMessage) (any, *RPCError) {
		require.Equal(t, "getAccountInfo", method)
		var addr string
		require.NoError(t, json.Unmarshal(params[0], &addr))
		if addr == SystemProgramID.String() {
			return map[string]any{"context": map[string]any{"slot": 1}, "value": nil}, nil
		}
		return map[string]any{
			"context": map[string]any{"slot": 1},
			"value": map[string]any{
				"data":       []string{base64.StdEncoding.EncodeToString(data), "base64"},
				"owner":      UpgradeableLoaderID.String(),
				"lamports":   42,
				"executable": true,
			},
		}, nil
	})
	c := NewClient(srv.URL)

	acc, err := c.GetAccountInfo(context.Background(), ComputeBudgetID)
	require.NoError(t, err)
	assert.Equal(t, data, acc.Data)
	assert.Equal(t, UpgradeableLoaderID, acc.Owner)
	assert.True(t, acc.Executable)

	_, err = c.GetAccountData(context.Background(), SystemProgramID)
	require.ErrorIs(t, err, ErrAccountNotFound)

	exists, err := c.AccountExists(context.Background(), SystemProgramID)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestGenesisAndBlockhash(t *testing.T) {
	srv := newRPCServer(t, func(method string, _ []json.RawMessage) (any, *RPCError) {
		switch method {
		case "getGenesisHash":
			return config.MainnetGenesisHash, nil
		case "getLatestBlockhash":
			return map[string]any{"value": map[string]any{"blockhash": ComputeBudgetID.String(), "lastValidBlockHeight": 9}}, nil
		}
		return nil, &RPCError{Code: -32601, Message: "method not found"}
	})
	c := NewClient(srv.URL)

	g, err := c.GetGenesisHash(context.Background())
	require.NoError(t, err)
	assert.Equal(t, config.MainnetGenesisHash, g)

	bh, err := c.GetLatestBlockhash(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Hash(ComputeBudgetID), bh)
}

func TestRPCErrorIsSurfaced(t *testing.T) {
	srv := newRPCServer(t, func(string, []json.RawMessage) (any, *RPCError) {
		return nil, &RPCError{Code: -32002, Message: "Transaction simulation failed"}
	})
	_, err := NewClient(srv.URL).GetGenesisHash(context.Background())
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32002, rpcErr.Code)
}

func TestSendAndConfirm(t *testing.T) {
	kp := testKeypair(t, 9)
	msg, err := NewMessage(kp.PublicKey(), Hash{3}, Instruction{ProgramID: SystemProgramID, Data: []byte{1}})
	require.NoError(t, err)
	tx := NewTransaction(msg)
	require.NoError(t, tx.Sign(kp))

	var mu sync.Mutex
	polls := 0
	srv := newRPCServer(t, func(method string, params []json.RawMessage) (any, *RPCError) {
		mu.Lock()
		defer mu.Unlock()
		switch method {
		case "sendTransaction":
			var encoded string
			require.NoError(t, json.Unmarshal(params[0], &encoded))
			raw, err := base64.StdEncoding.DecodeString(encoded)
			require.NoError(t, err)
			assert.Equal(t, byte(1), raw[0])
			return tx.ID().String(), nil
		case "getSignatureStatuses":
			polls++
			if polls < 3 {
				return map[string]any{"value": []any{nil}}, nil
			}
			return map[string]any{"value": []any{map[string]any{"slot": 5, "confirmations": 0, "err": nil, "confirmationStatus": "confirmed"}}}, nil
		}
		return nil, &RPCError{Code: -32601, Message: "method not found"}
	})
	c := NewClient(srv.URL)

	sig, err := c.SendTransaction(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, tx.ID(), sig)

	policy := retry.NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 5)
	require.NoError(t, c.AwaitConfirmation(context.Background(), sig, policy))
	assert.Equal(t, 3, polls)
}

func TestAwaitConfirmationReportsFailure(t *testing.T) {
	srv := newRPCServer(t, func(string, []json.RawMessage) (any, *RPCError) {
		return map[string]any{"value": []any{map[string]any{"slot": 5, "err": map[string]any{"InstructionError": []any{0, "Custom"}}, "confirmationStatus": "confirmed"}}}, nil
	})
	policy := retry.NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 2)
	err := NewClient(srv.URL).AwaitConfirmation(context.Background(), Signature{1}, policy)
	require.ErrorIs(t, err, ErrTransactionFailed)
}
