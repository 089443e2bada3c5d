package ledger

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"git.home.luguber.info/inful/verifybuild/internal/logfields"
	"git.home.luguber.info/inful/verifybuild/internal/retry"
)

// DefaultCommitment is used for reads and preflight.
const DefaultCommitment = "confirmed"

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Client is a JSON-RPC client for a ledger node.
type Client struct {
	endpoint   string
	httpClient *http.Client
	commitment string
	ids        atomic.Uint64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithCommitment sets the commitment level for reads.
func WithCommitment(level string) Option {
	return func(c *Client) {
		if level != "" {
			c.commitment = level
		}
	}
}

// NewClient returns a client for the node at endpoint.
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		commitment: DefaultCommitment,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the node URL.
func (c *Client) Endpoint() string { return c.endpoint }

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: c.ids.Add(1), Method: method, Params: params})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "verifybuild")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", method, err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s: http %s: %s", method, resp.Status, bytes.TrimSpace(raw))
	}
	var decoded rpcResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	if decoded.Error != nil {
		return fmt.Errorf("%s: %w", method, decoded.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(decoded.Result, out); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}

type accountValue struct {
	Data       [2]string `json:"data"`
	Owner      string    `json:"owner"`
	Lamports   uint64    `json:"lamports"`
	Executable bool      `json:"executable"`
}

// GetAccountInfo fetches an account. A null value yields ErrAccountNotFound.
func (c *Client) GetAccountInfo(ctx context.Context, address PublicKey) (*Account, error) {
	var result struct {
		Value *accountValue `json:"value"`
	}
	params := []any{address.String(), map[string]any{"encoding": "base64", "commitment": c.commitment}}
	if err := c.call(ctx, "getAccountInfo", params, &result); err != nil {
		return nil, err
	}
	if result.Value == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, address)
	}
	owner, err := ParsePublicKey(result.Value.Owner)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", address, err)
	}
	data, err := base64.StdEncoding.DecodeString(result.Value.Data[0])
	if err != nil {
		return nil, fmt.Errorf("account %s: decode data: %w", address, err)
	}
	return &Account{
		Owner:      owner,
		Lamports:   result.Value.Lamports,
		Executable: result.Value.Executable,
		Data:       data,
	}, nil
}

// GetAccountData returns only the account's data bytes.
func (c *Client) GetAccountData(ctx context.Context, address PublicKey) ([]byte, error) {
	acc, err := c.GetAccountInfo(ctx, address)
	if err != nil {
		return nil, err
	}
	return acc.Data, nil
}

// AccountExists reports whether address holds an account.
func (c *Client) AccountExists(ctx context.Context, address PublicKey) (bool, error) {
	_, err := c.GetAccountInfo(ctx, address)
	if errors.Is(err, ErrAccountNotFound) {
		return false, nil
	}
	return err == nil, err
}

// GetGenesisHash identifies the cluster.
func (c *Client) GetGenesisHash(ctx context.Context) (string, error) {
	var hash string
	if err := c.call(ctx, "getGenesisHash", nil, &hash); err != nil {
		return "", err
	}
	return hash, nil
}

// GetLatestBlockhash returns a recent blockhash for transaction composition.
func (c *Client) GetLatestBlockhash(ctx context.Context) (Hash, error) {
	var result struct {
		Value struct {
			Blockhash            string `json:"blockhash"`
			LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
		} `json:"value"`
	}
	if err := c.call(ctx, "getLatestBlockhash", []any{map[string]any{"commitment": c.commitment}}, &result); err != nil {
		return Hash{}, err
	}
	return ParseHash(result.Value.Blockhash)
}

// SendTransaction submits a signed transaction and returns its signature.
func (c *Client) SendTransaction(ctx context.Context, tx *Transaction) (Signature, error) {
	raw, err := tx.Serialize()
	if err != nil {
		return Signature{}, err
	}
	params := []any{
		base64.StdEncoding.EncodeToString(raw),
		map[string]any{"encoding": "base64", "preflightCommitment": c.commitment},
	}
	var sig string
	if err := c.call(ctx, "sendTransaction", params, &sig); err != nil {
		return Signature{}, err
	}
	if sig != tx.ID().String() {
		slog.WarnContext(ctx, "Node returned unexpected signature", logfields.Signature(sig))
	}
	return tx.ID(), nil
}

// SignatureStatus is the processing state of a transaction.
type SignatureStatus struct {
	Slot               uint64          `json:"slot"`
	Confirmations      *uint64         `json:"confirmations"`
	Err                json.RawMessage `json:"err"`
	ConfirmationStatus string          `json:"confirmationStatus"`
}

// Failed reports whether the transaction executed with an error.
func (s *SignatureStatus) Failed() bool {
	return len(s.Err) > 0 && string(s.Err) != "null"
}

// Confirmed reports whether the transaction reached at least confirmed commitment.
func (s *SignatureStatus) Confirmed() bool {
	return s.ConfirmationStatus == "confirmed" || s.ConfirmationStatus == "finalized"
}

// GetSignatureStatus returns nil when the node has not seen the transaction yet.
func (c *Client) GetSignatureStatus(ctx context.Context, sig Signature) (*SignatureStatus, error) {
	var result struct {
		Value []*SignatureStatus `json:"value"`
	}
	params := []any{[]string{sig.String()}, map[string]any{"searchTransactionHistory": true}}
	if err := c.call(ctx, "getSignatureStatuses", params, &result); err != nil {
		return nil, err
	}
	if len(result.Value) == 0 {
		return nil, nil
	}
	return result.Value[0], nil
}

// ErrTransactionFailed means the transaction landed but its execution failed.
var ErrTransactionFailed = errors.New("transaction failed")

// AwaitConfirmation polls the signature status with policy until the
// transaction is confirmed, fails, or the policy gives up.
func (c *Client) AwaitConfirmation(ctx context.Context, sig Signature, policy retry.Policy) error {
	return policy.Do(ctx, func(attempt int) (bool, error) {
		status, err := c.GetSignatureStatus(ctx, sig)
		if err != nil {
			return false, err
		}
		if status == nil {
			slog.DebugContext(ctx, "Transaction not yet visible", logfields.Signature(sig.String()), slog.Int("attempt", attempt))
			return false, nil
		}
		if status.Failed() {
			return false, fmt.Errorf("%w: %s: %s", ErrTransactionFailed, sig, status.Err)
		}
		return status.Confirmed(), nil
	})
}
