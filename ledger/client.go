package ledger

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// Client is a thin JSON-RPC client implementing Gateway against a remote
// ledger node.
type Client struct {
	baseURL   string
	authToken string
	http      *http.Client
	nextID    atomic.Int64
}

// NewClient builds a Gateway client for the given node URL. The auth token is
// optional and forwarded as a bearer credential when set.
func NewClient(baseURL, authToken string) *Client {
	return &Client{
		baseURL:   baseURL,
		authToken: authToken,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type jsonRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      int64       `json:"id"`
}

type jsonRPCResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      int64            `json:"id"`
	Result  json.RawMessage  `json:"result"`
	Error   *jsonRPCErrorObj `json:"error"`
}

type jsonRPCErrorObj struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type instructionPayload struct {
	Program string `json:"program"`
	Opcode  uint8  `json:"opcode"`
	Data    string `json:"data"`
}

type submitResult struct {
	Confirmation string `json:"confirmation"`
}

type accountResult struct {
	Data string `json:"data"`
}

type queryEntry struct {
	ID   string `json:"id"`
	Data string `json:"data"`
}

// Submit lands the instruction batch atomically and returns the node's
// confirmation handle.
func (c *Client) Submit(ctx context.Context, instructions []Instruction, signers []Address) (ConfirmationID, error) {
	if len(instructions) == 0 {
		return "", errors.New("ledger: empty instruction batch")
	}
	encoded := make([]instructionPayload, 0, len(instructions))
	for _, ins := range instructions {
		encoded = append(encoded, instructionPayload{
			Program: ins.Program.String(),
			Opcode:  uint8(ins.Opcode),
			Data:    hex.EncodeToString(ins.Data),
		})
	}
	signerList := make([]string, 0, len(signers))
	for _, s := range signers {
		signerList = append(signerList, s.String())
	}
	params := map[string]interface{}{
		"instructions": encoded,
		"signers":      signerList,
	}
	var result submitResult
	if err := c.call(ctx, "ledger_submit", []interface{}{params}, &result); err != nil {
		return "", err
	}
	if strings.TrimSpace(result.Confirmation) == "" {
		return "", errors.New("ledger: node returned empty confirmation")
	}
	return ConfirmationID(result.Confirmation), nil
}

// ReadAccount performs a point read. A missing account yields nil bytes and a
// nil error.
func (c *Client) ReadAccount(ctx context.Context, id AccountID) ([]byte, error) {
	var result *accountResult
	err := c.call(ctx, "ledger_getAccount", []interface{}{map[string]string{"id": id.String()}}, &result)
	if err != nil {
		return nil, err
	}
	if result == nil || result.Data == "" {
		return nil, nil
	}
	raw, err := hex.DecodeString(result.Data)
	if err != nil {
		return nil, fmt.Errorf("ledger: malformed account payload: %w", err)
	}
	return raw, nil
}

// QueryAccounts runs a filtered bulk scan over the program's accounts.
func (c *Client) QueryAccounts(ctx context.Context, program Address, filters []Filter) ([]AccountEntry, error) {
	encoded := make([]map[string]interface{}, 0, len(filters))
	for _, f := range filters {
		entry := map[string]interface{}{"kind": uint8(f.Kind)}
		if f.Participant != nil {
			entry["participant"] = f.Participant.String()
		}
		encoded = append(encoded, entry)
	}
	params := map[string]interface{}{
		"program": program.String(),
		"filters": encoded,
	}
	var results []queryEntry
	if err := c.call(ctx, "ledger_queryAccounts", []interface{}{params}, &results); err != nil {
		return nil, err
	}
	entries := make([]AccountEntry, 0, len(results))
	for _, res := range results {
		id, err := ParseAccountID(res.ID)
		if err != nil {
			return nil, err
		}
		raw, err := hex.DecodeString(res.Data)
		if err != nil {
			return nil, fmt.Errorf("ledger: malformed account payload for %s: %w", res.ID, err)
		}
		entries = append(entries, AccountEntry{ID: id, Raw: raw})
	}
	return entries, nil
}

func (c *Client) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	id := c.nextID.Add(1)
	bodyStruct := jsonRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      id,
	}
	buf, err := json.Marshal(bodyStruct)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(c.authToken) != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("node rpc %s failed: status=%d body=%s", method, resp.StatusCode, string(body))
	}
	var rpcResp jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return err
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("node rpc error: %s", rpcResp.Error.Message)
	}
	if out == nil {
		return nil
	}
	if len(rpcResp.Result) == 0 || string(rpcResp.Result) == "null" {
		return nil
	}
	return json.Unmarshal(rpcResp.Result, out)
}
