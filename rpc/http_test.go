package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"launchpad/core"
	"launchpad/storage"
)

func newTestServer(t *testing.T) (*Server, *core.Node) {
	t.Helper()
	t.Setenv(AuthTokenEnv, "test-token")
	node, err := core.NewNode(storage.NewMemDB())
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	var factory [20]byte
	factory[19] = 0xFA
	node.SetFactoryAddress(factory)
	var owner [20]byte
	owner[19] = 0x01
	if err := node.InitializeLaunchpad(owner, big.NewInt(0), 30); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return NewServer(node, nil), node
}

func postRPC(t *testing.T, s *Server, body string, token string) *RPCResponse {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handle(rec, req)
	resp := &RPCResponse{}
	if err := json.Unmarshal(rec.Body.Bytes(), resp); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return resp
}

func TestHandleRejectsMalformedRequests(t *testing.T) {
	s, _ := newTestServer(t)

	resp := postRPC(t, s, "{not json", "")
	if resp.Error == nil || resp.Error.Code != codeParseError {
		t.Fatalf("parse error response = %+v", resp.Error)
	}

	resp = postRPC(t, s, `{"jsonrpc":"1.0","method":"sale_list","id":1}`, "")
	if resp.Error == nil || resp.Error.Code != codeInvalidRequest {
		t.Fatalf("version error response = %+v", resp.Error)
	}

	resp = postRPC(t, s, `{"jsonrpc":"2.0","method":"bogus_method","id":1}`, "")
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("unknown method response = %+v", resp.Error)
	}
}

func TestHandleRejectsOversizedBody(t *testing.T) {
	s, _ := newTestServer(t)

	padding := strings.Repeat("x", maxRequestBytes+1)
	body := fmt.Sprintf(`{"jsonrpc":"2.0","method":"sale_list","params":["%s"],"id":1}`, padding)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	s.handle(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusRequestEntityTooLarge)
	}
	resp := &RPCResponse{}
	if err := json.Unmarshal(rec.Body.Bytes(), resp); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	if resp.Error == nil || resp.Error.Code != codeInvalidRequest {
		t.Fatalf("oversized body response = %+v", resp.Error)
	}
}

func TestHandleRequiresAuthForMutations(t *testing.T) {
	s, _ := newTestServer(t)
	body := `{"jsonrpc":"2.0","method":"token_register","params":[{"symbol":"ZAPX","name":"Zap Token","decimals":18}],"id":1}`

	resp := postRPC(t, s, body, "")
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("missing auth response = %+v", resp.Error)
	}

	resp = postRPC(t, s, body, "wrong-token")
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("bad token response = %+v", resp.Error)
	}

	resp = postRPC(t, s, body, "test-token")
	if resp.Error != nil {
		t.Fatalf("authorised register failed: %+v", resp.Error)
	}
}

func TestReadMethodsOpenToAll(t *testing.T) {
	s, _ := newTestServer(t)

	resp := postRPC(t, s, `{"jsonrpc":"2.0","method":"launchpad_params","params":[],"id":1}`, "")
	if resp.Error != nil {
		t.Fatalf("params failed: %+v", resp.Error)
	}
	encoded, _ := json.Marshal(resp.Result)
	var params paramsJSON
	if err := json.Unmarshal(encoded, &params); err != nil {
		t.Fatalf("decode params: %v", err)
	}
	if params.FeePercent != 30 {
		t.Fatalf("fee percent = %d, want 30", params.FeePercent)
	}

	resp = postRPC(t, s, `{"jsonrpc":"2.0","method":"sale_list","params":[],"id":2}`, "")
	if resp.Error != nil {
		t.Fatalf("sale list failed: %+v", resp.Error)
	}
}

func TestTokenLifecycleOverRPC(t *testing.T) {
	s, _ := newTestServer(t)
	token := "test-token"

	register := `{"jsonrpc":"2.0","method":"token_register","params":[{"symbol":"ZAPX","name":"Zap Token","decimals":18}],"id":1}`
	if resp := postRPC(t, s, register, token); resp.Error != nil {
		t.Fatalf("register: %+v", resp.Error)
	}

	holder := formatAddress([20]byte{0x42})
	mint := fmt.Sprintf(`{"jsonrpc":"2.0","method":"token_mint","params":[{"symbol":"ZAPX","to":"%s","amount":"5000"}],"id":2}`, holder)
	if resp := postRPC(t, s, mint, token); resp.Error != nil {
		t.Fatalf("mint: %+v", resp.Error)
	}

	balanceReq := fmt.Sprintf(`{"jsonrpc":"2.0","method":"token_balance","params":[{"symbol":"ZAPX","account":"%s"}],"id":3}`, holder)
	resp := postRPC(t, s, balanceReq, "")
	if resp.Error != nil {
		t.Fatalf("balance: %+v", resp.Error)
	}
	encoded, _ := json.Marshal(resp.Result)
	var balance tokenBalanceResult
	if err := json.Unmarshal(encoded, &balance); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	if balance.Amount != "5000" {
		t.Fatalf("balance = %s, want 5000", balance.Amount)
	}
}
