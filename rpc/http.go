package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"launchpad/core"
	"launchpad/crypto"
	"launchpad/observability"
	"launchpad/observability/logging"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB

	// AuthTokenEnv names the environment variable carrying the bearer token
	// required for mutating methods.
	AuthTokenEnv = "LAUNCHPAD_RPC_TOKEN"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
)

type Server struct {
	node      *core.Node
	authToken string
	logger    *slog.Logger
}

func NewServer(node *core.Node, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	token := strings.TrimSpace(os.Getenv(AuthTokenEnv))
	return &Server{
		node:      node,
		authToken: token,
		logger:    logger,
	}
}

// Handler returns the HTTP handler serving the JSON-RPC endpoint at / and the
// Prometheus scrape endpoint at /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func (s *Server) Start(addr string) error {
	s.logger.Info("starting JSON-RPC server", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// handle is the main request handler that routes to method-specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	recorder := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	start := time.Now()
	s.dispatch(recorder, r, req)
	module, _, _ := strings.Cut(req.Method, "_")
	observability.ModuleMetrics().Observe(module, req.Method, recorder.status, time.Since(start))
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	switch req.Method {
	case "launchpad_create":
		s.withAuth(w, r, req, s.handleLaunchpadCreate)
	case "launchpad_createVesting":
		s.withAuth(w, r, req, s.handleLaunchpadCreateVesting)
	case "launchpad_setFeePercent":
		s.withAuth(w, r, req, s.handleLaunchpadSetFeePercent)
	case "launchpad_setCreationFee":
		s.withAuth(w, r, req, s.handleLaunchpadSetCreationFee)
	case "launchpad_withdrawFees":
		s.withAuth(w, r, req, s.handleLaunchpadWithdrawFees)
	case "launchpad_rescueToken":
		s.withAuth(w, r, req, s.handleLaunchpadRescueToken)
	case "launchpad_params":
		s.handleLaunchpadParams(w, r, req)
	case "launchpad_events":
		s.handleLaunchpadEvents(w, r, req)
	case "sale_contribute":
		s.withAuth(w, r, req, s.handleSaleContribute)
	case "sale_withdraw":
		s.withAuth(w, r, req, s.handleSaleWithdraw)
	case "sale_emergencyWithdraw":
		s.withAuth(w, r, req, s.handleSaleEmergencyWithdraw)
	case "sale_finalize":
		s.withAuth(w, r, req, s.handleSaleFinalize)
	case "sale_switchWhitelist":
		s.withAuth(w, r, req, s.handleSaleSwitchWhitelist)
	case "sale_switchBan":
		s.withAuth(w, r, req, s.handleSaleSwitchBan)
	case "sale_rescueToken":
		s.withAuth(w, r, req, s.handleSaleRescueToken)
	case "sale_get":
		s.handleSaleGet(w, r, req)
	case "sale_participant":
		s.handleSaleParticipant(w, r, req)
	case "sale_list":
		s.handleSaleList(w, r, req)
	case "token_register":
		s.withAuth(w, r, req, s.handleTokenRegister)
	case "token_mint":
		s.withAuth(w, r, req, s.handleTokenMint)
	case "token_approve":
		s.withAuth(w, r, req, s.handleTokenApprove)
	case "token_balance":
		s.handleTokenBalance(w, r, req)
	case "token_info":
		s.handleTokenInfo(w, r, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %s not found", req.Method), nil)
	}
}

type rpcHandler func(http.ResponseWriter, *http.Request, *RPCRequest)

func (s *Server) withAuth(w http.ResponseWriter, r *http.Request, req *RPCRequest, fn rpcHandler) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	fn(w, r, req)
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		s.logger.LogAttrs(r.Context(), slog.LevelWarn, "rejected RPC credentials",
			logging.MaskField("token", token),
			slog.String("remote", r.RemoteAddr),
		)
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

func parseBech32Address(addr string) ([20]byte, error) {
	trimmed := strings.TrimSpace(addr)
	if trimmed == "" {
		return [20]byte{}, fmt.Errorf("address required")
	}
	decoded, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return [20]byte{}, err
	}
	var out [20]byte
	copy(out[:], decoded.Bytes())
	return out, nil
}

func formatAddress(addr [20]byte) string {
	return crypto.NewAddress(crypto.ZapPrefix, addr[:]).String()
}

func parsePositiveBigInt(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount")
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return amount, nil
}

func parseNonNegativeBigInt(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount")
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
