package rpc

import (
	"net/http"
	"strings"
)

const (
	codeTokenInvalidParams = -32051
	codeTokenNotFound      = -32052
	codeTokenInternal      = -32055
)

type tokenRegisterParams struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
}

type tokenMintParams struct {
	Symbol string `json:"symbol"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type tokenApproveParams struct {
	Symbol  string `json:"symbol"`
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

type tokenBalanceParams struct {
	Symbol  string `json:"symbol"`
	Account string `json:"account"`
}

type tokenInfoParams struct {
	Symbol string `json:"symbol"`
}

type tokenBalanceResult struct {
	Symbol  string `json:"symbol"`
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

type tokenInfoResult struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
}

func (s *Server) handleTokenRegister(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params tokenRegisterParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTokenInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.RegisterToken(params.Symbol, params.Name, params.Decimals); err != nil {
		writeError(w, http.StatusConflict, req.ID, codeTokenInvalidParams, "invalid_params", err.Error())
		return
	}
	writeResult(w, req.ID, "ok")
}

func (s *Server) handleTokenMint(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params tokenMintParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTokenInvalidParams, "invalid_params", err.Error())
		return
	}
	to, err := parseBech32Address(params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTokenInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTokenInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.MintToken(to, params.Symbol, amount); err != nil {
		writeError(w, http.StatusConflict, req.ID, codeTokenInternal, "internal_error", err.Error())
		return
	}
	writeResult(w, req.ID, "ok")
}

func (s *Server) handleTokenApprove(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params tokenApproveParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTokenInvalidParams, "invalid_params", err.Error())
		return
	}
	owner, err := parseBech32Address(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTokenInvalidParams, "invalid_params", err.Error())
		return
	}
	spender, err := parseBech32Address(params.Spender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTokenInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parseNonNegativeBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTokenInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.Approve(params.Symbol, owner, spender, amount); err != nil {
		writeError(w, http.StatusConflict, req.ID, codeTokenInternal, "internal_error", err.Error())
		return
	}
	writeResult(w, req.ID, "ok")
}

func (s *Server) handleTokenBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params tokenBalanceParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTokenInvalidParams, "invalid_params", err.Error())
		return
	}
	account, err := parseBech32Address(params.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTokenInvalidParams, "invalid_params", err.Error())
		return
	}
	balance, err := s.node.TokenBalance(account, params.Symbol)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeTokenInternal, "internal_error", err.Error())
		return
	}
	writeResult(w, req.ID, tokenBalanceResult{
		Symbol:  strings.ToUpper(strings.TrimSpace(params.Symbol)),
		Account: formatAddress(account),
		Amount:  bigString(balance),
	})
}

func (s *Server) handleTokenInfo(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params tokenInfoParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTokenInvalidParams, "invalid_params", err.Error())
		return
	}
	meta, err := s.node.TokenInfo(params.Symbol)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeTokenInternal, "internal_error", err.Error())
		return
	}
	if meta == nil {
		writeError(w, http.StatusNotFound, req.ID, codeTokenNotFound, "not_found", "token not registered")
		return
	}
	writeResult(w, req.ID, tokenInfoResult{Symbol: meta.Symbol, Name: meta.Name, Decimals: meta.Decimals})
}
