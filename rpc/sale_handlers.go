package rpc

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"time"

	"launchpad/native/common"
	"launchpad/native/sale"
	"launchpad/observability"
)

const (
	codeSaleInvalidParams = -32031
	codeSaleNotFound      = -32032
	codeSaleForbidden     = -32033
	codeSaleConflict      = -32034
	codeSaleInternal      = -32035
)

type saleActorParams struct {
	Sale   string `json:"sale"`
	Caller string `json:"caller"`
}

type saleContributeParams struct {
	Sale   string `json:"sale"`
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

type saleSwitchParams struct {
	Sale    string `json:"sale"`
	Caller  string `json:"caller"`
	Account string `json:"account"`
}

type saleRescueParams struct {
	Sale   string `json:"sale"`
	Caller string `json:"caller"`
	Token  string `json:"token"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type saleGetParams struct {
	Sale string `json:"sale"`
}

type saleParticipantParams struct {
	Sale    string `json:"sale"`
	Account string `json:"account"`
}

type trancheJSON struct {
	UnlockTime  uint64 `json:"unlockTime"`
	FractionBps uint32 `json:"fractionBps"`
}

type saleJSON struct {
	Address           string        `json:"address"`
	Token             string        `json:"token"`
	Creator           string        `json:"creator"`
	ProceedsRecipient string        `json:"proceedsRecipient"`
	Admin             string        `json:"admin"`
	TokensForSale     string        `json:"tokensForSale"`
	SoftCap           string        `json:"softCap"`
	HardCap           string        `json:"hardCap"`
	Rate              string        `json:"rate"`
	StartTime         uint64        `json:"startTime"`
	EndTime           uint64        `json:"endTime"`
	MinContribution   string        `json:"minContribution"`
	MaxContribution   string        `json:"maxContribution"`
	CreatorPercent    uint32        `json:"creatorPercent"`
	Vesting           bool          `json:"vesting"`
	Schedule          []trancheJSON `json:"schedule,omitempty"`
	Metadata          string        `json:"metadata,omitempty"`
	TokensAvailable   string        `json:"tokensAvailable"`
	Raised            string        `json:"raised"`
	Finalized         bool          `json:"finalized"`
	Status            string        `json:"status"`
	CreatedAt         uint64        `json:"createdAt"`
}

type participantJSON struct {
	Purchased   string `json:"purchased"`
	Contributed string `json:"contributed"`
	Released    string `json:"released"`
	Whitelisted bool   `json:"whitelisted"`
	Banned      bool   `json:"banned"`
}

type withdrawResult struct {
	Amount string `json:"amount"`
}

type switchResult struct {
	Active bool `json:"active"`
}

func formatSaleJSON(s *sale.Sale) saleJSON {
	out := saleJSON{
		Address:           formatAddress(s.Address),
		Token:             s.Config.Token,
		Creator:           formatAddress(s.Config.Creator),
		ProceedsRecipient: formatAddress(s.Config.ProceedsRecipient),
		Admin:             formatAddress(s.Config.Admin),
		TokensForSale:     bigString(s.Config.TokensForSale),
		SoftCap:           bigString(s.Config.SoftCap),
		HardCap:           bigString(s.Config.HardCap),
		Rate:              bigString(s.Config.Rate),
		StartTime:         s.Config.StartTime,
		EndTime:           s.Config.EndTime,
		MinContribution:   bigString(s.Config.MinContribution),
		MaxContribution:   bigString(s.Config.MaxContribution),
		CreatorPercent:    s.Config.CreatorPercent,
		Vesting:           s.Config.Vesting,
		Metadata:          s.Metadata,
		TokensAvailable:   bigString(s.TokensAvailable),
		Raised:            bigString(s.Raised),
		Finalized:         s.Finalized,
		Status:            s.StatusAt(uint64(time.Now().Unix())).String(),
		CreatedAt:         s.CreatedAt,
	}
	for _, tranche := range s.Schedule {
		out.Schedule = append(out.Schedule, trancheJSON{UnlockTime: tranche.UnlockTime, FractionBps: tranche.FractionBps})
	}
	return out
}

func writeSaleError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, sale.ErrSaleNotFound):
		writeError(w, http.StatusNotFound, id, codeSaleNotFound, "not_found", err.Error())
	case errors.Is(err, sale.ErrNotAdmin),
		errors.Is(err, sale.ErrNotWhitelisted),
		errors.Is(err, sale.ErrBanned):
		writeError(w, http.StatusForbidden, id, codeSaleForbidden, "forbidden", err.Error())
	case errors.Is(err, sale.ErrSaleNotOpen),
		errors.Is(err, sale.ErrSaleEnded),
		errors.Is(err, sale.ErrAlreadyFinalized),
		errors.Is(err, sale.ErrHardCapExceeded),
		errors.Is(err, sale.ErrInsufficientSupply),
		errors.Is(err, sale.ErrBelowMinContribution),
		errors.Is(err, sale.ErrAboveMaxContribution),
		errors.Is(err, sale.ErrWithdrawUnavailable),
		errors.Is(err, sale.ErrNothingToWithdraw),
		errors.Is(err, sale.ErrNothingVested),
		errors.Is(err, sale.ErrInsufficientFunds),
		errors.Is(err, common.ErrModulePaused),
		errors.Is(err, common.ErrReentrantCall):
		writeError(w, http.StatusConflict, id, codeSaleConflict, "conflict", err.Error())
	case errors.Is(err, sale.ErrUnknownToken):
		writeError(w, http.StatusBadRequest, id, codeSaleInvalidParams, "invalid_params", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, id, codeSaleInternal, "internal_error", err.Error())
	}
}

func decodeSingleParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return errors.New("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func (s *Server) handleSaleContribute(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params saleContributeParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	saleAddr, err := parseBech32Address(params.Sale)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.Contribute(saleAddr, caller, amount); err != nil {
		writeSaleError(w, req.ID, err)
		return
	}
	if record, infoErr := s.node.SaleInfo(saleAddr); infoErr == nil {
		raised, _ := new(big.Float).SetInt(record.Raised).Float64()
		observability.Sales().ObserveContribution(record.Config.Token, formatAddress(saleAddr), raised)
	}
	writeResult(w, req.ID, "ok")
}

func (s *Server) handleSaleWithdraw(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params saleActorParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	saleAddr, err := parseBech32Address(params.Sale)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := s.node.Withdraw(saleAddr, caller)
	if err != nil {
		writeSaleError(w, req.ID, err)
		return
	}
	observability.Sales().ObserveWithdrawal("withdraw")
	writeResult(w, req.ID, withdrawResult{Amount: bigString(amount)})
}

func (s *Server) handleSaleEmergencyWithdraw(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params saleActorParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	saleAddr, err := parseBech32Address(params.Sale)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	refund, err := s.node.EmergencyWithdraw(saleAddr, caller)
	if err != nil {
		writeSaleError(w, req.ID, err)
		return
	}
	observability.Sales().ObserveWithdrawal("emergency")
	writeResult(w, req.ID, withdrawResult{Amount: bigString(refund)})
}

func (s *Server) handleSaleFinalize(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params saleActorParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	saleAddr, err := parseBech32Address(params.Sale)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.FinalizeSale(saleAddr, caller); err != nil {
		writeSaleError(w, req.ID, err)
		return
	}
	observability.Sales().ObserveFinalized()
	writeResult(w, req.ID, "ok")
}

func (s *Server) handleSaleSwitchWhitelist(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleSaleSwitch(w, r, req, s.node.SwitchWhitelist)
}

func (s *Server) handleSaleSwitchBan(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleSaleSwitch(w, r, req, s.node.SwitchBan)
}

func (s *Server) handleSaleSwitch(w http.ResponseWriter, _ *http.Request, req *RPCRequest, fn func([20]byte, [20]byte, [20]byte) (bool, error)) {
	var params saleSwitchParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	saleAddr, err := parseBech32Address(params.Sale)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	account, err := parseBech32Address(params.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	active, err := fn(saleAddr, caller, account)
	if err != nil {
		writeSaleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, switchResult{Active: active})
}

func (s *Server) handleSaleRescueToken(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params saleRescueParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	saleAddr, err := parseBech32Address(params.Sale)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	to, err := parseBech32Address(params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.RescueSaleToken(saleAddr, caller, params.Token, to, amount); err != nil {
		writeSaleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, "ok")
}

func (s *Server) handleSaleGet(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params saleGetParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	saleAddr, err := parseBech32Address(params.Sale)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	record, err := s.node.SaleInfo(saleAddr)
	if err != nil {
		writeSaleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatSaleJSON(record))
}

func (s *Server) handleSaleParticipant(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params saleParticipantParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	saleAddr, err := parseBech32Address(params.Sale)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	account, err := parseBech32Address(params.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeSaleInvalidParams, "invalid_params", err.Error())
		return
	}
	entry, err := s.node.ParticipantInfo(saleAddr, account)
	if err != nil {
		writeSaleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, participantJSON{
		Purchased:   bigString(entry.Purchased),
		Contributed: bigString(entry.Contributed),
		Released:    bigString(entry.Released),
		Whitelisted: entry.Whitelisted,
		Banned:      entry.Banned,
	})
}

func (s *Server) handleSaleList(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	list, err := s.node.SaleList()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeSaleInternal, "internal_error", err.Error())
		return
	}
	out := make([]string, 0, len(list))
	for _, addr := range list {
		out = append(out, formatAddress(addr))
	}
	writeResult(w, req.ID, out)
}
