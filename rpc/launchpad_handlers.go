package rpc

import (
	"errors"
	"net/http"

	"launchpad/native/common"
	"launchpad/native/launchpad"
	"launchpad/native/sale"
	"launchpad/observability"
)

const (
	codeLaunchpadInvalidParams = -32041
	codeLaunchpadNotFound      = -32042
	codeLaunchpadForbidden     = -32043
	codeLaunchpadConflict      = -32044
	codeLaunchpadInternal      = -32045
)

type launchpadCreateParams struct {
	Caller            string        `json:"caller"`
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
	Metadata          string        `json:"metadata,omitempty"`
	FeePaid           string        `json:"feePaid"`
	Whitelist         []string      `json:"whitelist,omitempty"`
	Schedule          []trancheJSON `json:"schedule,omitempty"`
}

type launchpadPercentParams struct {
	Caller  string `json:"caller"`
	Percent uint32 `json:"percent"`
}

type launchpadFeeParams struct {
	Caller string `json:"caller"`
	Fee    string `json:"fee"`
}

type launchpadWithdrawParams struct {
	Caller string `json:"caller"`
	To     string `json:"to"`
}

type launchpadRescueParams struct {
	Caller string `json:"caller"`
	Token  string `json:"token"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type launchpadEventsParams struct {
	Limit int `json:"limit,omitempty"`
}

type paramsJSON struct {
	Owner       string `json:"owner"`
	CreationFee string `json:"creationFee"`
	FeePercent  uint32 `json:"feePercent"`
	Counter     uint64 `json:"counter"`
}

type eventJSON struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

func writeLaunchpadError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, launchpad.ErrNotInitialized):
		writeError(w, http.StatusNotFound, id, codeLaunchpadNotFound, "not_found", err.Error())
	case errors.Is(err, launchpad.ErrNotOwner):
		writeError(w, http.StatusForbidden, id, codeLaunchpadForbidden, "forbidden", err.Error())
	case errors.Is(err, launchpad.ErrAlreadyInitialized),
		errors.Is(err, launchpad.ErrFeeUnderpaid),
		errors.Is(err, launchpad.ErrLeadTimeTooShort),
		errors.Is(err, launchpad.ErrSaleExists),
		errors.Is(err, launchpad.ErrInsufficientAllowance),
		errors.Is(err, launchpad.ErrInsufficientBalance),
		errors.Is(err, common.ErrModulePaused),
		errors.Is(err, common.ErrReentrantCall):
		writeError(w, http.StatusConflict, id, codeLaunchpadConflict, "conflict", err.Error())
	case errors.Is(err, launchpad.ErrUnknownToken),
		errors.Is(err, launchpad.ErrFeePercentRange):
		writeError(w, http.StatusBadRequest, id, codeLaunchpadInvalidParams, "invalid_params", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, id, codeLaunchpadInternal, "internal_error", err.Error())
	}
}

func (p *launchpadCreateParams) saleConfig() (*sale.Config, error) {
	creator, err := parseBech32Address(p.Creator)
	if err != nil {
		return nil, err
	}
	proceeds, err := parseBech32Address(p.ProceedsRecipient)
	if err != nil {
		return nil, err
	}
	admin, err := parseBech32Address(p.Admin)
	if err != nil {
		return nil, err
	}
	tokensForSale, err := parsePositiveBigInt(p.TokensForSale)
	if err != nil {
		return nil, err
	}
	softCap, err := parseNonNegativeBigInt(p.SoftCap)
	if err != nil {
		return nil, err
	}
	hardCap, err := parsePositiveBigInt(p.HardCap)
	if err != nil {
		return nil, err
	}
	rate, err := parsePositiveBigInt(p.Rate)
	if err != nil {
		return nil, err
	}
	minContribution, err := parsePositiveBigInt(p.MinContribution)
	if err != nil {
		return nil, err
	}
	maxContribution, err := parsePositiveBigInt(p.MaxContribution)
	if err != nil {
		return nil, err
	}
	return &sale.Config{
		Token:             p.Token,
		Creator:           creator,
		ProceedsRecipient: proceeds,
		Admin:             admin,
		TokensForSale:     tokensForSale,
		SoftCap:           softCap,
		HardCap:           hardCap,
		Rate:              rate,
		StartTime:         p.StartTime,
		EndTime:           p.EndTime,
		MinContribution:   minContribution,
		MaxContribution:   maxContribution,
	}, nil
}

func (p *launchpadCreateParams) whitelistAddrs() ([][20]byte, error) {
	out := make([][20]byte, 0, len(p.Whitelist))
	for _, raw := range p.Whitelist {
		addr, err := parseBech32Address(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

func (s *Server) handleLaunchpadCreate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.createSale(w, req, false)
}

func (s *Server) handleLaunchpadCreateVesting(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.createSale(w, req, true)
}

func (s *Server) createSale(w http.ResponseWriter, req *RPCRequest, vesting bool) {
	var params launchpadCreateParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeLaunchpadInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeLaunchpadInvalidParams, "invalid_params", err.Error())
		return
	}
	cfg, err := params.saleConfig()
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeLaunchpadInvalidParams, "invalid_params", err.Error())
		return
	}
	feePaid, err := parseNonNegativeBigInt(params.FeePaid)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeLaunchpadInvalidParams, "invalid_params", err.Error())
		return
	}
	whitelist, err := params.whitelistAddrs()
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeLaunchpadInvalidParams, "invalid_params", err.Error())
		return
	}

	var record *sale.Sale
	if vesting {
		schedule := make([]sale.VestingTranche, 0, len(params.Schedule))
		for _, tranche := range params.Schedule {
			schedule = append(schedule, sale.VestingTranche{UnlockTime: tranche.UnlockTime, FractionBps: tranche.FractionBps})
		}
		record, err = s.node.CreateVestingSale(caller, cfg, schedule, params.Metadata, feePaid, whitelist)
	} else {
		record, err = s.node.CreateSale(caller, cfg, params.Metadata, feePaid, whitelist)
	}
	if err != nil {
		writeLaunchpadError(w, req.ID, err)
		return
	}
	observability.Sales().ObserveSaleCreated(vesting)
	writeResult(w, req.ID, formatSaleJSON(record))
}

func (s *Server) handleLaunchpadSetFeePercent(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params launchpadPercentParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeLaunchpadInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeLaunchpadInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.SetFeePercent(caller, params.Percent); err != nil {
		writeLaunchpadError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, "ok")
}

func (s *Server) handleLaunchpadSetCreationFee(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params launchpadFeeParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeLaunchpadInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeLaunchpadInvalidParams, "invalid_params", err.Error())
		return
	}
	fee, err := parseNonNegativeBigInt(params.Fee)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeLaunchpadInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.SetCreationFee(caller, fee); err != nil {
		writeLaunchpadError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, "ok")
}

func (s *Server) handleLaunchpadWithdrawFees(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params launchpadWithdrawParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeLaunchpadInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeLaunchpadInvalidParams, "invalid_params", err.Error())
		return
	}
	to, err := parseBech32Address(params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeLaunchpadInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := s.node.WithdrawFees(caller, to)
	if err != nil {
		writeLaunchpadError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, withdrawResult{Amount: bigString(amount)})
}

func (s *Server) handleLaunchpadRescueToken(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params launchpadRescueParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeLaunchpadInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeLaunchpadInvalidParams, "invalid_params", err.Error())
		return
	}
	to, err := parseBech32Address(params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeLaunchpadInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeLaunchpadInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.RescueFactoryToken(caller, params.Token, to, amount); err != nil {
		writeLaunchpadError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, "ok")
}

func (s *Server) handleLaunchpadParams(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	params, err := s.node.LaunchParams()
	if err != nil {
		writeLaunchpadError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, paramsJSON{
		Owner:       formatAddress(params.Owner),
		CreationFee: bigString(params.CreationFee),
		FeePercent:  params.FeePercent,
		Counter:     params.Counter,
	})
}

func (s *Server) handleLaunchpadEvents(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params launchpadEventsParams
	if len(req.Params) > 0 {
		if err := decodeSingleParam(req, &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeLaunchpadInvalidParams, "invalid_params", err.Error())
			return
		}
	}
	events := s.node.RecentEvents(params.Limit)
	out := make([]eventJSON, 0, len(events))
	for _, evt := range events {
		out = append(out, eventJSON{Type: evt.Type, Attributes: evt.Attributes})
	}
	writeResult(w, req.ID, out)
}
