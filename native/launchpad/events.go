package launchpad

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"launchpad/core/types"
	"launchpad/native/sale"
)

const (
	EventTypeSaleCreated   = "launchpad.sale_created"
	EventTypeFeesWithdrawn = "launchpad.fees_withdrawn"
	EventTypeParamsUpdated = "launchpad.params_updated"
	EventTypeTokenRescued  = "launchpad.token_rescued"
)

type launchEvent struct {
	evt *types.Event
}

func (e launchEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e launchEvent) Event() *types.Event { return e.evt }

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// NewSaleCreatedEvent is the creation record emitted for every deployment: the
// derived instance address, the economic parameter snapshot and the salt
// counter used in the derivation.
func NewSaleCreatedEvent(s *sale.Sale, counter uint64) *types.Event {
	attrs := make(map[string]string)
	if s != nil {
		attrs["sale"] = hex.EncodeToString(s.Address[:])
		attrs["token"] = s.Config.Token
		attrs["tokensForSale"] = formatAmount(s.Config.TokensForSale)
		attrs["softCap"] = formatAmount(s.Config.SoftCap)
		attrs["hardCap"] = formatAmount(s.Config.HardCap)
		attrs["rate"] = formatAmount(s.Config.Rate)
		attrs["minContribution"] = formatAmount(s.Config.MinContribution)
		attrs["maxContribution"] = formatAmount(s.Config.MaxContribution)
		attrs["startTime"] = strconv.FormatUint(s.Config.StartTime, 10)
		attrs["endTime"] = strconv.FormatUint(s.Config.EndTime, 10)
		attrs["recipient"] = hex.EncodeToString(s.Config.ProceedsRecipient[:])
		attrs["admin"] = hex.EncodeToString(s.Config.Admin[:])
		attrs["vesting"] = strconv.FormatBool(s.Config.Vesting)
		attrs["createdAt"] = strconv.FormatUint(s.CreatedAt, 10)
	}
	attrs["counter"] = strconv.FormatUint(counter, 10)
	return &types.Event{Type: EventTypeSaleCreated, Attributes: attrs}
}

// NewFeesWithdrawnEvent reports a creation-fee payout.
func NewFeesWithdrawnEvent(to [20]byte, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeFeesWithdrawn,
		Attributes: map[string]string{
			"to":     hex.EncodeToString(to[:]),
			"amount": formatAmount(amount),
		},
	}
}

// NewParamsUpdatedEvent reports a factory parameter change.
func NewParamsUpdatedEvent(p *Params) *types.Event {
	attrs := make(map[string]string)
	if p != nil {
		attrs["owner"] = hex.EncodeToString(p.Owner[:])
		attrs["creationFee"] = formatAmount(p.CreationFee)
		attrs["feePercent"] = strconv.FormatUint(uint64(p.FeePercent), 10)
	}
	return &types.Event{Type: EventTypeParamsUpdated, Attributes: attrs}
}

// NewTokenRescuedEvent reports an owner token rescue out of the factory
// account.
func NewTokenRescuedEvent(symbol string, to [20]byte, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeTokenRescued,
		Attributes: map[string]string{
			"token":  symbol,
			"to":     hex.EncodeToString(to[:]),
			"amount": formatAmount(amount),
		},
	}
}
