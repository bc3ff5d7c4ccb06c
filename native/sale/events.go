package sale

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"launchpad/core/types"
)

const (
	EventTypeContribution      = "sale.contribution"
	EventTypeTokensWithdrawn   = "sale.tokens_withdrawn"
	EventTypeVestingClaimed    = "sale.vesting_claimed"
	EventTypeEmergencyRefund   = "sale.emergency_refund"
	EventTypeFinalized         = "sale.finalized"
	EventTypeWhitelistSwitched = "sale.whitelist_switched"
	EventTypeBanSwitched       = "sale.ban_switched"
	EventTypeTokenRescued      = "sale.token_rescued"
)

type saleEvent struct {
	evt *types.Event
}

func (e saleEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e saleEvent) Event() *types.Event { return e.evt }

func baseAttributes(s *Sale) map[string]string {
	attrs := make(map[string]string)
	if s == nil {
		return attrs
	}
	attrs["sale"] = hex.EncodeToString(s.Address[:])
	attrs["token"] = s.Config.Token
	return attrs
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// NewContributionEvent reports an accepted contribution and the token units
// credited for it.
func NewContributionEvent(s *Sale, participant [20]byte, amount, tokens *big.Int) *types.Event {
	attrs := baseAttributes(s)
	attrs["participant"] = hex.EncodeToString(participant[:])
	attrs["amount"] = formatAmount(amount)
	attrs["tokens"] = formatAmount(tokens)
	if s != nil {
		attrs["raised"] = formatAmount(s.Raised)
		attrs["tokensAvailable"] = formatAmount(s.TokensAvailable)
	}
	return &types.Event{Type: EventTypeContribution, Attributes: attrs}
}

// NewTokensWithdrawnEvent reports a full allocation withdrawal.
func NewTokensWithdrawnEvent(s *Sale, participant [20]byte, amount *big.Int) *types.Event {
	attrs := baseAttributes(s)
	attrs["participant"] = hex.EncodeToString(participant[:])
	attrs["amount"] = formatAmount(amount)
	return &types.Event{Type: EventTypeTokensWithdrawn, Attributes: attrs}
}

// NewVestingClaimedEvent reports a vested tranche claim and the cumulative
// released amount after it.
func NewVestingClaimedEvent(s *Sale, participant [20]byte, amount, released *big.Int) *types.Event {
	attrs := baseAttributes(s)
	attrs["participant"] = hex.EncodeToString(participant[:])
	attrs["amount"] = formatAmount(amount)
	attrs["released"] = formatAmount(released)
	return &types.Event{Type: EventTypeVestingClaimed, Attributes: attrs}
}

// NewEmergencyRefundEvent reports a pre-finalization exit.
func NewEmergencyRefundEvent(s *Sale, participant [20]byte, refund, restored *big.Int) *types.Event {
	attrs := baseAttributes(s)
	attrs["participant"] = hex.EncodeToString(participant[:])
	attrs["refund"] = formatAmount(refund)
	attrs["restoredTokens"] = formatAmount(restored)
	return &types.Event{Type: EventTypeEmergencyRefund, Attributes: attrs}
}

// NewFinalizedEvent reports the one-way finalization split.
func NewFinalizedEvent(s *Sale, collected, creatorShare, remainder, unsold *big.Int) *types.Event {
	attrs := baseAttributes(s)
	attrs["collected"] = formatAmount(collected)
	attrs["creatorShare"] = formatAmount(creatorShare)
	attrs["proceeds"] = formatAmount(remainder)
	attrs["unsoldSwept"] = formatAmount(unsold)
	if s != nil {
		attrs["creator"] = hex.EncodeToString(s.Config.Creator[:])
		attrs["recipient"] = hex.EncodeToString(s.Config.ProceedsRecipient[:])
	}
	return &types.Event{Type: EventTypeFinalized, Attributes: attrs}
}

// NewWhitelistSwitchedEvent reports a whitelist toggle flip.
func NewWhitelistSwitchedEvent(s *Sale, account [20]byte, whitelisted bool) *types.Event {
	attrs := baseAttributes(s)
	attrs["account"] = hex.EncodeToString(account[:])
	attrs["whitelisted"] = strconv.FormatBool(whitelisted)
	return &types.Event{Type: EventTypeWhitelistSwitched, Attributes: attrs}
}

// NewBanSwitchedEvent reports a ban toggle flip.
func NewBanSwitchedEvent(s *Sale, account [20]byte, banned bool) *types.Event {
	attrs := baseAttributes(s)
	attrs["account"] = hex.EncodeToString(account[:])
	attrs["banned"] = strconv.FormatBool(banned)
	return &types.Event{Type: EventTypeBanSwitched, Attributes: attrs}
}

// NewTokenRescuedEvent reports an admin token rescue out of the instance.
func NewTokenRescuedEvent(s *Sale, symbol string, to [20]byte, amount *big.Int) *types.Event {
	attrs := baseAttributes(s)
	attrs["rescuedToken"] = symbol
	attrs["to"] = hex.EncodeToString(to[:])
	attrs["amount"] = formatAmount(amount)
	return &types.Event{Type: EventTypeTokenRescued, Attributes: attrs}
}
