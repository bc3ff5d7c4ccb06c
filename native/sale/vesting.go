package sale

import (
	"math/big"
)

// withdrawVested releases the caller's vested-to-date entitlement minus what
// has already been claimed. The caller holds the sale latch.
func (e *Engine) withdrawVested(s *Sale, caller [20]byte, p *Participant, now uint64) (*big.Int, error) {
	entitled := VestedAmount(p.Purchased, s.Schedule, now)
	delta := new(big.Int).Sub(entitled, p.Released)
	if delta.Sign() <= 0 {
		return nil, ErrNothingVested
	}
	if err := e.transferToken(s.Address, caller, s.Config.Token, delta); err != nil {
		return nil, err
	}
	p.Released = new(big.Int).Add(p.Released, delta)
	if err := e.state.SaleParticipantPut(s.Address, caller, p); err != nil {
		return nil, err
	}
	e.emit(NewVestingClaimedEvent(s, caller, delta, p.Released))
	return delta, nil
}

// VestedAmount computes the cumulative entitlement unlocked for a purchased
// balance under the schedule at the given time. The result never exceeds the
// purchased balance.
func VestedAmount(purchased *big.Int, schedule []VestingTranche, now uint64) *big.Int {
	if purchased == nil || purchased.Sign() <= 0 {
		return big.NewInt(0)
	}
	bps := VestedBps(schedule, now)
	if bps == 0 {
		return big.NewInt(0)
	}
	if bps >= fractionDenominator {
		return new(big.Int).Set(purchased)
	}
	entitled := new(big.Int).Mul(purchased, new(big.Int).SetUint64(uint64(bps)))
	return entitled.Div(entitled, big.NewInt(fractionDenominator))
}
