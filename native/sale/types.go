package sale

import (
	"fmt"
	"math/big"
	"strings"
)

// Status is the derived lifecycle position of a sale. Only the Ended state is
// stored (as the Finalized flag); Pending and Open are evaluated lazily
// against the current time.
type Status uint8

const (
	StatusPending Status = iota
	StatusOpen
	StatusEnded
)

// String returns the canonical lowercase name of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusOpen:
		return "open"
	case StatusEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// fractionDenominator is the basis-point scale vesting fractions are expressed
// in. A complete schedule sums to exactly this value.
const fractionDenominator = 10_000

// VestingTranche pairs an unlock timestamp with the fraction of a
// participant's allocation that becomes releasable at that time, in basis
// points.
type VestingTranche struct {
	UnlockTime  uint64
	FractionBps uint32
}

// Config captures the immutable economic and timing parameters of one sale.
// All amounts are integral base units; Rate is the number of asset-token
// units granted per base-currency unit.
type Config struct {
	Token             string
	Creator           [20]byte
	ProceedsRecipient [20]byte
	Admin             [20]byte
	TokensForSale     *big.Int
	SoftCap           *big.Int
	HardCap           *big.Int
	Rate              *big.Int
	StartTime         uint64
	EndTime           uint64
	MinContribution   *big.Int
	MaxContribution   *big.Int
	CreatorPercent    uint32
	Vesting           bool
}

// Clone returns a deep copy of the configuration with all amount fields
// non-nil.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	clone.TokensForSale = cloneBigInt(c.TokensForSale)
	clone.SoftCap = cloneBigInt(c.SoftCap)
	clone.HardCap = cloneBigInt(c.HardCap)
	clone.Rate = cloneBigInt(c.Rate)
	clone.MinContribution = cloneBigInt(c.MinContribution)
	clone.MaxContribution = cloneBigInt(c.MaxContribution)
	return &clone
}

// SanitizeConfig validates and normalises the supplied configuration,
// returning a cloned instance with canonical token casing and non-nil amount
// fields. The original value is not mutated.
func SanitizeConfig(c *Config) (*Config, error) {
	if c == nil {
		return nil, fmt.Errorf("nil sale config")
	}
	clone := c.Clone()
	clone.Token = strings.ToUpper(strings.TrimSpace(clone.Token))
	if clone.Token == "" {
		return nil, fmt.Errorf("sale config: token symbol required")
	}
	if clone.TokensForSale.Sign() <= 0 {
		return nil, fmt.Errorf("sale config: tokens for sale must be positive")
	}
	if clone.Rate.Sign() <= 0 {
		return nil, fmt.Errorf("sale config: rate must be positive")
	}
	if clone.HardCap.Sign() <= 0 {
		return nil, fmt.Errorf("sale config: hard cap must be positive")
	}
	if clone.SoftCap.Sign() < 0 {
		return nil, fmt.Errorf("sale config: soft cap must not be negative")
	}
	if clone.SoftCap.Cmp(clone.HardCap) > 0 {
		return nil, fmt.Errorf("sale config: soft cap exceeds hard cap")
	}
	if clone.StartTime >= clone.EndTime {
		return nil, fmt.Errorf("sale config: start time must precede end time")
	}
	if clone.MinContribution.Sign() <= 0 {
		return nil, fmt.Errorf("sale config: minimum contribution must be positive")
	}
	if clone.MinContribution.Cmp(clone.MaxContribution) > 0 {
		return nil, fmt.Errorf("sale config: minimum contribution exceeds maximum")
	}
	if clone.CreatorPercent > 100 {
		return nil, fmt.Errorf("sale config: creator percent out of range: %d", clone.CreatorPercent)
	}
	return clone, nil
}

// ValidateSchedule checks that the tranches have strictly increasing unlock
// times and fractions summing to exactly one whole allocation.
func ValidateSchedule(schedule []VestingTranche) error {
	if len(schedule) == 0 {
		return fmt.Errorf("vesting schedule: at least one tranche required")
	}
	var sum uint64
	var prev uint64
	for i, tranche := range schedule {
		if i > 0 && tranche.UnlockTime <= prev {
			return fmt.Errorf("vesting schedule: unlock times must be strictly increasing")
		}
		prev = tranche.UnlockTime
		if tranche.FractionBps > fractionDenominator {
			return fmt.Errorf("vesting schedule: tranche fraction out of range: %d", tranche.FractionBps)
		}
		sum += uint64(tranche.FractionBps)
	}
	if sum != fractionDenominator {
		return fmt.Errorf("vesting schedule: fractions must sum to %d basis points, got %d", fractionDenominator, sum)
	}
	return nil
}

// VestedBps returns the cumulative basis points unlocked by the schedule at
// the provided time.
func VestedBps(schedule []VestingTranche, now uint64) uint32 {
	var sum uint32
	for _, tranche := range schedule {
		if tranche.UnlockTime <= now {
			sum += tranche.FractionBps
		}
	}
	if sum > fractionDenominator {
		sum = fractionDenominator
	}
	return sum
}

// Sale is the persisted record of one deployed sale instance.
type Sale struct {
	Address         [20]byte
	Config          Config
	Metadata        string
	Schedule        []VestingTranche
	TokensAvailable *big.Int
	Raised          *big.Int
	Finalized       bool
	CreatedAt       uint64
}

// Clone returns a deep copy of the sale record.
func (s *Sale) Clone() *Sale {
	if s == nil {
		return nil
	}
	clone := *s
	if cfg := s.Config.Clone(); cfg != nil {
		clone.Config = *cfg
	}
	clone.Schedule = append([]VestingTranche(nil), s.Schedule...)
	clone.TokensAvailable = cloneBigInt(s.TokensAvailable)
	clone.Raised = cloneBigInt(s.Raised)
	return &clone
}

// StatusAt reports the lifecycle position of the sale at the given time.
func (s *Sale) StatusAt(now uint64) Status {
	if s == nil {
		return StatusPending
	}
	if s.Finalized {
		return StatusEnded
	}
	if now < s.Config.StartTime {
		return StatusPending
	}
	return StatusOpen
}

// TokensForContribution converts a base-currency amount into purchased asset
// token units at the configured rate.
func TokensForContribution(rate, amount *big.Int) *big.Int {
	if rate == nil || amount == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(amount, rate)
}

// Participant is the per-address ledger entry of a single sale: purchased
// token balance, contributed currency, cumulative vested amount already
// released, and the whitelist/ban toggles.
type Participant struct {
	Purchased   *big.Int
	Contributed *big.Int
	Released    *big.Int
	Whitelisted bool
	Banned      bool
}

// NewParticipant returns an empty ledger entry.
func NewParticipant() *Participant {
	return &Participant{
		Purchased:   big.NewInt(0),
		Contributed: big.NewInt(0),
		Released:    big.NewInt(0),
	}
}

// Clone returns a deep copy of the participant record with non-nil amounts.
func (p *Participant) Clone() *Participant {
	if p == nil {
		return NewParticipant()
	}
	clone := *p
	clone.Purchased = cloneBigInt(p.Purchased)
	clone.Contributed = cloneBigInt(p.Contributed)
	clone.Released = cloneBigInt(p.Released)
	return &clone
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
