package sale

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"launchpad/core/events"
	"launchpad/core/types"
	"launchpad/native/common"
)

// ModuleName is the pause-switch identifier for the sale module.
const ModuleName = "sale"

var (
	errNilState = errors.New("sale engine: state not configured")

	ErrSaleNotFound         = errors.New("sale engine: sale not found")
	ErrNotAdmin             = errors.New("sale engine: caller is not the sale admin")
	ErrNotWhitelisted       = errors.New("sale engine: caller is not whitelisted")
	ErrBanned               = errors.New("sale engine: caller is banned")
	ErrSaleNotOpen          = errors.New("sale engine: sale has not opened yet")
	ErrSaleEnded            = errors.New("sale engine: sale already finalized")
	ErrAlreadyFinalized     = errors.New("sale engine: sale already finalized")
	ErrHardCapExceeded      = errors.New("sale engine: contribution would exceed hard cap")
	ErrInsufficientSupply   = errors.New("sale engine: insufficient token supply")
	ErrBelowMinContribution = errors.New("sale engine: contribution below minimum")
	ErrAboveMaxContribution = errors.New("sale engine: contribution above maximum")
	ErrWithdrawUnavailable  = errors.New("sale engine: withdrawals locked until sale end")
	ErrNothingToWithdraw    = errors.New("sale engine: nothing to withdraw")
	ErrNothingVested        = errors.New("sale engine: nothing vested")
	ErrInsufficientFunds    = errors.New("sale engine: insufficient balance")
	ErrUnknownToken         = errors.New("sale engine: token not registered")
)

type engineState interface {
	SaleGet(addr [20]byte) (*Sale, bool, error)
	SalePut(s *Sale) error
	SaleParticipantGet(saleAddr, participant [20]byte) (*Participant, bool, error)
	SaleParticipantPut(saleAddr, participant [20]byte, p *Participant) error
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
	TokenExists(symbol string) bool
	TokenBalance(addr []byte, symbol string) (*big.Int, error)
	SetTokenBalance(addr []byte, symbol string, amount *big.Int) error
	IsPaused(module string) bool
}

// Engine enforces the sale lifecycle state machine over persisted sale
// records, participant ledgers and account balances.
type Engine struct {
	state   engineState
	emitter events.Emitter
	latch   *common.Latch
	nowFn   func() int64
}

// NewEngine creates a sale engine with a no-op emitter. Callers can override
// the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		latch:   common.NewLatch(),
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(saleEvent{evt: event})
}

func (e *Engine) now() uint64 {
	if e == nil || e.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	ts := e.nowFn()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (e *Engine) loadSale(addr [20]byte) (*Sale, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	s, ok, err := e.state.SaleGet(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSaleNotFound
	}
	return s, nil
}

func (e *Engine) loadParticipant(saleAddr, addr [20]byte) (*Participant, error) {
	p, ok, err := e.state.SaleParticipantGet(saleAddr, addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return NewParticipant(), nil
	}
	return p.Clone(), nil
}

func ensureAccount(acc *types.Account) *types.Account {
	if acc == nil {
		return &types.Account{Balance: big.NewInt(0)}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}

func (e *Engine) transferCurrency(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("sale engine: negative transfer amount")
	}
	fromAcc, err := e.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	toAcc, err := e.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	fromAcc = ensureAccount(fromAcc)
	toAcc = ensureAccount(toAcc)
	if fromAcc.Balance.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amount)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amount)
	if err := e.state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to[:], toAcc)
}

func (e *Engine) transferToken(from, to [20]byte, symbol string, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("sale engine: negative transfer amount")
	}
	fromBal, err := e.state.TokenBalance(from[:], symbol)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	toBal, err := e.state.TokenBalance(to[:], symbol)
	if err != nil {
		return err
	}
	if err := e.state.SetTokenBalance(from[:], symbol, new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return e.state.SetTokenBalance(to[:], symbol, new(big.Int).Add(toBal, amount))
}

// Contribute accepts a base-currency payment from a whitelisted participant
// and credits the corresponding asset-token allocation to their ledger entry.
func (e *Engine) Contribute(saleAddr, caller [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := common.Guard(e.state, ModuleName); err != nil {
		return err
	}
	if err := e.latch.Acquire(saleAddr); err != nil {
		return err
	}
	defer e.latch.Release(saleAddr)

	s, err := e.loadSale(saleAddr)
	if err != nil {
		return err
	}
	p, err := e.loadParticipant(saleAddr, caller)
	if err != nil {
		return err
	}
	if p.Banned {
		return ErrBanned
	}
	if !p.Whitelisted {
		return ErrNotWhitelisted
	}
	if s.Finalized {
		return ErrSaleEnded
	}
	now := e.now()
	if now < s.Config.StartTime {
		return ErrSaleNotOpen
	}
	amt := cloneBigInt(amount)
	if amt.Cmp(s.Config.MinContribution) < 0 {
		return ErrBelowMinContribution
	}
	if amt.Cmp(s.Config.MaxContribution) > 0 {
		return ErrAboveMaxContribution
	}
	if s.Raised.Cmp(s.Config.HardCap) >= 0 {
		return ErrHardCapExceeded
	}
	newRaised := new(big.Int).Add(s.Raised, amt)
	if newRaised.Cmp(s.Config.HardCap) > 0 {
		return ErrHardCapExceeded
	}
	tokens := TokensForContribution(s.Config.Rate, amt)
	if tokens.Cmp(s.TokensAvailable) > 0 {
		return ErrInsufficientSupply
	}

	if err := e.transferCurrency(caller, saleAddr, amt); err != nil {
		return err
	}
	p.Purchased = new(big.Int).Add(p.Purchased, tokens)
	p.Contributed = new(big.Int).Add(p.Contributed, amt)
	s.TokensAvailable = new(big.Int).Sub(s.TokensAvailable, tokens)
	s.Raised = newRaised
	if err := e.state.SaleParticipantPut(saleAddr, caller, p); err != nil {
		return err
	}
	if err := e.state.SalePut(s); err != nil {
		return err
	}
	e.emit(NewContributionEvent(s, caller, amt, tokens))
	return nil
}

// Withdraw releases purchased tokens to the caller. Withdrawals are permitted
// whenever the sale has not been finalized, or once the configured end time
// has passed. For vesting sales only the vested-to-date delta is released.
func (e *Engine) Withdraw(saleAddr, caller [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := common.Guard(e.state, ModuleName); err != nil {
		return nil, err
	}
	if err := e.latch.Acquire(saleAddr); err != nil {
		return nil, err
	}
	defer e.latch.Release(saleAddr)

	s, err := e.loadSale(saleAddr)
	if err != nil {
		return nil, err
	}
	now := e.now()
	if s.Finalized && now < s.Config.EndTime {
		return nil, ErrWithdrawUnavailable
	}
	p, err := e.loadParticipant(saleAddr, caller)
	if err != nil {
		return nil, err
	}
	if s.Config.Vesting {
		return e.withdrawVested(s, caller, p, now)
	}
	if p.Purchased.Sign() == 0 {
		return nil, ErrNothingToWithdraw
	}
	amount := cloneBigInt(p.Purchased)
	if err := e.transferToken(saleAddr, caller, s.Config.Token, amount); err != nil {
		return nil, err
	}
	p.Purchased = big.NewInt(0)
	if err := e.state.SaleParticipantPut(saleAddr, caller, p); err != nil {
		return nil, err
	}
	e.emit(NewTokensWithdrawnEvent(s, caller, amount))
	return amount, nil
}

// EmergencyWithdraw is the participant's unilateral exit path prior to
// finalization: it refunds the full contributed amount and restores the still
// escrowed token units to the sale's available supply.
func (e *Engine) EmergencyWithdraw(saleAddr, caller [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := common.Guard(e.state, ModuleName); err != nil {
		return nil, err
	}
	if err := e.latch.Acquire(saleAddr); err != nil {
		return nil, err
	}
	defer e.latch.Release(saleAddr)

	s, err := e.loadSale(saleAddr)
	if err != nil {
		return nil, err
	}
	if s.Finalized {
		return nil, ErrSaleEnded
	}
	p, err := e.loadParticipant(saleAddr, caller)
	if err != nil {
		return nil, err
	}
	if p.Contributed.Sign() == 0 {
		return nil, ErrNothingToWithdraw
	}
	refund := cloneBigInt(p.Contributed)
	// Tokens already released under a vesting schedule have left escrow and
	// cannot return to the pool.
	restore := new(big.Int).Sub(p.Purchased, p.Released)
	if restore.Sign() < 0 {
		restore = big.NewInt(0)
	}
	if err := e.transferCurrency(saleAddr, caller, refund); err != nil {
		return nil, err
	}
	s.TokensAvailable = new(big.Int).Add(s.TokensAvailable, restore)
	s.Raised = new(big.Int).Sub(s.Raised, refund)
	p.Purchased = big.NewInt(0)
	p.Contributed = big.NewInt(0)
	p.Released = big.NewInt(0)
	if err := e.state.SaleParticipantPut(saleAddr, caller, p); err != nil {
		return nil, err
	}
	if err := e.state.SalePut(s); err != nil {
		return nil, err
	}
	e.emit(NewEmergencyRefundEvent(s, caller, refund, restore))
	return refund, nil
}

// Finalize irreversibly ends fundraising: the collected currency is split
// between creator and proceeds recipient and unsold tokens are swept to the
// proceeds recipient.
func (e *Engine) Finalize(saleAddr, caller [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := common.Guard(e.state, ModuleName); err != nil {
		return err
	}
	if err := e.latch.Acquire(saleAddr); err != nil {
		return err
	}
	defer e.latch.Release(saleAddr)

	s, err := e.loadSale(saleAddr)
	if err != nil {
		return err
	}
	if caller != s.Config.Admin {
		return ErrNotAdmin
	}
	if s.Finalized {
		return ErrAlreadyFinalized
	}
	acc, err := e.state.GetAccount(saleAddr[:])
	if err != nil {
		return err
	}
	collected := cloneBigInt(ensureAccount(acc).Balance)
	creatorShare := new(big.Int).Mul(collected, new(big.Int).SetUint64(uint64(s.Config.CreatorPercent)))
	creatorShare.Div(creatorShare, big.NewInt(100))
	remainder := new(big.Int).Sub(collected, creatorShare)
	if creatorShare.Sign() > 0 {
		if err := e.transferCurrency(saleAddr, s.Config.Creator, creatorShare); err != nil {
			return err
		}
	}
	if remainder.Sign() > 0 {
		if err := e.transferCurrency(saleAddr, s.Config.ProceedsRecipient, remainder); err != nil {
			return err
		}
	}
	unsold := cloneBigInt(s.TokensAvailable)
	if unsold.Sign() > 0 {
		if err := e.transferToken(saleAddr, s.Config.ProceedsRecipient, s.Config.Token, unsold); err != nil {
			return err
		}
	}
	s.TokensAvailable = big.NewInt(0)
	s.Finalized = true
	if err := e.state.SalePut(s); err != nil {
		return err
	}
	e.emit(NewFinalizedEvent(s, collected, creatorShare, remainder, unsold))
	return nil
}

// SwitchWhitelist flips the whitelist toggle for the account. Repeated calls
// alternate the flag; the flip semantics are part of the observable contract.
func (e *Engine) SwitchWhitelist(saleAddr, caller, account [20]byte) (bool, error) {
	return e.switchFlag(saleAddr, caller, account, false)
}

// SwitchBan flips the ban toggle for the account.
func (e *Engine) SwitchBan(saleAddr, caller, account [20]byte) (bool, error) {
	return e.switchFlag(saleAddr, caller, account, true)
}

func (e *Engine) switchFlag(saleAddr, caller, account [20]byte, ban bool) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	if err := common.Guard(e.state, ModuleName); err != nil {
		return false, err
	}
	s, err := e.loadSale(saleAddr)
	if err != nil {
		return false, err
	}
	if caller != s.Config.Admin {
		return false, ErrNotAdmin
	}
	p, err := e.loadParticipant(saleAddr, account)
	if err != nil {
		return false, err
	}
	var state bool
	if ban {
		p.Banned = !p.Banned
		state = p.Banned
	} else {
		p.Whitelisted = !p.Whitelisted
		state = p.Whitelisted
	}
	if err := e.state.SaleParticipantPut(saleAddr, account, p); err != nil {
		return false, err
	}
	if ban {
		e.emit(NewBanSwitchedEvent(s, account, state))
	} else {
		e.emit(NewWhitelistSwitchedEvent(s, account, state))
	}
	return state, nil
}

// RescueToken moves tokens mistakenly sent to the sale instance to the
// provided recipient. Admin only; the symbol must refer to a registered
// token.
func (e *Engine) RescueToken(saleAddr, caller [20]byte, symbol string, to [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := common.Guard(e.state, ModuleName); err != nil {
		return err
	}
	if err := e.latch.Acquire(saleAddr); err != nil {
		return err
	}
	defer e.latch.Release(saleAddr)

	s, err := e.loadSale(saleAddr)
	if err != nil {
		return err
	}
	if caller != s.Config.Admin {
		return ErrNotAdmin
	}
	if !e.state.TokenExists(symbol) {
		return ErrUnknownToken
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return fmt.Errorf("sale engine: rescue amount must be positive")
	}
	if err := e.transferToken(saleAddr, to, symbol, amt); err != nil {
		return err
	}
	e.emit(NewTokenRescuedEvent(s, symbol, to, amt))
	return nil
}

// SaleInfo returns a copy of the sale record.
func (e *Engine) SaleInfo(saleAddr [20]byte) (*Sale, error) {
	s, err := e.loadSale(saleAddr)
	if err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

// ParticipantInfo returns a copy of the participant's ledger entry. Unknown
// participants yield an empty record.
func (e *Engine) ParticipantInfo(saleAddr, addr [20]byte) (*Participant, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if _, err := e.loadSale(saleAddr); err != nil {
		return nil, err
	}
	return e.loadParticipant(saleAddr, addr)
}
