package launchpad

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"launchpad/core/events"
	"launchpad/core/types"
	"launchpad/native/common"
	"launchpad/native/sale"
)

// ModuleName is the pause-switch identifier for the factory module.
const ModuleName = "launchpad"

// RoleFeeWithdrawer marks addresses allowed to withdraw accumulated creation
// fees alongside the factory owner.
const RoleFeeWithdrawer = "ROLE_FEE_WITHDRAWER"

// MinSaleLeadTime is the minimum distance between deployment and the sale's
// start, in seconds.
const MinSaleLeadTime uint64 = 24 * 60 * 60

var (
	errNilState = errors.New("launchpad engine: state not configured")

	ErrNotInitialized        = errors.New("launchpad engine: params not initialized")
	ErrAlreadyInitialized    = errors.New("launchpad engine: params already initialized")
	ErrNotOwner              = errors.New("launchpad engine: caller is not the owner")
	ErrFeeUnderpaid          = errors.New("launchpad engine: creation fee underpaid")
	ErrLeadTimeTooShort      = errors.New("launchpad engine: sale start violates minimum lead time")
	ErrSaleExists            = errors.New("launchpad engine: sale already deployed at derived address")
	ErrUnknownToken          = errors.New("launchpad engine: token not registered")
	ErrInsufficientAllowance = errors.New("launchpad engine: insufficient token allowance")
	ErrInsufficientBalance   = errors.New("launchpad engine: insufficient balance")
	ErrFeePercentRange       = errors.New("launchpad engine: fee percent out of range")
)

// Params is the factory's persisted configuration: owner, flat creation fee,
// the creator profit-share percentage stamped into new sales, and the
// monotonic salt counter.
type Params struct {
	Owner       [20]byte
	CreationFee *big.Int
	FeePercent  uint32
	Counter     uint64
}

// Clone returns a deep copy of the params with a non-nil fee.
func (p *Params) Clone() *Params {
	if p == nil {
		return nil
	}
	clone := *p
	if p.CreationFee != nil {
		clone.CreationFee = new(big.Int).Set(p.CreationFee)
	} else {
		clone.CreationFee = big.NewInt(0)
	}
	return &clone
}

type engineState interface {
	SaleGet(addr [20]byte) (*sale.Sale, bool, error)
	SalePut(s *sale.Sale) error
	SaleParticipantPut(saleAddr, participant [20]byte, p *sale.Participant) error
	SaleIndexAppend(addr [20]byte) error
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
	TokenExists(symbol string) bool
	TokenBalance(addr []byte, symbol string) (*big.Int, error)
	SetTokenBalance(addr []byte, symbol string, amount *big.Int) error
	TokenAllowance(symbol string, owner, spender [20]byte) (*big.Int, error)
	SetTokenAllowance(symbol string, owner, spender [20]byte, amount *big.Int) error
	LaunchParamsGet() (*Params, bool, error)
	LaunchParamsPut(p *Params) error
	IsPaused(module string) bool
	HasRole(role string, addr []byte) bool
}

// Engine deploys sale instances at deterministic addresses, escrowing the
// creator's token allocation and collecting the flat creation fee.
type Engine struct {
	state   engineState
	emitter events.Emitter
	latch   *common.Latch
	factory [20]byte
	nowFn   func() int64
}

// NewEngine creates a factory engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		latch:   common.NewLatch(),
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetFactoryAddress configures the factory identity: the account accumulating
// creation fees and one of the deterministic-address derivation inputs.
func (e *Engine) SetFactoryAddress(addr [20]byte) { e.factory = addr }

// FactoryAddress returns the configured factory identity.
func (e *Engine) FactoryAddress() [20]byte { return e.factory }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(launchEvent{evt: evt})
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

// DeriveSaleAddress computes the deterministic deployment address for the
// given salt inputs. The derivation is reproducible by any client wanting to
// predict an address before deployment: keccak256 over the big-endian
// timestamp, the factory and admin identities, the canonical token symbol and
// the factory's big-endian salt counter, taking the low 20 bytes of the hash.
func DeriveSaleAddress(timestamp uint64, factory, admin [20]byte, token string, counter uint64) [20]byte {
	var tsBuf, ctrBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], timestamp)
	binary.BigEndian.PutUint64(ctrBuf[:], counter)
	normalized := strings.ToUpper(strings.TrimSpace(token))
	hash := ethcrypto.Keccak256(tsBuf[:], factory[:], admin[:], []byte(normalized), ctrBuf[:])
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}

// Initialize stores the factory params. It fails if params already exist.
func (e *Engine) Initialize(owner [20]byte, creationFee *big.Int, feePercent uint32) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if feePercent > 100 {
		return ErrFeePercentRange
	}
	if _, ok, err := e.state.LaunchParamsGet(); err != nil {
		return err
	} else if ok {
		return ErrAlreadyInitialized
	}
	fee := big.NewInt(0)
	if creationFee != nil {
		if creationFee.Sign() < 0 {
			return fmt.Errorf("launchpad engine: creation fee must not be negative")
		}
		fee = new(big.Int).Set(creationFee)
	}
	params := &Params{Owner: owner, CreationFee: fee, FeePercent: feePercent}
	if err := e.state.LaunchParamsPut(params); err != nil {
		return err
	}
	e.emit(NewParamsUpdatedEvent(params))
	return nil
}

func (e *Engine) loadParams() (*Params, error) {
	params, ok, err := e.state.LaunchParamsGet()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return params.Clone(), nil
}

// CreateSale validates the configuration, collects the creation fee, deploys
// a regular sale at the derived deterministic address and escrows the
// caller's token allocation into it.
func (e *Engine) CreateSale(caller [20]byte, cfg *sale.Config, metadata string, feePaid *big.Int, whitelist [][20]byte) (*sale.Sale, error) {
	return e.create(caller, cfg, nil, metadata, feePaid, whitelist)
}

// CreateVestingSale deploys a vesting sale with the supplied release
// schedule.
func (e *Engine) CreateVestingSale(caller [20]byte, cfg *sale.Config, schedule []sale.VestingTranche, metadata string, feePaid *big.Int, whitelist [][20]byte) (*sale.Sale, error) {
	if err := sale.ValidateSchedule(schedule); err != nil {
		return nil, err
	}
	return e.create(caller, cfg, schedule, metadata, feePaid, whitelist)
}

func (e *Engine) create(caller [20]byte, cfg *sale.Config, schedule []sale.VestingTranche, metadata string, feePaid *big.Int, whitelist [][20]byte) (*sale.Sale, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := common.Guard(e.state, ModuleName); err != nil {
		return nil, err
	}
	if err := e.latch.Acquire(e.factory); err != nil {
		return nil, err
	}
	defer e.latch.Release(e.factory)

	params, err := e.loadParams()
	if err != nil {
		return nil, err
	}
	sanitized, err := sale.SanitizeConfig(cfg)
	if err != nil {
		return nil, err
	}
	sanitized.Vesting = len(schedule) > 0
	sanitized.CreatorPercent = params.FeePercent

	fee := big.NewInt(0)
	if feePaid != nil {
		fee = new(big.Int).Set(feePaid)
	}
	if fee.Cmp(params.CreationFee) < 0 {
		return nil, ErrFeeUnderpaid
	}
	if !e.state.TokenExists(sanitized.Token) {
		return nil, ErrUnknownToken
	}
	now := e.now()
	if sanitized.StartTime <= now+MinSaleLeadTime {
		return nil, ErrLeadTimeTooShort
	}

	addr := DeriveSaleAddress(now, e.factory, sanitized.Admin, sanitized.Token, params.Counter)
	if _, exists, err := e.state.SaleGet(addr); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrSaleExists
	}

	// Resource checks precede every transfer so a failure leaves no partial
	// state behind.
	allowance, err := e.state.TokenAllowance(sanitized.Token, caller, e.factory)
	if err != nil {
		return nil, err
	}
	if allowance.Cmp(sanitized.TokensForSale) < 0 {
		return nil, ErrInsufficientAllowance
	}
	callerTokens, err := e.state.TokenBalance(caller[:], sanitized.Token)
	if err != nil {
		return nil, err
	}
	if callerTokens.Cmp(sanitized.TokensForSale) < 0 {
		return nil, ErrInsufficientBalance
	}
	callerAcc, err := e.state.GetAccount(caller[:])
	if err != nil {
		return nil, err
	}
	if callerAcc == nil || callerAcc.Balance == nil || callerAcc.Balance.Cmp(fee) < 0 {
		return nil, ErrInsufficientBalance
	}

	if err := e.transferCurrency(caller, e.factory, fee); err != nil {
		return nil, err
	}
	if err := e.pullTokens(caller, addr, sanitized.Token, sanitized.TokensForSale); err != nil {
		return nil, err
	}

	record := &sale.Sale{
		Address:         addr,
		Config:          *sanitized,
		Metadata:        strings.TrimSpace(metadata),
		Schedule:        append([]sale.VestingTranche(nil), schedule...),
		TokensAvailable: new(big.Int).Set(sanitized.TokensForSale),
		Raised:          big.NewInt(0),
		CreatedAt:       now,
	}
	if err := e.state.SalePut(record); err != nil {
		return nil, err
	}
	for _, member := range whitelist {
		entry := sale.NewParticipant()
		entry.Whitelisted = true
		if err := e.state.SaleParticipantPut(addr, member, entry); err != nil {
			return nil, err
		}
	}
	if err := e.state.SaleIndexAppend(addr); err != nil {
		return nil, err
	}
	params.Counter++
	if err := e.state.LaunchParamsPut(params); err != nil {
		return nil, err
	}
	e.emit(NewSaleCreatedEvent(record, params.Counter-1))
	return record.Clone(), nil
}

func (e *Engine) transferCurrency(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	fromAcc, err := e.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	toAcc, err := e.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	if fromAcc == nil || fromAcc.Balance == nil || fromAcc.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if toAcc == nil {
		toAcc = &types.Account{Balance: big.NewInt(0)}
	}
	if toAcc.Balance == nil {
		toAcc.Balance = big.NewInt(0)
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amount)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amount)
	if err := e.state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to[:], toAcc)
}

// pullTokens consumes the caller's allowance granted to the factory and moves
// the allocation into the sale address.
func (e *Engine) pullTokens(from, to [20]byte, symbol string, amount *big.Int) error {
	allowance, err := e.state.TokenAllowance(symbol, from, e.factory)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	fromBal, err := e.state.TokenBalance(from[:], symbol)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBal, err := e.state.TokenBalance(to[:], symbol)
	if err != nil {
		return err
	}
	if err := e.state.SetTokenAllowance(symbol, from, e.factory, new(big.Int).Sub(allowance, amount)); err != nil {
		return err
	}
	if err := e.state.SetTokenBalance(from[:], symbol, new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return e.state.SetTokenBalance(to[:], symbol, new(big.Int).Add(toBal, amount))
}

// SetFeePercent updates the creator profit-share percentage stamped into
// future sales. Owner only.
func (e *Engine) SetFeePercent(caller [20]byte, percent uint32) error {
	if percent > 100 {
		return ErrFeePercentRange
	}
	return e.updateParams(caller, func(p *Params) {
		p.FeePercent = percent
	})
}

// SetCreationFee updates the flat creation fee. Owner only.
func (e *Engine) SetCreationFee(caller [20]byte, fee *big.Int) error {
	amount := big.NewInt(0)
	if fee != nil {
		if fee.Sign() < 0 {
			return fmt.Errorf("launchpad engine: creation fee must not be negative")
		}
		amount = new(big.Int).Set(fee)
	}
	return e.updateParams(caller, func(p *Params) {
		p.CreationFee = amount
	})
}

func (e *Engine) updateParams(caller [20]byte, mutate func(*Params)) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := common.Guard(e.state, ModuleName); err != nil {
		return err
	}
	params, err := e.loadParams()
	if err != nil {
		return err
	}
	if caller != params.Owner {
		return ErrNotOwner
	}
	mutate(params)
	if err := e.state.LaunchParamsPut(params); err != nil {
		return err
	}
	e.emit(NewParamsUpdatedEvent(params))
	return nil
}

// WithdrawFees transfers the factory account's accumulated balance to the
// recipient. Allowed for the owner or any holder of RoleFeeWithdrawer.
func (e *Engine) WithdrawFees(caller, to [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := common.Guard(e.state, ModuleName); err != nil {
		return nil, err
	}
	if err := e.latch.Acquire(e.factory); err != nil {
		return nil, err
	}
	defer e.latch.Release(e.factory)

	params, err := e.loadParams()
	if err != nil {
		return nil, err
	}
	if caller != params.Owner && !e.state.HasRole(RoleFeeWithdrawer, caller[:]) {
		return nil, ErrNotOwner
	}
	acc, err := e.state.GetAccount(e.factory[:])
	if err != nil {
		return nil, err
	}
	balance := big.NewInt(0)
	if acc != nil && acc.Balance != nil {
		balance = new(big.Int).Set(acc.Balance)
	}
	if balance.Sign() == 0 {
		return balance, nil
	}
	if err := e.transferCurrency(e.factory, to, balance); err != nil {
		return nil, err
	}
	e.emit(NewFeesWithdrawnEvent(to, balance))
	return balance, nil
}

// RescueToken moves tokens mistakenly sent to the factory account. Owner
// only; the symbol must refer to a registered token.
func (e *Engine) RescueToken(caller [20]byte, symbol string, to [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := common.Guard(e.state, ModuleName); err != nil {
		return err
	}
	if err := e.latch.Acquire(e.factory); err != nil {
		return err
	}
	defer e.latch.Release(e.factory)

	params, err := e.loadParams()
	if err != nil {
		return err
	}
	if caller != params.Owner {
		return ErrNotOwner
	}
	if !e.state.TokenExists(symbol) {
		return ErrUnknownToken
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("launchpad engine: rescue amount must be positive")
	}
	fromBal, err := e.state.TokenBalance(e.factory[:], symbol)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBal, err := e.state.TokenBalance(to[:], symbol)
	if err != nil {
		return err
	}
	if err := e.state.SetTokenBalance(e.factory[:], symbol, new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	if err := e.state.SetTokenBalance(to[:], symbol, new(big.Int).Add(toBal, amount)); err != nil {
		return err
	}
	e.emit(NewTokenRescuedEvent(symbol, to, amount))
	return nil
}

// ParamsInfo returns a copy of the stored factory params.
func (e *Engine) ParamsInfo() (*Params, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadParams()
}
