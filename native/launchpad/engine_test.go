package launchpad

import (
	"errors"
	"math/big"
	"testing"

	"launchpad/core/types"
	"launchpad/native/sale"
)

type mockState struct {
	sales        map[[20]byte]*sale.Sale
	participants map[[40]byte]*sale.Participant
	index        [][20]byte
	accounts     map[[20]byte]*types.Account
	balances     map[string]map[[20]byte]*big.Int
	allowances   map[string]map[[40]byte]*big.Int
	registered   map[string]bool
	params       *Params
	roles        map[string]map[[20]byte]bool
	paused       map[string]bool
}

func newMockState() *mockState {
	return &mockState{
		sales:        make(map[[20]byte]*sale.Sale),
		participants: make(map[[40]byte]*sale.Participant),
		accounts:     make(map[[20]byte]*types.Account),
		balances:     make(map[string]map[[20]byte]*big.Int),
		allowances:   make(map[string]map[[40]byte]*big.Int),
		registered:   make(map[string]bool),
		roles:        make(map[string]map[[20]byte]bool),
		paused:       make(map[string]bool),
	}
}

func pairKey(a, b [20]byte) [40]byte {
	var key [40]byte
	copy(key[:20], a[:])
	copy(key[20:], b[:])
	return key
}

func (m *mockState) SaleGet(addr [20]byte) (*sale.Sale, bool, error) {
	s, ok := m.sales[addr]
	if !ok {
		return nil, false, nil
	}
	return s.Clone(), true, nil
}

func (m *mockState) SalePut(s *sale.Sale) error {
	m.sales[s.Address] = s.Clone()
	return nil
}

func (m *mockState) SaleParticipantPut(saleAddr, addr [20]byte, p *sale.Participant) error {
	m.participants[pairKey(saleAddr, addr)] = p.Clone()
	return nil
}

func (m *mockState) SaleIndexAppend(addr [20]byte) error {
	m.index = append(m.index, addr)
	return nil
}

func (m *mockState) GetAccount(addr []byte) (*types.Account, error) {
	var key [20]byte
	copy(key[:], addr)
	acc, ok := m.accounts[key]
	if !ok {
		return &types.Account{Balance: big.NewInt(0)}, nil
	}
	return acc.Clone(), nil
}

func (m *mockState) PutAccount(addr []byte, account *types.Account) error {
	var key [20]byte
	copy(key[:], addr)
	m.accounts[key] = account.Clone()
	return nil
}

func (m *mockState) TokenExists(symbol string) bool {
	return m.registered[symbol]
}

func (m *mockState) TokenBalance(addr []byte, symbol string) (*big.Int, error) {
	var key [20]byte
	copy(key[:], addr)
	book, ok := m.balances[symbol]
	if !ok {
		return big.NewInt(0), nil
	}
	balance, ok := book[key]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(balance), nil
}

func (m *mockState) SetTokenBalance(addr []byte, symbol string, amount *big.Int) error {
	var key [20]byte
	copy(key[:], addr)
	book, ok := m.balances[symbol]
	if !ok {
		book = make(map[[20]byte]*big.Int)
		m.balances[symbol] = book
	}
	book[key] = new(big.Int).Set(amount)
	return nil
}

func (m *mockState) TokenAllowance(symbol string, owner, spender [20]byte) (*big.Int, error) {
	book, ok := m.allowances[symbol]
	if !ok {
		return big.NewInt(0), nil
	}
	allowance, ok := book[pairKey(owner, spender)]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(allowance), nil
}

func (m *mockState) SetTokenAllowance(symbol string, owner, spender [20]byte, amount *big.Int) error {
	book, ok := m.allowances[symbol]
	if !ok {
		book = make(map[[40]byte]*big.Int)
		m.allowances[symbol] = book
	}
	book[pairKey(owner, spender)] = new(big.Int).Set(amount)
	return nil
}

func (m *mockState) LaunchParamsGet() (*Params, bool, error) {
	if m.params == nil {
		return nil, false, nil
	}
	return m.params.Clone(), true, nil
}

func (m *mockState) LaunchParamsPut(p *Params) error {
	m.params = p.Clone()
	return nil
}

func (m *mockState) IsPaused(module string) bool {
	return m.paused[module]
}

func (m *mockState) HasRole(role string, addr []byte) bool {
	members, ok := m.roles[role]
	if !ok {
		return false
	}
	var key [20]byte
	copy(key[:], addr)
	return members[key]
}

func testAddr(b byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = b
	}
	return addr
}

const testToken = "ZAPX"

var (
	factoryAddr = testAddr(0xFA)
	ownerAddr   = testAddr(0x01)
	creatorAddr = testAddr(0x02)
	treasury    = testAddr(0x03)
)

type factoryFixture struct {
	engine *Engine
	state  *mockState
	now    int64
}

func newFactoryFixture(t *testing.T) *factoryFixture {
	t.Helper()
	st := newMockState()
	st.registered[testToken] = true
	fx := &factoryFixture{engine: NewEngine(), state: st, now: 1_000_000}
	fx.engine.SetState(st)
	fx.engine.SetFactoryAddress(factoryAddr)
	fx.engine.SetNowFunc(func() int64 { return fx.now })
	if err := fx.engine.Initialize(ownerAddr, big.NewInt(100), 30); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	// Fund the creator with fee currency, token supply and the factory
	// allowance needed to escrow the allocation.
	st.accounts[creatorAddr] = &types.Account{Balance: big.NewInt(1_000)}
	_ = st.SetTokenBalance(creatorAddr[:], testToken, big.NewInt(5_000))
	_ = st.SetTokenAllowance(testToken, creatorAddr, factoryAddr, big.NewInt(5_000))
	return fx
}

func (fx *factoryFixture) config() *sale.Config {
	start := uint64(fx.now) + MinSaleLeadTime + 3_600
	return &sale.Config{
		Token:             testToken,
		Creator:           creatorAddr,
		ProceedsRecipient: treasury,
		Admin:             ownerAddr,
		TokensForSale:     big.NewInt(1_000),
		SoftCap:           big.NewInt(20),
		HardCap:           big.NewInt(80),
		Rate:              big.NewInt(10),
		StartTime:         start,
		EndTime:           start + 86_400,
		MinContribution:   big.NewInt(1),
		MaxContribution:   big.NewInt(50),
	}
}

func TestInitializeOnce(t *testing.T) {
	fx := newFactoryFixture(t)
	if err := fx.engine.Initialize(ownerAddr, big.NewInt(5), 10); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("second initialize = %v, want ErrAlreadyInitialized", err)
	}
	params, err := fx.engine.ParamsInfo()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if params.Owner != ownerAddr || params.FeePercent != 30 {
		t.Fatalf("params = %+v", params)
	}
}

func TestDeriveSaleAddressReproducible(t *testing.T) {
	a := DeriveSaleAddress(42, factoryAddr, ownerAddr, "zapx", 7)
	b := DeriveSaleAddress(42, factoryAddr, ownerAddr, " ZAPX ", 7)
	if a != b {
		t.Fatal("derivation must normalise the token symbol")
	}
	if DeriveSaleAddress(42, factoryAddr, ownerAddr, "ZAPX", 8) == a {
		t.Fatal("counter must perturb the derived address")
	}
	if DeriveSaleAddress(43, factoryAddr, ownerAddr, "ZAPX", 7) == a {
		t.Fatal("timestamp must perturb the derived address")
	}
}

func TestCreateSaleEscrowsAllocation(t *testing.T) {
	fx := newFactoryFixture(t)
	record, err := fx.engine.CreateSale(creatorAddr, fx.config(), "genesis batch", big.NewInt(100), [][20]byte{treasury})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	want := DeriveSaleAddress(uint64(fx.now), factoryAddr, ownerAddr, testToken, 0)
	if record.Address != want {
		t.Fatalf("address = %x, want %x", record.Address, want)
	}
	if record.Config.CreatorPercent != 30 {
		t.Fatalf("creator percent = %d, want fee percent 30", record.Config.CreatorPercent)
	}

	escrowed, err := fx.state.TokenBalance(record.Address[:], testToken)
	if err != nil {
		t.Fatalf("escrow balance: %v", err)
	}
	if escrowed.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("escrowed = %s, want 1000", escrowed)
	}
	creatorTokens, err := fx.state.TokenBalance(creatorAddr[:], testToken)
	if err != nil {
		t.Fatalf("creator tokens: %v", err)
	}
	if creatorTokens.Cmp(big.NewInt(4_000)) != 0 {
		t.Fatalf("creator tokens = %s, want 4000", creatorTokens)
	}
	allowance, err := fx.state.TokenAllowance(testToken, creatorAddr, factoryAddr)
	if err != nil {
		t.Fatalf("allowance: %v", err)
	}
	if allowance.Cmp(big.NewInt(4_000)) != 0 {
		t.Fatalf("allowance = %s, want 4000", allowance)
	}

	factoryAcc, err := fx.state.GetAccount(factoryAddr[:])
	if err != nil {
		t.Fatalf("factory account: %v", err)
	}
	if factoryAcc.Balance.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("collected fee = %s, want 100", factoryAcc.Balance)
	}

	if len(fx.state.index) != 1 || fx.state.index[0] != record.Address {
		t.Fatalf("sale index = %v", fx.state.index)
	}
	entry, ok := fx.state.participants[pairKey(record.Address, treasury)]
	if !ok || !entry.Whitelisted {
		t.Fatal("initial whitelist entry missing")
	}
	params, err := fx.engine.ParamsInfo()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if params.Counter != 1 {
		t.Fatalf("counter = %d, want 1", params.Counter)
	}
}

func TestCreateSaleRejections(t *testing.T) {
	fx := newFactoryFixture(t)

	if _, err := fx.engine.CreateSale(creatorAddr, fx.config(), "", big.NewInt(99), nil); !errors.Is(err, ErrFeeUnderpaid) {
		t.Fatalf("underpaid fee = %v, want ErrFeeUnderpaid", err)
	}

	cfg := fx.config()
	cfg.Token = "MISSING"
	if _, err := fx.engine.CreateSale(creatorAddr, cfg, "", big.NewInt(100), nil); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("unknown token = %v, want ErrUnknownToken", err)
	}

	cfg = fx.config()
	cfg.StartTime = uint64(fx.now) + MinSaleLeadTime
	if _, err := fx.engine.CreateSale(creatorAddr, cfg, "", big.NewInt(100), nil); !errors.Is(err, ErrLeadTimeTooShort) {
		t.Fatalf("short lead time = %v, want ErrLeadTimeTooShort", err)
	}

	_ = fx.state.SetTokenAllowance(testToken, creatorAddr, factoryAddr, big.NewInt(10))
	if _, err := fx.engine.CreateSale(creatorAddr, fx.config(), "", big.NewInt(100), nil); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("thin allowance = %v, want ErrInsufficientAllowance", err)
	}
	_ = fx.state.SetTokenAllowance(testToken, creatorAddr, factoryAddr, big.NewInt(5_000))

	_ = fx.state.SetTokenBalance(creatorAddr[:], testToken, big.NewInt(10))
	if _, err := fx.engine.CreateSale(creatorAddr, fx.config(), "", big.NewInt(100), nil); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("thin token balance = %v, want ErrInsufficientBalance", err)
	}
	_ = fx.state.SetTokenBalance(creatorAddr[:], testToken, big.NewInt(5_000))

	fx.state.accounts[creatorAddr] = &types.Account{Balance: big.NewInt(1)}
	if _, err := fx.engine.CreateSale(creatorAddr, fx.config(), "", big.NewInt(100), nil); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("thin fee balance = %v, want ErrInsufficientBalance", err)
	}
}

func TestCreateSaleAddressCollision(t *testing.T) {
	fx := newFactoryFixture(t)
	derived := DeriveSaleAddress(uint64(fx.now), factoryAddr, ownerAddr, testToken, 0)
	fx.state.sales[derived] = &sale.Sale{Address: derived, TokensAvailable: big.NewInt(0), Raised: big.NewInt(0)}
	if _, err := fx.engine.CreateSale(creatorAddr, fx.config(), "", big.NewInt(100), nil); !errors.Is(err, ErrSaleExists) {
		t.Fatalf("collision = %v, want ErrSaleExists", err)
	}
}

func TestCreateVestingSale(t *testing.T) {
	fx := newFactoryFixture(t)
	start := uint64(fx.now) + MinSaleLeadTime + 3_600
	schedule := []sale.VestingTranche{
		{UnlockTime: start + 90_000, FractionBps: 4_000},
		{UnlockTime: start + 180_000, FractionBps: 6_000},
	}
	record, err := fx.engine.CreateVestingSale(creatorAddr, fx.config(), schedule, "", big.NewInt(100), nil)
	if err != nil {
		t.Fatalf("create vesting sale: %v", err)
	}
	if !record.Config.Vesting {
		t.Fatal("vesting flag not set")
	}
	if len(record.Schedule) != 2 {
		t.Fatalf("schedule length = %d, want 2", len(record.Schedule))
	}

	if _, err := fx.engine.CreateVestingSale(creatorAddr, fx.config(), []sale.VestingTranche{
		{UnlockTime: start, FractionBps: 1_000},
	}, "", big.NewInt(100), nil); err == nil {
		t.Fatal("underfilled schedule accepted")
	}
}

func TestParamsUpdatesOwnerOnly(t *testing.T) {
	fx := newFactoryFixture(t)
	if err := fx.engine.SetFeePercent(creatorAddr, 10); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("non-owner fee percent = %v, want ErrNotOwner", err)
	}
	if err := fx.engine.SetFeePercent(ownerAddr, 101); !errors.Is(err, ErrFeePercentRange) {
		t.Fatalf("out-of-range percent = %v, want ErrFeePercentRange", err)
	}
	if err := fx.engine.SetFeePercent(ownerAddr, 10); err != nil {
		t.Fatalf("set fee percent: %v", err)
	}
	if err := fx.engine.SetCreationFee(ownerAddr, big.NewInt(250)); err != nil {
		t.Fatalf("set creation fee: %v", err)
	}
	params, err := fx.engine.ParamsInfo()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if params.FeePercent != 10 || params.CreationFee.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("params = %+v", params)
	}
}

func TestWithdrawFees(t *testing.T) {
	fx := newFactoryFixture(t)
	if _, err := fx.engine.CreateSale(creatorAddr, fx.config(), "", big.NewInt(100), nil); err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if _, err := fx.engine.WithdrawFees(creatorAddr, treasury); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("unauthorised withdraw = %v, want ErrNotOwner", err)
	}
	amount, err := fx.engine.WithdrawFees(ownerAddr, treasury)
	if err != nil {
		t.Fatalf("withdraw fees: %v", err)
	}
	if amount.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("withdrawn = %s, want 100", amount)
	}
	treasuryAcc, err := fx.state.GetAccount(treasury[:])
	if err != nil {
		t.Fatalf("treasury account: %v", err)
	}
	if treasuryAcc.Balance.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("treasury balance = %s, want 100", treasuryAcc.Balance)
	}

	// Role holders can drain fees without owning the factory.
	fx.state.roles[RoleFeeWithdrawer] = map[[20]byte]bool{creatorAddr: true}
	if _, err := fx.engine.WithdrawFees(creatorAddr, treasury); err != nil {
		t.Fatalf("role withdraw: %v", err)
	}
}

func TestFactoryRescueToken(t *testing.T) {
	fx := newFactoryFixture(t)
	_ = fx.state.SetTokenBalance(factoryAddr[:], testToken, big.NewInt(77))
	if err := fx.engine.RescueToken(creatorAddr, testToken, treasury, big.NewInt(77)); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("non-owner rescue = %v, want ErrNotOwner", err)
	}
	if err := fx.engine.RescueToken(ownerAddr, testToken, treasury, big.NewInt(77)); err != nil {
		t.Fatalf("rescue: %v", err)
	}
	balance, err := fx.state.TokenBalance(treasury[:], testToken)
	if err != nil {
		t.Fatalf("treasury tokens: %v", err)
	}
	if balance.Cmp(big.NewInt(77)) != 0 {
		t.Fatalf("rescued = %s, want 77", balance)
	}
}
