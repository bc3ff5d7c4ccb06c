package core

import (
	"fmt"
	"math/big"
	"sync"

	"launchpad/core/events"
	"launchpad/core/types"
	"launchpad/native/launchpad"
	"launchpad/native/sale"
	"launchpad/state"
	"launchpad/storage"
	"launchpad/storage/trie"
)

var stateRootKey = []byte("launchpad-state-root")

// eventRingSize bounds how many recent events the node retains for RPC
// consumers.
const eventRingSize = 512

type eventCarrier interface {
	Event() *types.Event
}

type eventRing struct {
	mu      sync.Mutex
	entries []types.Event
}

func (r *eventRing) Emit(evt events.Event) {
	carrier, ok := evt.(eventCarrier)
	if !ok || carrier.Event() == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *carrier.Event())
	if len(r.entries) > eventRingSize {
		r.entries = r.entries[len(r.entries)-eventRingSize:]
	}
}

func (r *eventRing) Recent(limit int) []types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 || limit > len(r.entries) {
		limit = len(r.entries)
	}
	out := make([]types.Event, limit)
	copy(out, r.entries[len(r.entries)-limit:])
	return out
}

// Node owns the state trie and the native engines. Every mutating operation
// executes as a single atomic step: on success the trie is committed and the
// new root persisted, on failure the trie is reset to the previous root so no
// partial state change survives.
type Node struct {
	mu      sync.Mutex
	db      storage.Database
	trie    *trie.Trie
	state   *state.Manager
	sales   *sale.Engine
	factory *launchpad.Engine
	ring    *eventRing
	height  uint64
}

// NewNode opens the state trie at the last committed root (or the empty trie
// for a fresh database) and wires the native engines against it.
func NewNode(db storage.Database) (*Node, error) {
	root, err := db.Get(stateRootKey)
	if err != nil {
		// A fresh database has no root pointer yet.
		root = nil
	}
	tr, err := trie.NewTrie(db, root)
	if err != nil {
		return nil, fmt.Errorf("open state trie: %w", err)
	}
	manager := state.NewManager(tr)
	ring := &eventRing{}

	salesEngine := sale.NewEngine()
	salesEngine.SetState(manager)
	salesEngine.SetEmitter(ring)

	factoryEngine := launchpad.NewEngine()
	factoryEngine.SetState(manager)
	factoryEngine.SetEmitter(ring)

	return &Node{
		db:      db,
		trie:    tr,
		state:   manager,
		sales:   salesEngine,
		factory: factoryEngine,
		ring:    ring,
	}, nil
}

// SetFactoryAddress configures the factory identity used for fee escrow and
// address derivation.
func (n *Node) SetFactoryAddress(addr [20]byte) {
	n.factory.SetFactoryAddress(addr)
}

// FactoryAddress returns the configured factory identity.
func (n *Node) FactoryAddress() [20]byte {
	return n.factory.FactoryAddress()
}

// SetNowFunc overrides the time source of both engines, for tests.
func (n *Node) SetNowFunc(now func() int64) {
	n.sales.SetNowFunc(now)
	n.factory.SetNowFunc(now)
}

func (n *Node) withCommit(fn func() error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	root := n.trie.Root()
	if err := fn(); err != nil {
		if resetErr := n.trie.Reset(root); resetErr != nil {
			return fmt.Errorf("rollback after %v: %w", err, resetErr)
		}
		return err
	}
	n.height++
	newRoot, err := n.trie.Commit(root, n.height)
	if err != nil {
		return err
	}
	return n.db.Put(stateRootKey, newRoot.Bytes())
}

// --- Sale operations ---

func (n *Node) Contribute(saleAddr, caller [20]byte, amount *big.Int) error {
	return n.withCommit(func() error {
		return n.sales.Contribute(saleAddr, caller, amount)
	})
}

func (n *Node) Withdraw(saleAddr, caller [20]byte) (*big.Int, error) {
	var out *big.Int
	err := n.withCommit(func() error {
		amount, err := n.sales.Withdraw(saleAddr, caller)
		out = amount
		return err
	})
	return out, err
}

func (n *Node) EmergencyWithdraw(saleAddr, caller [20]byte) (*big.Int, error) {
	var out *big.Int
	err := n.withCommit(func() error {
		amount, err := n.sales.EmergencyWithdraw(saleAddr, caller)
		out = amount
		return err
	})
	return out, err
}

func (n *Node) FinalizeSale(saleAddr, caller [20]byte) error {
	return n.withCommit(func() error {
		return n.sales.Finalize(saleAddr, caller)
	})
}

func (n *Node) SwitchWhitelist(saleAddr, caller, account [20]byte) (bool, error) {
	var out bool
	err := n.withCommit(func() error {
		state, err := n.sales.SwitchWhitelist(saleAddr, caller, account)
		out = state
		return err
	})
	return out, err
}

func (n *Node) SwitchBan(saleAddr, caller, account [20]byte) (bool, error) {
	var out bool
	err := n.withCommit(func() error {
		state, err := n.sales.SwitchBan(saleAddr, caller, account)
		out = state
		return err
	})
	return out, err
}

func (n *Node) RescueSaleToken(saleAddr, caller [20]byte, symbol string, to [20]byte, amount *big.Int) error {
	return n.withCommit(func() error {
		return n.sales.RescueToken(saleAddr, caller, symbol, to, amount)
	})
}

// --- Factory operations ---

func (n *Node) InitializeLaunchpad(owner [20]byte, creationFee *big.Int, feePercent uint32) error {
	return n.withCommit(func() error {
		err := n.factory.Initialize(owner, creationFee, feePercent)
		if err == launchpad.ErrAlreadyInitialized {
			return nil
		}
		return err
	})
}

func (n *Node) CreateSale(caller [20]byte, cfg *sale.Config, metadata string, feePaid *big.Int, whitelist [][20]byte) (*sale.Sale, error) {
	var out *sale.Sale
	err := n.withCommit(func() error {
		record, err := n.factory.CreateSale(caller, cfg, metadata, feePaid, whitelist)
		out = record
		return err
	})
	return out, err
}

func (n *Node) CreateVestingSale(caller [20]byte, cfg *sale.Config, schedule []sale.VestingTranche, metadata string, feePaid *big.Int, whitelist [][20]byte) (*sale.Sale, error) {
	var out *sale.Sale
	err := n.withCommit(func() error {
		record, err := n.factory.CreateVestingSale(caller, cfg, schedule, metadata, feePaid, whitelist)
		out = record
		return err
	})
	return out, err
}

func (n *Node) SetFeePercent(caller [20]byte, percent uint32) error {
	return n.withCommit(func() error {
		return n.factory.SetFeePercent(caller, percent)
	})
}

func (n *Node) SetCreationFee(caller [20]byte, fee *big.Int) error {
	return n.withCommit(func() error {
		return n.factory.SetCreationFee(caller, fee)
	})
}

func (n *Node) WithdrawFees(caller, to [20]byte) (*big.Int, error) {
	var out *big.Int
	err := n.withCommit(func() error {
		amount, err := n.factory.WithdrawFees(caller, to)
		out = amount
		return err
	})
	return out, err
}

func (n *Node) RescueFactoryToken(caller [20]byte, symbol string, to [20]byte, amount *big.Int) error {
	return n.withCommit(func() error {
		return n.factory.RescueToken(caller, symbol, to, amount)
	})
}

// --- Platform operations ---

func (n *Node) RegisterToken(symbol, name string, decimals uint8) error {
	return n.withCommit(func() error {
		return n.state.RegisterToken(symbol, name, decimals)
	})
}

// MintToken credits freshly issued token units to the address. Reserved for
// operator tooling; the sale lifecycle itself never mints.
func (n *Node) MintToken(addr [20]byte, symbol string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("mint amount must be positive")
	}
	return n.withCommit(func() error {
		balance, err := n.state.TokenBalance(addr[:], symbol)
		if err != nil {
			return err
		}
		return n.state.SetTokenBalance(addr[:], symbol, new(big.Int).Add(balance, amount))
	})
}

// CreditBalance adds base currency to the address, for operator tooling and
// genesis funding.
func (n *Node) CreditBalance(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("credit amount must be positive")
	}
	return n.withCommit(func() error {
		account, err := n.state.GetAccount(addr[:])
		if err != nil {
			return err
		}
		account.Balance = new(big.Int).Add(account.Balance, amount)
		return n.state.PutAccount(addr[:], account)
	})
}

// Approve sets the spender allowance on the owner's token balance.
func (n *Node) Approve(symbol string, owner, spender [20]byte, amount *big.Int) error {
	return n.withCommit(func() error {
		return n.state.SetTokenAllowance(symbol, owner, spender, amount)
	})
}

func (n *Node) SetPaused(module string, paused bool) error {
	return n.withCommit(func() error {
		return n.state.SetPaused(module, paused)
	})
}

func (n *Node) SetRole(role string, addr [20]byte) error {
	return n.withCommit(func() error {
		return n.state.SetRole(role, addr[:])
	})
}

// --- Read surface ---

func (n *Node) SaleInfo(saleAddr [20]byte) (*sale.Sale, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sales.SaleInfo(saleAddr)
}

func (n *Node) ParticipantInfo(saleAddr, addr [20]byte) (*sale.Participant, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sales.ParticipantInfo(saleAddr, addr)
}

func (n *Node) SaleList() ([][20]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.SaleList()
}

func (n *Node) LaunchParams() (*launchpad.Params, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.factory.ParamsInfo()
}

func (n *Node) TokenInfo(symbol string) (*state.TokenMetadata, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.Token(symbol)
}

func (n *Node) TokenBalance(addr [20]byte, symbol string) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.TokenBalance(addr[:], symbol)
}

func (n *Node) TokenAllowance(symbol string, owner, spender [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.TokenAllowance(symbol, owner, spender)
}

func (n *Node) AccountInfo(addr [20]byte) (*types.Account, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.GetAccount(addr[:])
}

func (n *Node) IsPaused(module string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.IsPaused(module)
}

// RecentEvents returns up to limit of the most recently emitted events,
// oldest first.
func (n *Node) RecentEvents(limit int) []types.Event {
	return n.ring.Recent(limit)
}
