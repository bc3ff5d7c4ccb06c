package core

import (
	"errors"
	"math/big"
	"testing"

	"launchpad/native/launchpad"
	"launchpad/native/sale"
	"launchpad/storage"
)

func testAddr(b byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = b
	}
	return addr
}

const testToken = "ZAPX"

type nodeFixture struct {
	node *Node
	now  int64
}

func newNodeFixture(t *testing.T) *nodeFixture {
	t.Helper()
	node, err := NewNode(storage.NewMemDB())
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	fx := &nodeFixture{node: node, now: 1_000_000}
	node.SetFactoryAddress(testAddr(0xFA))
	node.SetNowFunc(func() int64 { return fx.now })

	if err := node.InitializeLaunchpad(testAddr(0x01), big.NewInt(100), 30); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := node.RegisterToken(testToken, "Zap Exchange Token", 18); err != nil {
		t.Fatalf("register token: %v", err)
	}
	return fx
}

func (fx *nodeFixture) deploySale(t *testing.T, whitelist ...[20]byte) *sale.Sale {
	t.Helper()
	creator := testAddr(0x02)
	if err := fx.node.CreditBalance(creator, big.NewInt(1_000)); err != nil {
		t.Fatalf("fund creator: %v", err)
	}
	if err := fx.node.MintToken(creator, testToken, big.NewInt(5_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := fx.node.Approve(testToken, creator, fx.node.FactoryAddress(), big.NewInt(5_000)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	start := uint64(fx.now) + launchpad.MinSaleLeadTime + 3_600
	cfg := &sale.Config{
		Token:             testToken,
		Creator:           creator,
		ProceedsRecipient: testAddr(0x03),
		Admin:             testAddr(0x01),
		TokensForSale:     big.NewInt(1_000),
		SoftCap:           big.NewInt(20),
		HardCap:           big.NewInt(80),
		Rate:              big.NewInt(10),
		StartTime:         start,
		EndTime:           start + 86_400,
		MinContribution:   big.NewInt(1),
		MaxContribution:   big.NewInt(50),
	}
	record, err := fx.node.CreateSale(creator, cfg, "genesis batch", big.NewInt(100), whitelist)
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	return record
}

func TestNodeSaleLifecycle(t *testing.T) {
	fx := newNodeFixture(t)
	buyer := testAddr(0x05)
	record := fx.deploySale(t, buyer)

	if err := fx.node.CreditBalance(buyer, big.NewInt(500)); err != nil {
		t.Fatalf("fund buyer: %v", err)
	}

	// Open the sale and buy in.
	fx.now = int64(record.Config.StartTime) + 60
	if err := fx.node.Contribute(record.Address, buyer, big.NewInt(10)); err != nil {
		t.Fatalf("contribute: %v", err)
	}

	entry, err := fx.node.ParticipantInfo(record.Address, buyer)
	if err != nil {
		t.Fatalf("participant: %v", err)
	}
	if entry.Purchased.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("purchased = %s, want 100", entry.Purchased)
	}

	if err := fx.node.FinalizeSale(record.Address, testAddr(0x01)); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	// Locked until the configured end time, then claimable.
	if _, err := fx.node.Withdraw(record.Address, buyer); !errors.Is(err, sale.ErrWithdrawUnavailable) {
		t.Fatalf("locked withdraw = %v, want ErrWithdrawUnavailable", err)
	}
	fx.now = int64(record.Config.EndTime)
	amount, err := fx.node.Withdraw(record.Address, buyer)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if amount.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("withdrawn = %s, want 100", amount)
	}
	balance, err := fx.node.TokenBalance(buyer, testToken)
	if err != nil {
		t.Fatalf("token balance: %v", err)
	}
	if balance.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("buyer tokens = %s, want 100", balance)
	}

	events := fx.node.RecentEvents(0)
	if len(events) == 0 {
		t.Fatal("no events recorded")
	}
	last := events[len(events)-1]
	if last.Type != "sale.tokens_withdrawn" {
		t.Fatalf("last event = %s", last.Type)
	}
}

func TestNodeFailedOperationLeavesNoTrace(t *testing.T) {
	fx := newNodeFixture(t)
	buyer := testAddr(0x05)
	record := fx.deploySale(t, buyer)
	if err := fx.node.CreditBalance(buyer, big.NewInt(500)); err != nil {
		t.Fatalf("fund buyer: %v", err)
	}
	fx.now = int64(record.Config.StartTime) + 60

	// Exceeding the per-address maximum fails after the whitelist check but
	// before any transfer; nothing may change.
	if err := fx.node.Contribute(record.Address, buyer, big.NewInt(51)); !errors.Is(err, sale.ErrAboveMaxContribution) {
		t.Fatalf("contribute = %v, want ErrAboveMaxContribution", err)
	}
	acc, err := fx.node.AccountInfo(buyer)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if acc.Balance.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("buyer balance = %s, want 500", acc.Balance)
	}
	loaded, err := fx.node.SaleInfo(record.Address)
	if err != nil {
		t.Fatalf("sale: %v", err)
	}
	if loaded.Raised.Sign() != 0 {
		t.Fatalf("raised = %s, want 0", loaded.Raised)
	}
}

func TestNodeStatePersistsAcrossRestart(t *testing.T) {
	db := storage.NewMemDB()
	node, err := NewNode(db)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	node.SetFactoryAddress(testAddr(0xFA))
	if err := node.InitializeLaunchpad(testAddr(0x01), big.NewInt(100), 30); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := node.RegisterToken(testToken, "Zap Exchange Token", 18); err != nil {
		t.Fatalf("register token: %v", err)
	}

	reopened, err := NewNode(db)
	if err != nil {
		t.Fatalf("reopen node: %v", err)
	}
	params, err := reopened.LaunchParams()
	if err != nil {
		t.Fatalf("params after reopen: %v", err)
	}
	if params.FeePercent != 30 {
		t.Fatalf("fee percent = %d, want 30", params.FeePercent)
	}
	meta, err := reopened.TokenInfo(testToken)
	if err != nil {
		t.Fatalf("token after reopen: %v", err)
	}
	if meta == nil || meta.Symbol != testToken {
		t.Fatalf("token metadata = %+v", meta)
	}
}

func TestNodePauseSwitchBlocksEngines(t *testing.T) {
	fx := newNodeFixture(t)
	if err := fx.node.SetPaused(launchpad.ModuleName, true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	creator := testAddr(0x02)
	if _, err := fx.node.CreateSale(creator, &sale.Config{}, "", nil, nil); err == nil {
		t.Fatal("paused module accepted a deployment")
	}
	if err := fx.node.SetPaused(launchpad.ModuleName, false); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	fx.deploySale(t)
}
