package common

import (
	"errors"
	"testing"
)

type pauseMap map[string]bool

func (p pauseMap) IsPaused(module string) bool { return p[module] }

func TestGuardChecksPauseSwitch(t *testing.T) {
	pauses := pauseMap{"sale": true}
	if err := Guard(pauses, "sale"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("paused module = %v, want ErrModulePaused", err)
	}
	if err := Guard(pauses, "launchpad"); err != nil {
		t.Fatalf("unpaused module = %v", err)
	}
	if err := Guard(nil, "sale"); err != nil {
		t.Fatalf("nil view = %v", err)
	}
	if err := Guard(pauses, ""); err != nil {
		t.Fatalf("empty module = %v", err)
	}
}

func TestLatchRejectsReentry(t *testing.T) {
	latch := NewLatch()
	var sale, otherSale [20]byte
	sale[19] = 0x01
	otherSale[19] = 0x02

	if err := latch.Acquire(sale); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if err := latch.Acquire(sale); !errors.Is(err, ErrReentrantCall) {
		t.Fatalf("re-entrant acquire = %v, want ErrReentrantCall", err)
	}

	// Holding one sale's latch must not block another sale.
	if err := latch.Acquire(otherSale); err != nil {
		t.Fatalf("independent acquire: %v", err)
	}
	latch.Release(otherSale)

	latch.Release(sale)
	if err := latch.Acquire(sale); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}

func TestLatchNilReceiver(t *testing.T) {
	var latch *Latch
	var sale [20]byte
	if err := latch.Acquire(sale); err != nil {
		t.Fatalf("nil latch acquire = %v", err)
	}
	latch.Release(sale)
}
