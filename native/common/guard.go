package common

import (
	"errors"
	"sync"
)

var (
	ErrModulePaused  = errors.New("module paused")
	ErrReentrantCall = errors.New("reentrant call")
)

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// Latch serialises value-moving operations per contract address. An operation
// that re-enters while its own latch is held fails instead of deadlocking,
// mirroring a non-reentrant guard.
type Latch struct {
	mu   sync.Mutex
	busy map[[20]byte]bool
}

func NewLatch() *Latch {
	return &Latch{busy: make(map[[20]byte]bool)}
}

// Acquire marks the address as busy. It fails with ErrReentrantCall when the
// latch is already held for the same address.
func (l *Latch) Acquire(addr [20]byte) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.busy[addr] {
		return ErrReentrantCall
	}
	l.busy[addr] = true
	return nil
}

// Release clears the busy marker for the address.
func (l *Latch) Release(addr [20]byte) {
	if l == nil {
		return
	}
	l.mu.Lock()
	delete(l.busy, addr)
	l.mu.Unlock()
}
