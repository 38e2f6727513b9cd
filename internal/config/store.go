package config

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Store publishes the current policy snapshot. Readers call Load on every
// interception and never see a partially built policy; writers publish a
// complete replacement.
type Store struct {
	current atomic.Pointer[Policy]
	mu      sync.Mutex
	version atomic.Int64
}

// NewStore returns a store holding initial, which may be nil.
func NewStore(initial *Policy) *Store {
	s := &Store{}
	if initial != nil {
		s.current.Store(initial)
	}
	return s
}

// Load returns the current snapshot. The result must not be modified.
func (s *Store) Load() *Policy {
	return s.current.Load()
}

// Publish replaces the snapshot and returns the previous one.
func (s *Store) Publish(p *Policy) *Policy {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.current.Swap(p)
	s.version.Add(1)
	return old
}

// Version counts publications.
func (s *Store) Version() int64 {
	return s.version.Load()
}

// HookInstaller installs the interception set described by a policy.
type HookInstaller interface {
	InstallHooks(p *Policy) error
}

// ReadyNotifier tells the controller the monitor finished loading.
type ReadyNotifier interface {
	NotifyReady()
}

// Reconfigurer switches a process running in TLS-dump or interactive
// desktop mode to normal monitoring when the monitor module is loaded into
// it a second time. It fires at most once.
type Reconfigurer struct {
	Store     *Store
	Loader    *Loader
	Installer HookInstaller
	Notifier  ReadyNotifier
	Logger    *slog.Logger

	fired atomic.Bool
}

// Pending reports whether the current policy is in a mode that a second
// load would switch out of.
func (r *Reconfigurer) Pending() bool {
	cur := r.Store.Load()
	return !r.fired.Load() && cur != nil && (cur.TLSDump || cur.Interactive == 1)
}

// Trigger performs the switch. It returns false when there is nothing to do
// or the switch already happened.
func (r *Reconfigurer) Trigger() bool {
	cur := r.Store.Load()
	if cur == nil || !(cur.TLSDump || cur.Interactive == 1) {
		return false
	}
	if !r.fired.CompareAndSwap(false, true) {
		return false
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interactive := cur.Interactive == 1
	clearMode := func(p *Policy) {
		p.TLSDump = false
		if interactive {
			p.Interactive = 2
			p.MinHook = false
		}
	}

	l := *r.Loader
	prev := l.Override
	l.Override = func(p *Policy) {
		if prev != nil {
			prev(p)
		}
		clearMode(p)
	}
	next, ok := l.Load()
	if !ok {
		stale := cur.Clone()
		clearMode(stale)
		r.Store.Publish(stale)
		logger.Warn("config: reconfiguration found no configuration, mode cleared")
		return true
	}

	r.Store.Publish(next)
	if r.Installer != nil {
		if err := r.Installer.InstallHooks(next); err != nil {
			logger.Error("config: reinstalling hooks failed", "error", err)
		}
	}
	if r.Notifier != nil {
		r.Notifier.NotifyReady()
	}
	logger.Info("config: switched to normal monitoring", "interactive", interactive)
	return true
}
