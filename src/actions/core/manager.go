package core

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Module is a long-running component with a start/stop lifecycle: the
// gateway, the HTTP API and the expiry sweeper.
type Module interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context)
}

// Manager coordinates the lifecycle of all registered modules.
type Manager struct {
	modules []Module
	mu      sync.Mutex
	started []Module
	log     *zap.Logger
}

// NewManager creates a manager over mods. Nil modules are skipped, which lets
// callers pass optional modules unconditionally.
func NewManager(mods ...Module) *Manager {
	m := &Manager{log: zap.L()}
	for _, mod := range mods {
		if mod != nil {
			m.modules = append(m.modules, mod)
		}
	}
	return m
}

// Add registers an additional module before Start is invoked.
func (m *Manager) Add(mod Module) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started != nil {
		return fmt.Errorf("core.Manager: cannot add modules after start")
	}
	if mod != nil {
		m.modules = append(m.modules, mod)
	}
	return nil
}

// Start starts modules in order. If one fails, the ones already started are
// stopped in reverse order and the error is returned.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started != nil {
		return fmt.Errorf("core.Manager already started")
	}

	started := make([]Module, 0, len(m.modules))
	for _, mod := range m.modules {
		if err := mod.Start(ctx); err != nil {
			for i := len(started) - 1; i >= 0; i-- {
				started[i].Stop(ctx)
			}
			return fmt.Errorf("module %s failed: %w", mod.Name(), err)
		}
		m.log.Info("core: module started", zap.String("module", mod.Name()))
		started = append(started, mod)
	}
	m.started = started
	return nil
}

// Stop shuts down started modules in reverse order.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.started) - 1; i >= 0; i-- {
		mod := m.started[i]
		mod.Stop(ctx)
		m.log.Info("core: module stopped", zap.String("module", mod.Name()))
	}
	m.started = nil
}
