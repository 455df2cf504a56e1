package workspace

import (
	"context"
	"io"
	"sync"
	"time"

	"fro-server/internal/domain/analysis"
	"fro-server/internal/domain/capture"
	"fro-server/internal/domain/eventbus"
	"fro-server/internal/domain/image"
	"fro-server/internal/platform/logging"
)

const (
	DefaultIdleTimeout  = 30 * time.Minute
	DefaultReapInterval = time.Minute
)

// PlatformFactory returns the camera platform for a client.
type PlatformFactory func(clientID string) capture.Platform

// Dependencies are shared by every workspace.
type Dependencies struct {
	Pipeline       *image.Pipeline
	Identifier     analysis.Identifier
	HealthAnalyzer analysis.HealthAnalyzer
	CareAdvisor    analysis.CareAdvisor
	CallTimeout    time.Duration
	Publisher      eventbus.Publisher
	Logger         *logging.Logger
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Dependencies
	Platforms    PlatformFactory
	IdleTimeout  time.Duration
	ReapInterval time.Duration
	// OnEvict runs after an idle workspace was removed.
	OnEvict func(clientID string)
}

// Manager tracks workspaces by client id and reaps idle ones.
type Manager struct {
	deps         Dependencies
	platforms    PlatformFactory
	idleTimeout  time.Duration
	reapInterval time.Duration
	onEvict      func(string)

	workspaces sync.Map // map[string]*Workspace
}

func NewManager(opts ManagerOptions) *Manager {
	idle := opts.IdleTimeout
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	interval := opts.ReapInterval
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	return &Manager{
		deps:         opts.Dependencies,
		platforms:    opts.Platforms,
		idleTimeout:  idle,
		reapInterval: interval,
		onEvict:      opts.OnEvict,
	}
}

// Get returns the workspace for clientID, creating it on first use.
func (m *Manager) Get(clientID string) *Workspace {
	if v, ok := m.workspaces.Load(clientID); ok {
		return v.(*Workspace)
	}
	var platform capture.Platform
	if m.platforms != nil {
		platform = m.platforms(clientID)
	}
	w := newWorkspace(clientID, platform, m.deps)
	actual, loaded := m.workspaces.LoadOrStore(clientID, w)
	if !loaded {
		m.deps.Logger.InfoTag("ANALYSIS", "workspace created for %s", clientID)
	}
	return actual.(*Workspace)
}

// Lookup returns an existing workspace without creating one.
func (m *Manager) Lookup(clientID string) (*Workspace, bool) {
	v, ok := m.workspaces.Load(clientID)
	if !ok {
		return nil, false
	}
	return v.(*Workspace), true
}

// Remove closes and forgets a workspace.
func (m *Manager) Remove(clientID string) {
	if v, ok := m.workspaces.LoadAndDelete(clientID); ok {
		v.(*Workspace).Close()
	}
}

func (m *Manager) Len() int {
	n := 0
	m.workspaces.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Run reaps idle workspaces until ctx is done, then closes all of them.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.CloseAll()
			return nil
		case now := <-ticker.C:
			m.Reap(now)
		}
	}
}

// Reap removes workspaces idle longer than the timeout. Busy ones are kept.
func (m *Manager) Reap(now time.Time) int {
	reaped := 0
	m.workspaces.Range(func(key, value any) bool {
		w := value.(*Workspace)
		if w.Busy() || now.Sub(w.IdleSince()) < m.idleTimeout {
			return true
		}
		if m.workspaces.CompareAndDelete(key, value) {
			w.Close()
			reaped++
			m.deps.Logger.InfoTag("ANALYSIS", "workspace %s reaped after %s idle", w.ID(), now.Sub(w.IdleSince()).Round(time.Second))
			if m.onEvict != nil {
				m.onEvict(w.ID())
			}
		}
		return true
	})
	return reaped
}

// CloseAll releases every camera and empties the manager.
func (m *Manager) CloseAll() {
	m.workspaces.Range(func(key, value any) bool {
		value.(*Workspace).Close()
		m.workspaces.Delete(key)
		return true
	})
}

// AnalyzeFile runs one stateless cycle on an uploaded file. Nothing is kept.
func (m *Manager) AnalyzeFile(ctx context.Context, r io.Reader, filename string) (analysis.Cycle, error) {
	w := newWorkspace("", nil, Dependencies{
		Pipeline:       m.deps.Pipeline,
		Identifier:     m.deps.Identifier,
		HealthAnalyzer: m.deps.HealthAnalyzer,
		CareAdvisor:    m.deps.CareAdvisor,
		CallTimeout:    m.deps.CallTimeout,
		Logger:         m.deps.Logger,
	})
	if _, err := w.SelectFile(ctx, r, filename); err != nil {
		return analysis.Cycle{}, err
	}
	return w.Analyze(ctx)
}
