// ABOUTME: Session/transport manager: (tenant key, session id) to live MCP transport
// ABOUTME: Single-flight creation, explicit teardown, idle reaping, rate limiting

package session

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/time/rate"

	"github.com/relaymark/teable-gateway/internal/tools"
)

// Style selects how a session's transport speaks HTTP
type Style int

const (
	// StyleSSE is the SSE stream plus POST /messages pairing. One logical
	// session per tenant key.
	StyleSSE Style = iota
	// StyleStreamable is the duplex streamable-HTTP style with an explicit
	// session id header. Multiple concurrent sessions per tenant.
	StyleStreamable
)

// sessionKey identifies one live session. Keyed as a struct value rather than
// a concatenated string so session ids containing delimiters cannot collide.
type sessionKey struct {
	tenantKey string
	sessionID string
}

// transport is the slice of mcp-go's HTTP servers the manager needs
type transport interface {
	http.Handler
	Shutdown(ctx context.Context) error
}

// entry is one live (transport, MCP server) pair. The done channel closes
// when construction finishes; concurrent first requests wait on it instead of
// racing a second construction.
type entry struct {
	done      chan struct{}
	buildErr  error
	transport transport
	limiter   *rate.Limiter
	tenantID  string

	mu         sync.Mutex
	lastActive time.Time
	streams    int
	closed     bool
}

func (e *entry) touch() {
	e.mu.Lock()
	e.lastActive = time.Now()
	e.mu.Unlock()
}

// attach marks a blocking stream as connected to this entry
func (e *entry) attach() {
	e.mu.Lock()
	e.streams++
	e.lastActive = time.Now()
	e.mu.Unlock()
}

// detach reports how many streams remain after one disconnects
func (e *entry) detach() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.streams--
	e.lastActive = time.Now()
	return e.streams
}

func (e *entry) attached() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.streams > 0
}

func (e *entry) idleSince() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastActive
}

// close shuts the transport down exactly once
func (e *entry) close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	if e.transport != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.transport.Shutdown(ctx)
	}
}

// Hooks receive session lifecycle and tool-call events. All fields optional.
type Hooks struct {
	OnSessionOpened func(tenantID string)
	OnSessionClosed func(tenantID string)
	OnToolCall      func(tenantID, toolName string)
	OnQuotaReject   func(tenantID string)
}

// Options configure a Manager
type Options struct {
	// IdleTimeout closes sessions with no activity for this long. Zero
	// disables the reaper.
	IdleTimeout time.Duration

	// RateLimit and RateBurst bound per-session request rates. Zero
	// RateLimit disables limiting.
	RateLimit float64
	RateBurst int

	// Payment links passed through to quota rejection payloads
	PaymentLinkPro        string
	PaymentLinkEnterprise string

	Hooks Hooks
}

// Manager owns the live session map. It is an injected dependency, not a
// process-global, so tests can run isolated instances.
type Manager struct {
	resolver *Resolver
	opts     Options
	logger   *slog.Logger

	mu      sync.Mutex
	entries map[sessionKey]*entry
}

// NewManager creates a session manager over the given resolver
func NewManager(resolver *Resolver, opts Options) *Manager {
	return &Manager{
		resolver: resolver,
		opts:     opts,
		logger:   slog.Default().With("component", "session"),
		entries:  make(map[sessionKey]*entry),
	}
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// acquire finds or creates the session for key. The placeholder entry is
// registered before resolution starts, so a concurrent request for the same
// key waits on the first construction instead of duplicating it. A failed
// resolution removes the placeholder: it never leaves a half-initialized
// entry behind.
func (m *Manager) acquire(ctx context.Context, key sessionKey, style Style) (*entry, error) {
	m.mu.Lock()
	if e, ok := m.entries[key]; ok {
		m.mu.Unlock()
		select {
		case <-e.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if e.buildErr != nil {
			return nil, e.buildErr
		}
		e.touch()
		return e, nil
	}

	e := &entry{done: make(chan struct{}), lastActive: time.Now()}
	m.entries[key] = e
	m.mu.Unlock()

	resolved, err := m.resolver.Resolve(ctx, key.tenantKey)
	if err != nil {
		e.buildErr = err
		close(e.done)
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, err
	}

	e.tenantID = resolved.Tenant.ID
	e.transport = m.buildTransport(resolved, key, style)
	if m.opts.RateLimit > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(m.opts.RateLimit), m.opts.RateBurst)
	}
	close(e.done)

	m.logger.Info("session opened",
		"tenant", resolved.Tenant.ID,
		"session_id", key.sessionID,
		"tier", resolved.Tenant.Tier,
	)
	if m.opts.Hooks.OnSessionOpened != nil {
		m.opts.Hooks.OnSessionOpened(resolved.Tenant.ID)
	}
	return e, nil
}

// buildTransport constructs the MCP server and wraps it in the style's transport
func (m *Manager) buildTransport(resolved *ResolvedTenant, key sessionKey, style Style) transport {
	tenantID := resolved.Tenant.ID

	mcpServer := tools.NewServer(tools.Binding{
		Client:                resolved.Client,
		Tier:                  resolved.Tenant.Tier,
		Ceiling:               resolved.Tenant.QuotaCeiling,
		PaymentLinkPro:        m.opts.PaymentLinkPro,
		PaymentLinkEnterprise: m.opts.PaymentLinkEnterprise,
		OnToolCall: func(toolName string) {
			if m.opts.Hooks.OnToolCall != nil {
				m.opts.Hooks.OnToolCall(tenantID, toolName)
			}
		},
		OnQuotaReject: func() {
			if m.opts.Hooks.OnQuotaReject != nil {
				m.opts.Hooks.OnQuotaReject(tenantID)
			}
		},
	})

	switch style {
	case StyleStreamable:
		return server.NewStreamableHTTPServer(mcpServer,
			server.WithSessionIdManager(fixedSessionID{id: key.sessionID}),
		)
	default:
		return server.NewSSEServer(mcpServer,
			server.WithStaticBasePath("/mcp/"+key.tenantKey),
			server.WithSSEEndpoint("/sse"),
			server.WithMessageEndpoint("/messages"),
			server.WithKeepAliveInterval(30*time.Second),
		)
	}
}

// lookup returns the live entry for key, if construction has completed
func (m *Manager) lookup(key sessionKey) (*entry, bool) {
	m.mu.Lock()
	e, ok := m.entries[key]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	select {
	case <-e.done:
	default:
		return nil, false
	}
	if e.buildErr != nil {
		return nil, false
	}
	return e, true
}

// Close tears down one session. Returns false if no such session was live.
// Safe to call for already-gone sessions; the double-teardown guard lives in
// the map delete.
func (m *Manager) Close(tenantKey, sessionID string) bool {
	key := sessionKey{tenantKey: tenantKey, sessionID: sessionID}

	m.mu.Lock()
	e, ok := m.entries[key]
	if ok {
		delete(m.entries, key)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}

	<-e.done
	e.close()
	m.logger.Info("session closed", "tenant", e.tenantID, "session_id", sessionID)
	if e.buildErr == nil && m.opts.Hooks.OnSessionClosed != nil {
		m.opts.Hooks.OnSessionClosed(e.tenantID)
	}
	return true
}

// closeIfCurrent tears down e only if it is still the live entry for key.
// A stream that outlived a reap or shutdown must not tear down the entry
// that replaced it.
func (m *Manager) closeIfCurrent(key sessionKey, e *entry) {
	m.mu.Lock()
	live, ok := m.entries[key]
	if !ok || live != e {
		m.mu.Unlock()
		return
	}
	delete(m.entries, key)
	m.mu.Unlock()

	e.close()
	m.logger.Info("session closed", "tenant", e.tenantID, "session_id", key.sessionID)
	if m.opts.Hooks.OnSessionClosed != nil {
		m.opts.Hooks.OnSessionClosed(e.tenantID)
	}
}

// Shutdown closes every live session
func (m *Manager) Shutdown() {
	m.mu.Lock()
	entries := make(map[sessionKey]*entry, len(m.entries))
	for k, e := range m.entries {
		entries[k] = e
	}
	m.entries = make(map[sessionKey]*entry)
	m.mu.Unlock()

	for k, e := range entries {
		<-e.done
		e.close()
		if e.buildErr == nil && m.opts.Hooks.OnSessionClosed != nil {
			m.opts.Hooks.OnSessionClosed(e.tenantID)
		}
		m.logger.Debug("session closed on shutdown", "session_id", k.sessionID)
	}
}

// Run sweeps idle sessions until ctx is done. A session with no requests for
// IdleTimeout is closed; disappearing clients would otherwise hold their
// entries until process restart.
func (m *Manager) Run(ctx context.Context) {
	if m.opts.IdleTimeout <= 0 {
		<-ctx.Done()
		return
	}

	interval := m.opts.IdleTimeout / 4
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reapIdle()
		}
	}
}

func (m *Manager) reapIdle() {
	cutoff := time.Now().Add(-m.opts.IdleTimeout)

	m.mu.Lock()
	var stale []sessionKey
	for k, e := range m.entries {
		select {
		case <-e.done:
		default:
			continue // still constructing
		}
		if e.attached() {
			continue // a live stream is not idle, however quiet
		}
		if e.idleSince().Before(cutoff) {
			stale = append(stale, k)
		}
	}
	m.mu.Unlock()

	for _, k := range stale {
		if m.Close(k.tenantKey, k.sessionID) {
			m.logger.Info("reaped idle session", "tenant_key", k.tenantKey, "session_id", k.sessionID)
		}
	}
}
