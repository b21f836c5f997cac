// ABOUTME: HTTP entry points for the three MCP transport styles
// ABOUTME: Maps resolution failures to status codes and enforces per-session rate limits

package session

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
)

// HeaderSessionID carries the session key for the streamable style
const HeaderSessionID = "Mcp-Session-Id"

// fixedSessionID makes a StreamableHTTPServer speak one predetermined session
// id: the manager owns the (tenant, session) lifecycle, so the transport must
// not invent its own ids.
type fixedSessionID struct {
	id string
}

func (f fixedSessionID) Generate() string {
	return f.id
}

func (f fixedSessionID) Validate(sessionID string) (isTerminated bool, err error) {
	if sessionID != f.id {
		return false, errors.New("unknown session id")
	}
	return false, nil
}

func (f fixedSessionID) Terminate(sessionID string) (isNotAllowed bool, err error) {
	return false, nil
}

// StatusForError maps a resolution failure to its caller-visible status and
// message. Unknown errors map to 500.
func StatusForError(err error) (int, string) {
	switch {
	case errors.Is(err, ErrTenantNotFound):
		return http.StatusNotFound, "Customer not found"
	case errors.Is(err, ErrSubscriptionInactive):
		return http.StatusForbidden, "Subscription not active"
	case errors.Is(err, ErrCredentialMissing):
		return http.StatusBadRequest, "No Teable token configured"
	case errors.Is(err, ErrCredentialCorrupt):
		return http.StatusBadRequest, "Stored Teable token is invalid"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// allow applies the per-session rate limit
func (m *Manager) allow(w http.ResponseWriter, e *entry) bool {
	if e.limiter != nil && !e.limiter.Allow() {
		writeJSONError(w, http.StatusTooManyRequests, "Rate limit exceeded")
		return false
	}
	return true
}

// HandleSSE opens (or reuses) the tenant's SSE session and streams on it.
// One logical session per tenant key for this style. When the last stream
// drops, the session is torn down so a reconnect re-resolves the tenant
// instead of reusing a stale credential or tier binding.
func (m *Manager) HandleSSE(w http.ResponseWriter, r *http.Request, tenantKey string) {
	key := sessionKey{tenantKey: tenantKey}
	e, err := m.acquire(r.Context(), key, StyleSSE)
	if err != nil {
		status, msg := StatusForError(err)
		writeJSONError(w, status, msg)
		return
	}
	if !m.allow(w, e) {
		return
	}

	e.attach()
	e.transport.ServeHTTP(w, r)
	if e.detach() == 0 {
		m.closeIfCurrent(key, e)
	}
}

// HandleMessages delivers one message to the tenant's open SSE session.
// Unlike the SSE open, a missing session is a 404: this path never creates.
func (m *Manager) HandleMessages(w http.ResponseWriter, r *http.Request, tenantKey string) {
	e, ok := m.lookup(sessionKey{tenantKey: tenantKey})
	if !ok {
		writeJSONError(w, http.StatusNotFound, "No active SSE connection")
		return
	}
	if !m.allow(w, e) {
		return
	}
	e.touch()
	e.transport.ServeHTTP(w, r)
}

// HandleStreamable serves the duplex streamable-HTTP style. POST creates or
// reuses by (tenant key, session id); GET requires an existing session;
// DELETE tears down and reports success even when the session is already gone,
// since clients retry deletes.
func (m *Manager) HandleStreamable(w http.ResponseWriter, r *http.Request, tenantKey string) {
	sessionID := r.Header.Get(HeaderSessionID)

	switch r.Method {
	case http.MethodPost:
		if sessionID == "" {
			sessionID = uuid.NewString()
			r.Header.Set(HeaderSessionID, sessionID)
		}
		e, err := m.acquire(r.Context(), sessionKey{tenantKey: tenantKey, sessionID: sessionID}, StyleStreamable)
		if err != nil {
			status, msg := StatusForError(err)
			writeJSONError(w, status, msg)
			return
		}
		if !m.allow(w, e) {
			return
		}
		e.transport.ServeHTTP(w, r)

	case http.MethodGet:
		// An empty session id would key onto {tenantKey, ""}, which is the
		// SSE session. This style always requires an explicit id.
		if sessionID == "" {
			writeJSONError(w, http.StatusBadRequest, "Invalid or missing session ID")
			return
		}
		e, ok := m.lookup(sessionKey{tenantKey: tenantKey, sessionID: sessionID})
		if !ok {
			writeJSONError(w, http.StatusBadRequest, "No active session for session ID")
			return
		}
		if !m.allow(w, e) {
			return
		}
		e.touch()
		e.transport.ServeHTTP(w, r)

	case http.MethodDelete:
		if sessionID == "" {
			writeJSONError(w, http.StatusBadRequest, "Invalid or missing session ID")
			return
		}
		m.Close(tenantKey, sessionID)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]bool{"success": true})

	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
