// Package session maps tenant lookup keys to live MCP transports.
//
// # Resolution
//
// Every MCP request carries a lookup key in its URL. The Resolver turns that
// key into a ResolvedTenant:
//
//  1. Look the tenant up by key
//  2. Require an active subscription
//  3. Require a stored credential
//  4. Decrypt the credential and build a Teable client bound to it
//
// Each step fails with its own sentinel (ErrTenantNotFound,
// ErrSubscriptionInactive, ErrCredentialMissing, ErrCredentialCorrupt) so the
// HTTP layer can answer 404, 403, or 400 instead of a generic error.
//
// # Sessions
//
// The Manager owns a map of sessionKey{tenantKey, sessionID} to live
// transports. Three transport styles share it:
//
//   - SSE: GET /mcp/{key}/sse opens the stream; one session per tenant key
//   - SSE messages: POST /mcp/{key}/messages delivers to the open stream
//   - Streamable HTTP: /mcp/{key}/mcp with an Mcp-Session-Id header; POST
//     creates or reuses, GET requires an existing session, DELETE tears down
//
// Creation is single-flight: a placeholder entry is registered before
// resolution starts, and concurrent requests for the same key wait on its
// done channel. Failed resolutions remove the placeholder.
//
// Sessions end on client DELETE, on idle timeout via the Run reaper, or on
// process shutdown. Tool-call failures inside a session are reported at the
// protocol level and never tear the session down.
package session
