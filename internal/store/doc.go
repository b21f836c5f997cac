// Package store provides SQLite-backed persistence for tenants and the usage
// audit log. Credentials are stored as vault ciphertext; the store never sees
// plaintext tokens.
package store
