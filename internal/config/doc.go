// Package config handles configuration loading for teable-gateway.
//
// # Overview
//
// Configuration is loaded from a YAML file with environment variable
// expansion. The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	vault:
//	  encryption_key: "${GATEWAY_ENCRYPTION_KEY}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	sessions:
//	  idle_timeout: "30m"
//
// # Required Settings
//
// database.path and vault.encryption_key must be set. The encryption key is a
// 64-character hex string (32 bytes) and is never defaulted: without it, stored
// tenant credentials cannot be decrypted and the process refuses to start.
package config
