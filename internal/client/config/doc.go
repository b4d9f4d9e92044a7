// Package config loads runtime configuration for the planetsync CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional config file selected with -c or -config. Files ending in
//     .yaml or .yml are read as YAML, anything else as JSON.
//  3. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-a string   API base URL of the planet server
//	-n string   node id (root of the local cache tree)
//	-d string   data directory
//	-u string   username; enables HTTP Basic auth
//	-i int      status poll interval (seconds)
//
// # File schema
//
// Durations use timex.Duration, so they can be strings like "5s" or integer
// nanoseconds:
//
//	{
//	  "server_url": "http://127.0.0.1:8086/v0",
//	  "node_id": "local",
//	  "auth_enabled": true,
//	  "username": "alice",
//	  "liveness_ttl": "5s"
//	}
//
// The password may be left out of the file; the CLI then asks for it.
package config
