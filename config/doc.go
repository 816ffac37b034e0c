// Package config defines configuration for the packtdl CLI.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (PACKTDL_ prefix)
//   - YAML or TOML configuration file
//
// Flags win over the environment, which wins over the file, which wins
// over Default().
package config
