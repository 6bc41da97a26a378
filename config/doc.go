// Package config loads the server configuration from http-server.toml in a
// config directory, writing a default file when none exists. Values can be
// overridden with DISPATCH_ prefixed environment variables and are validated
// before use.
package config
