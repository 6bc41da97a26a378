// Package logger builds the process-wide slog.Logger: text output for
// development and staging, JSON for prod, with the environment attached to
// every record.
package logger
