// Package logger provides a small wrapper around zap to offer:
//   - a global sugared logger with a console encoder,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level configuration and parsing utilities,
//   - convenience functions (Info, InfoKV, WarnKV, ErrorKV, etc.).
//
// The publishing stages receive a context and log through it, so every line
// carries the plugin slug and the stage as key-value pairs.
package logger
