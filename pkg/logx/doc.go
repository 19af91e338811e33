// Package logx wraps zerolog behind a small Logger/Field API with a Service
// that can hot-swap sinks (console, file) when the config file is reloaded.
//
// The zero Logger value is a safe no-op, so components can hold a Logger
// field without nil checks.
package logx
