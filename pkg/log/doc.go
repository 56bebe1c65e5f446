/*
Package log provides structured logging for the monitor using zerolog.

Init configures the global Logger once at startup (JSON or console output,
filtered by level). Call sites that need consistent context fields use one of
the With* helpers (WithComponent, WithNode, WithSource, WithView) instead of
repeating Str() calls.
*/
package log
