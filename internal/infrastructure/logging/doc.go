// Package logging wraps uber/zap with the service's two output modes:
// JSON in production, colored console output in development. Components
// take a *Logger and fall back to NewNop when handed nil.
package logging
