// Package policy decides whether an agent may perform an operation.
//
// The engine is default-deny: an agent must be registered, must hold the
// capability the opcode maps to, and the concrete resource must fall inside
// the agent's scope. Records are replaced wholesale so concurrent checks
// see a coherent snapshot, never a half-applied update.
package policy
