// Package supervisor owns the agent registry and lifecycle.
//
// Agents are spawned from immutable specs, tracked by identity and pid,
// and driven through crash recovery by the fault policy. Termination is
// final: the identity is removed and never restarted automatically.
package supervisor
