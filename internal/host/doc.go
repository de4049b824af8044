// Package host provides the default host-side collaborators: a sandboxed
// local filesystem, an in-memory audio mixer and document store, a
// command-driven screen grabber, and an exec-based process manager. All of
// them satisfy interfaces owned by the packages that consume them.
package host
