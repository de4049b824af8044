// Package main is the entry point for the agent supervision server.
//
// The server gates syscall-style frames from LLM-driven agents through a
// default-deny capability policy, audits every matched operation, drives
// crash recovery, and routes model requests through a rate-limited
// fallback chain of cloud backends.
//
// Configuration comes from environment variables, with the operator-
// editable recovery/risk/gateway policy in an optional YAML file:
//
//	./server -policy policy.yaml
//
// SIGINT and SIGTERM trigger graceful shutdown.
package main
