// Package core provides the foundational domain types and interfaces used by
// FlowMesh. It defines the core abstractions for:
//
//   - Steps (units of work: one agent capability invocation with input,
//     dependencies, timeout and retry policy)
//   - Plans (immutable, validated DAGs of steps plus an execution strategy
//     and failure policy)
//   - Runs (stateful execution instances carrying a shared context, cost
//     ledger and append-only execution log)
//   - Pluggable providers for agent capabilities, credentials and run
//     persistence
//
// The package intentionally keeps implementation concerns (persistence,
// strategy scheduling, concrete capability providers) out of scope, exposing
// small interfaces to enable custom backends and extensions. All exported
// identifiers include concise documentation to aid discoverability and
// external consumption.
package core
