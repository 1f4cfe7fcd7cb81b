// Package strategy implements the execution ordering policies for FlowMesh
// runs.
//
// Each strategy is a Scheduler: a pure decision function that inspects the
// current step statuses of a run and answers "which steps may start now".
// Schedulers never invoke capabilities, never mutate runs and never block;
// the engine's driver owns dispatch, concurrency, failure policy and
// persistence. This split keeps retry and failure handling in one place
// while the five ordering policies stay small enough to read in one sitting.
//
// Available schedulers:
//   - sequential: one step at a time, plan order
//   - parallel: dependency levels, each level concurrent, joined in order
//   - pipeline: plan order with step outputs merged into the run context
//   - conditional: dependency-driven passes with per-step conditions
//   - batch: fixed-size windows of plan order steps, each window concurrent
package strategy
