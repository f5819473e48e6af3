// Package flow provides a sequential graph engine for pipeline stages.
//
// A pipeline is a set of Nodes connected by action-labeled edges. Each
// node runs a Prep/Exec/Post triple against a shared state value: Prep
// reads what the node needs from state, Exec does the work (and is the
// only step retried on transient failure), and Post writes results back
// and returns the Action that selects the next node. Cycles are legal
// and are how self-correction loops are expressed.
//
// Execution is strictly sequential: one node at a time, no node ever
// runs concurrently with itself or another node.
package flow
