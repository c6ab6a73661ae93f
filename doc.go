/*
Package sharedsnap implements shared snapshot coordination for the process
groups a parallel query executor runs on each database node.

One user statement executes on a node as a process group: a single writer
that performs the real transaction, plus zero or more readers that must
observe exactly the writer's transaction snapshot and sub-transaction state
without starting transactions of their own. The writer publishes its snapshot
(visibility bounds, in-progress transaction ids, current command id) through
a fixed-capacity slot table keyed by session id; readers locate the slot for
their session and synchronize the snapshot back out.

Two publication paths exist. The common path overwrites the current snapshot
in the writer's shared descriptor in place, stamped with a freshness tag so a
reader can confirm it is looking at the version for the command it expects.
Cursor declarations instead serialize the snapshot into a dedicated dynamic
shared segment recorded in a fixed-size ring, because a cursor must keep
reading through the snapshot taken at declaration time even after the current
snapshot moves on. Readers cache restored cursor snapshots locally for the
life of the surrounding transaction.

# Usage

For runnable examples, see the repository's examples directory.

# Concurrency

A Registry is safe for concurrent use by any number of goroutines acting as
group processes. Publish and Sync require the caller to hold the session
slot's lock (exclusive for the writer, shared for readers); the slot table
has its own internal lock.
*/
package sharedsnap
