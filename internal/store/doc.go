// Package store provides policy store adapters. A store is the single
// owner of persisted policy rows; the decision engine only ever reads
// from it, and every mutation is followed by a snapshot reload.
//
// Two adapters are provided: a CSV-style policy file (with an optional
// change watcher) and a Redis-backed list for multi-instance
// deployments.
package store
