// Package query provides a shared cache of read results keyed by logical
// identity, along with the query and mutation state machines that populate
// and update it.
//
// The cache owns the freshness and de-duplication policy: concurrent fetches
// for one key share a single in-flight call, a cancelled fetch's late result
// is discarded, and unobserved entries are collected after their GC time.
// Retry policy is explicit: reads are retried DefaultQueryRetry times, writes
// DefaultMutationRetry times.
package query
