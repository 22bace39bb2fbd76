// Package session holds the bearer token and bypass flag for the current
// dashboard session.
//
// The Store keeps an in-memory copy that is authoritative for the lifetime of
// the process, and fills it from a session-scoped Storage backend on first
// use. Storage is best effort: backend failures are logged at debug level and
// otherwise ignored.
package session
