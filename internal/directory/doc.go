// Package directory adapts an LDAP directory into protocol-neutral objects.
//
// The Adapter is stateless per call: every operation dials a fresh connection
// through the configured Dialer, binds, runs and closes it. Nothing read from
// the directory is cached, so a mutation is visible to the next read.
//
// # Errors
//
// Connectivity and protocol faults surface as *DirectoryError carrying a
// Transient or Permanent kind. Callers decide whether to retry; the adapter
// never does.
package directory
