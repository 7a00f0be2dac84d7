// Package subscriber implements the subscriber registry service.
//
// The service layer wraps the registry repository and composes it with the
// list-platform reconciliation engine: listing runs a best-effort sync first
// and falls back to local-only data when the platform is unavailable. It
// depends on repository interfaces defined in this package and should never
// import from the handler layer.
//
// Repository implementations live in repository/postgres/.
package subscriber
