// Package mysql provides a MySQL 8.0+ message store for msgrelay.
//
// The store:
//   - opens a dedicated connection per forwarder tick and pings it, so an unreachable
//     server is reported as a connect failure and the queue is left intact
//   - inserts each message with a parameterized statement into a single text column
//   - reports broken connections as msgrelay.ErrStoreUnavailable so the message stays
//     queued; statement errors, deadlocks included, drop the message
//
// See Schema for the table definition and OpenDB for building a *sql.DB from a DSN.
package mysql
