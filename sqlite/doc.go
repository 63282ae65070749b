// Package sqlite provides an embedded SQLite message store for msgrelay.
//
// It wraps a zombiezen.com/go/sqlite connection pool with the usual service pragmas
// (WAL journal, NORMAL synchronous, busy timeout) and creates the destination table on
// first connect. One pooled connection backs one forwarder tick: Open takes it, Close puts
// it back.
//
// Busy and locked errors that outlast the busy timeout, and statements interrupted by a
// cancelled context, are reported as msgrelay.ErrStoreUnavailable, so the message stays
// queued. Any other failure, a constraint or trigger abort or a full disk for example, is
// a rejected write and the forwarder drops the message.
//
//	store, err := sqlite.Open(sqlite.Config{Path: "/var/lib/msgrelay/relay.db"})
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
package sqlite
