// Package store implements the keyspace: a fixed vector of Databases
// owned by an Admin root, each guarded by its own mutex, with passive
// (on-read) expiration only.
package store

import "errors"

// errNotAnInteger is returned by Database.Incr when the existing
// payload doesn't parse as a signed 64-bit integer.
var errNotAnInteger = errors.New("value is not an integer or out of range")

// MinDatabases is the floor on Admin's database count: spec.md §3
// says "length = max(16, number of snapshot DBs)".
const MinDatabases = 16

// Admin is the keyspace root: an ordered, fixed-length sequence of
// Database and a currently-selected index. Nothing in this spec
// changes the selected index at runtime — SELECT is explicitly off
// the wire (spec.md §1 Non-goals) — so Active always returns
// databases[0].
type Admin struct {
	databases []*Database
}

// NewAdmin builds an Admin with max(MinDatabases, numDB) databases.
func NewAdmin(numDB int) *Admin {
	if numDB < MinDatabases {
		numDB = MinDatabases
	}
	dbs := make([]*Database, numDB)
	for i := range dbs {
		dbs[i] = newDatabase()
	}
	return &Admin{databases: dbs}
}

// Active returns the currently-selected Database (always index 0 in
// this spec's scope).
func (a *Admin) Active() *Database { return a.databases[0] }

// DB returns the Database at idx, used by the snapshot loader to
// populate a specific database index from a multi-DB snapshot.
func (a *Admin) DB(idx int) *Database {
	if idx < 0 || idx >= len(a.databases) {
		return nil
	}
	return a.databases[idx]
}

// Count returns the number of databases Admin owns.
func (a *Admin) Count() int { return len(a.databases) }
