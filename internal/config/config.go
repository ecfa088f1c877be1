// Package config holds the single immutable-after-startup record the
// external CLI collaborator builds and hands to the core. spec.md §9
// calls out the source's split process-wide locks around dir/
// dbfilename as a quirk to fix by consolidating into one record —
// this is that record.
package config

// Config is read-only once the listener starts accepting connections
// (spec.md §5 "Configuration: reader lock; writes only during
// startup").
type Config struct {
	Dir        string
	DBFilename string
	Port       int
	ReplicaOf  string
	ReplID     string
}

// SnapshotPath returns the configured snapshot path, or "" if either
// Dir or DBFilename is unset — in which case the server starts with
// an empty keyspace (spec.md §6).
func (c Config) SnapshotPath() string {
	if c.Dir == "" || c.DBFilename == "" {
		return ""
	}
	return c.Dir + "/" + c.DBFilename
}
