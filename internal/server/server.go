package server

import (
	"context"
	"net"
	"os"
	"strconv"

	"duskdb/internal/config"
	"duskdb/internal/logger"
	"duskdb/internal/rdb"
	"duskdb/internal/repl"
	"duskdb/internal/store"
)

// Server owns the listener, the keyspace, and the replication state.
// It's built once at startup and passed by reference into every
// connection task — spec.md §9 prefers this over true process-wide
// globals even though the state it wraps is conceptually a singleton.
type Server struct {
	cfg   *config.Config
	admin *store.Admin
	info  *repl.Info

	master *repl.Master // nil when role is Slave
	slave  *repl.Slave  // nil when role is Master

	ln net.Listener
}

// New builds a Server from cfg, sizing the keyspace to fit whatever
// snapshot is on disk (spec.md §3: "length = max(16, number of
// snapshot DBs)") and loading it before the listener starts.
func New(cfg *config.Config) *Server {
	file := loadSnapshotFile(cfg.SnapshotPath())

	numDB := store.MinDatabases
	for _, ds := range file.Datasets {
		if ds.Index+1 > numDB {
			numDB = ds.Index + 1
		}
	}
	admin := store.NewAdmin(numDB)
	for _, ds := range file.Datasets {
		db := admin.DB(ds.Index)
		if db == nil {
			continue
		}
		for _, e := range ds.Entries {
			db.Set(e.Key, e.Value, e.ExpireAt)
		}
	}

	role := repl.RoleMaster
	if cfg.ReplicaOf != "" {
		role = repl.RoleSlave
	}
	info := repl.NewInfo(role, cfg.ReplID)

	s := &Server{cfg: cfg, admin: admin, info: info}
	if role == repl.RoleMaster {
		s.master = repl.NewMaster(info, cfg.SnapshotPath())
	} else {
		s.slave = repl.NewSlave(info, admin, cfg.Port)
	}
	return s
}

// Run performs the replica handshake (if configured as a replica —
// spec.md §5: "The replica handshake runs before the accept loop
// begins"), then accepts connections until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	if s.slave != nil {
		if err := s.slave.Connect(s.cfg.ReplicaOf); err != nil {
			logger.Errorf("server: replica handshake failed: %v", err)
		} else {
			go func() {
				if err := s.slave.Run(); err != nil {
					logger.Errorf("server: replica ingest loop ended: %v", err)
				}
			}()
		}
	}

	ln, err := net.Listen("tcp", ":"+strconv.Itoa(s.cfg.Port))
	if err != nil {
		return err
	}
	s.ln = ln
	logger.Infof("server: listening on port %d as %s", s.cfg.Port, s.info.Role())

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	exec := &Executor{Admin: s.admin, Config: s.cfg, Info: s.info, Master: s.master}

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go newClient(conn, exec).serve()
	}
}

// loadSnapshotFile reads and decodes the snapshot at path, returning
// an empty RDBFile if path is unset, missing, or unreadable — a
// missing snapshot is not an error, it just means an empty keyspace.
func loadSnapshotFile(path string) *rdb.RDBFile {
	if path == "" {
		return &rdb.RDBFile{}
	}
	f, err := os.Open(path)
	if err != nil {
		logger.Infof("server: no snapshot at %s, starting with an empty keyspace", path)
		return &rdb.RDBFile{}
	}
	defer f.Close()

	file, err := rdb.Decode(f)
	if err != nil {
		logger.Errorf("server: snapshot decode failed, starting with an empty keyspace: %v", err)
		return &rdb.RDBFile{}
	}
	return file
}
