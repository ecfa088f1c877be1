package repl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"duskdb/internal/command"
	"duskdb/internal/logger"
	"duskdb/internal/rdb"
	"duskdb/internal/resp"
	"duskdb/internal/store"
)

// ErrHandshake is returned when a handshake step gets an unexpected
// reply from the master — spec.md §7's MasterConnectionError: "log
// and exit the replica ingest".
var ErrHandshake = errors.New("repl: unexpected reply from master during handshake")

// Slave is the replica-side half of the replication engine: it dials
// a master, performs the fixed handshake sequence, loads the initial
// snapshot, then runs a receive-apply loop that tracks
// master_repl_offset byte-exactly.
type Slave struct {
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer

	info  *Info
	admin *store.Admin

	ownPort int
}

// NewSlave builds a Slave bound to admin (where the initial snapshot
// and subsequently-replicated writes land) and info (whose offset it
// advances).
func NewSlave(info *Info, admin *store.Admin, ownPort int) *Slave {
	return &Slave{info: info, admin: admin, ownPort: ownPort}
}

// Connect dials masterAddr ("host port", per spec.md §4.5 step 1),
// performs the handshake, loads the snapshot, and returns — the
// caller starts the ingest loop with Run.
func (s *Slave) Connect(masterAddr string) error {
	parts := strings.Fields(masterAddr)
	if len(parts) != 2 {
		return fmt.Errorf("repl: invalid replicaof address %q", masterAddr)
	}
	addr := net.JoinHostPort(parts[0], parts[1])

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("repl: dialing master: %w", err)
	}
	s.conn = conn
	s.reader = bufio.NewReader(conn)
	s.writer = bufio.NewWriter(conn)

	if err := s.handshake(); err != nil {
		conn.Close()
		return err
	}
	return nil
}

func (s *Slave) handshake() error {
	if err := s.sendCommand("PING"); err != nil {
		return err
	}
	if err := s.expectSimpleString("PONG"); err != nil {
		return err
	}

	if err := s.sendCommand("REPLCONF", "listening-port", strconv.Itoa(s.ownPort)); err != nil {
		return err
	}
	if err := s.expectSimpleString("OK"); err != nil {
		return err
	}

	if err := s.sendCommand("REPLCONF", "capa", "psync2"); err != nil {
		return err
	}
	if err := s.expectSimpleString("OK"); err != nil {
		return err
	}

	if err := s.sendCommand("PSYNC", "?", "-1"); err != nil {
		return err
	}
	line, err := s.reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("repl: reading FULLRESYNC: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, "+FULLRESYNC") {
		return fmt.Errorf("%w: got %q", ErrHandshake, line)
	}
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return fmt.Errorf("%w: malformed FULLRESYNC line %q", ErrHandshake, line)
	}
	s.info.mu.Lock()
	s.info.replID = fields[1]
	s.info.offset = 0
	s.info.mu.Unlock()

	return s.loadSnapshot()
}

func (s *Slave) loadSnapshot() error {
	sizeLine, err := s.reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("repl: reading snapshot bulk header: %w", err)
	}
	sizeLine = strings.TrimRight(sizeLine, "\r\n")
	if !strings.HasPrefix(sizeLine, "$") {
		return fmt.Errorf("%w: expected bulk header, got %q", ErrHandshake, sizeLine)
	}
	n, err := strconv.Atoi(sizeLine[1:])
	if err != nil {
		return fmt.Errorf("repl: invalid snapshot size: %w", err)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(s.reader, buf); err != nil {
		return fmt.Errorf("repl: reading snapshot bytes: %w", err)
	}

	file, err := rdb.Decode(bytesReader(buf))
	if err != nil {
		logger.Errorf("repl: snapshot decode failed, starting with empty keyspace: %v", err)
		return nil
	}
	for _, ds := range file.Datasets {
		db := s.admin.DB(ds.Index)
		if db == nil {
			continue
		}
		for _, e := range ds.Entries {
			db.Set(e.Key, e.Value, e.ExpireAt)
		}
	}
	return nil
}

// Run reads streamed commands from the master until the connection
// closes, applying writes silently and replying only to
// REPLCONF GETACK.
func (s *Slave) Run() error {
	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 4096)
	for {
		n, err := s.reader.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		for {
			values, lens, perr := resp.ParseFrames(buf)
			if perr != nil {
				return perr
			}
			if len(values) == 0 {
				break
			}
			consumed := 0
			for i, v := range values {
				if err := s.applyOne(v); err != nil {
					return err
				}
				consumed += lens[i]
				s.info.AddOffset(int64(lens[i]))
			}
			buf = buf[consumed:]
		}
	}
}

// applyOne decodes and executes a single replicated frame. It does not
// touch master_repl_offset: Run advances it after each applyOne by
// exactly that frame's byte length — the raw count ParseFrames
// measured, not a re-encoded length (DESIGN.md Open Question E). The
// offset moves one frame at a time so that a REPLCONF GETACK bundled in the same
// network read as preceding writes still reports an offset that
// includes those writes' bytes but not its own (DESIGN.md Open
// Question F).
func (s *Slave) applyOne(v resp.Value) error {
	if v.Type != resp.Array {
		return nil
	}
	cmd, err := command.Decode(v.Array)
	if err != nil {
		logger.Errorf("repl: ignoring malformed replicated command: %v", err)
		return nil
	}

	if cmd.Kind == command.ReplConfGetAck {
		// Report the offset as it stands before folding in this
		// frame's own bytes.
		offset := s.info.Offset()
		return s.replyGetAck(offset)
	}

	if cmd.Kind == command.Set {
		var expireAt = zeroTimeIfNoPX(cmd)
		s.admin.Active().Set(cmd.Key, cmd.Value, expireAt)
	}
	return nil
}

func (s *Slave) replyGetAck(offset int64) error {
	offStr := strconv.FormatInt(offset, 10)
	frame := fmt.Sprintf("*3\r\n$8\r\nREPLCONF\r\n$3\r\nACK\r\n$%d\r\n%s\r\n", len(offStr), offStr)
	if _, err := s.writer.WriteString(frame); err != nil {
		return err
	}
	return s.writer.Flush()
}

func (s *Slave) sendCommand(parts ...string) error {
	b := make([][]byte, len(parts))
	for i, p := range parts {
		b[i] = []byte(p)
	}
	if _, err := s.writer.Write(resp.EncodeArray(b...)); err != nil {
		return err
	}
	return s.writer.Flush()
}

func (s *Slave) expectSimpleString(want string) error {
	line, err := s.reader.ReadString('\n')
	if err != nil {
		return err
	}
	line = strings.TrimRight(line, "\r\n")
	if line != "+"+want {
		return fmt.Errorf("%w: expected +%s, got %q", ErrHandshake, want, line)
	}
	return nil
}
