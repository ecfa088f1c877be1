package repl

import (
	"bufio"
	"fmt"
	"os"

	"duskdb/internal/rdb"
)

// Master is the master-side half of the replication engine: it
// answers a PSYNC upgrade with a FULLRESYNC response and a snapshot
// dump, then hands the caller a Bus subscription to pump into the
// now-replica connection.
type Master struct {
	Info *Info
	Bus  *Bus

	// SnapshotPath, if non-empty, is read and sent verbatim as the
	// post-FULLRESYNC bulk payload. When empty, or when the file can't
	// be read, the fixed empty-snapshot fixture is sent instead
	// (spec.md §4.5).
	SnapshotPath string
}

// NewMaster builds a Master with a fresh Bus.
func NewMaster(info *Info, snapshotPath string) *Master {
	return &Master{Info: info, Bus: NewBus(), SnapshotPath: snapshotPath}
}

// UpgradePSync writes the FULLRESYNC line and the snapshot bulk
// payload to w, then subscribes the connection to the bus so the
// caller can pump published writes into it. The bulk payload's
// length prefix is "$<n>\r\n" with **no trailing CRLF** after the
// snapshot bytes — spec.md §4.5 is explicit about this, unlike an
// ordinary RESP bulk string; the teacher's PSyncHandlerWithRDB
// appends one anyway, which this corrects (DESIGN.md Open Question G).
func (m *Master) UpgradePSync(w *bufio.Writer) (id int, ch <-chan []byte, err error) {
	if _, err := fmt.Fprintf(w, "+FULLRESYNC %s %d\r\n", m.Info.ReplID(), m.Info.Offset()); err != nil {
		return 0, nil, err
	}
	if err := w.Flush(); err != nil {
		return 0, nil, err
	}

	snap, err := m.snapshotBytes()
	if err != nil {
		return 0, nil, err
	}

	if _, err := fmt.Fprintf(w, "$%d\r\n", len(snap)); err != nil {
		return 0, nil, err
	}
	if _, err := w.Write(snap); err != nil {
		return 0, nil, err
	}
	if err := w.Flush(); err != nil {
		return 0, nil, err
	}

	id, ch = m.Bus.Subscribe()
	return id, ch, nil
}

func (m *Master) snapshotBytes() ([]byte, error) {
	if m.SnapshotPath == "" {
		return rdb.EmptySnapshot(), nil
	}
	b, err := os.ReadFile(m.SnapshotPath)
	if err != nil {
		return rdb.EmptySnapshot(), nil
	}
	return b, nil
}

// EncodeSetCommand re-serializes a SET for replication, lower-cased
// per spec.md §4.5 ("set", key, value[, "px", ms]). Only SET is
// propagated in this spec's scope.
func EncodeSetCommand(key, value string, hasPX bool, pxMillis int64) []byte {
	parts := [][]byte{[]byte("set"), []byte(key), []byte(value)}
	if hasPX {
		parts = append(parts, []byte("px"), []byte(fmt.Sprintf("%d", pxMillis)))
	}
	var buf []byte
	buf = append(buf, []byte(fmt.Sprintf("*%d\r\n", len(parts)))...)
	for _, p := range parts {
		buf = append(buf, []byte(fmt.Sprintf("$%d\r\n", len(p)))...)
		buf = append(buf, p...)
		buf = append(buf, '\r', '\n')
	}
	return buf
}
