package repl

import (
	"bytes"
	"io"
	"time"

	"duskdb/internal/command"
)

func bytesReader(b []byte) io.Reader { return bytes.NewReader(b) }

// zeroTimeIfNoPX turns a decoded SET's optional PX milliseconds into
// an absolute expiry instant, or the zero Time when the replicated
// command carried no PX.
func zeroTimeIfNoPX(cmd command.Command) time.Time {
	if !cmd.HasPX {
		return time.Time{}
	}
	return time.Now().Add(time.Duration(cmd.PXMillis) * time.Millisecond)
}
