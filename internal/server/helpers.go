package server

import (
	"time"

	"duskdb/internal/command"
)

// zeroTimeIfNoPX turns a decoded SET's optional PX milliseconds into
// an absolute expiry instant, or the zero Time when it carried none.
func zeroTimeIfNoPX(cmd command.Command) time.Time {
	if !cmd.HasPX {
		return time.Time{}
	}
	return time.Now().Add(time.Duration(cmd.PXMillis) * time.Millisecond)
}
