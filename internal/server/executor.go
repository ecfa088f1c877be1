// Package server implements the Connection Handler (spec.md §2/§4.3):
// the accept loop, per-connection state machine, and the tagged-
// switch executor that ties the keyspace, transaction queue, and
// replication engine together.
package server

import (
	"fmt"
	"strconv"

	"duskdb/internal/command"
	"duskdb/internal/config"
	"duskdb/internal/repl"
	"duskdb/internal/resp"
	"duskdb/internal/store"
)

// ExecError is a runtime error raised while executing an already-
// decoded Command (spec.md §7: "ExecError ... reply -ERR <specific
// message>; inside EXEC, the error becomes the element's reply and
// the transaction continues").
type ExecError struct{ Msg string }

func (e *ExecError) Error() string { return e.Msg }

func execErrf(format string, args ...any) error {
	return &ExecError{Msg: fmt.Sprintf(format, args...)}
}

// Executor ties a Command to the keyspace, config, and replication
// state. Dispatch is a tagged switch over command.Kind (spec.md §9),
// never a registry of handler closures.
type Executor struct {
	Admin  *store.Admin
	Config *config.Config
	Info   *repl.Info
	Master *repl.Master // nil when this process is a replica
}

// Execute runs cmd and returns its RESP reply. For PSYNC, the caller
// (Client) must special-case command.PSync before calling Execute,
// since upgrading a connection to a replica pipe needs the raw
// *bufio.Writer and outlives a single reply value — see
// Client.handlePSync.
func (e *Executor) Execute(cmd command.Command) resp.Value {
	switch cmd.Kind {
	case command.Ping:
		return resp.Value{Type: resp.SimpleString, Str: "PONG"}

	case command.Echo:
		return resp.Value{Type: resp.SimpleString, Str: cmd.Text}

	case command.Get:
		v, ok := e.Admin.Active().Get(cmd.Key)
		if !ok {
			return resp.Value{Type: resp.BulkString, IsNull: true}
		}
		return resp.Value{Type: resp.BulkString, Str: v}

	case command.Set:
		var expireAt = zeroTimeIfNoPX(cmd)
		e.Admin.Active().Set(cmd.Key, cmd.Value, expireAt)
		e.propagate(cmd)
		return resp.Value{Type: resp.SimpleString, Str: "OK"}

	case command.Keys:
		keys, err := e.Admin.Active().Keys(cmd.Pattern)
		if err != nil {
			return errValue(execErrf("ERR Invalid Regex Format"))
		}
		arr := make([]resp.Value, len(keys))
		for i, k := range keys {
			arr[i] = resp.Value{Type: resp.BulkString, Str: k}
		}
		return resp.Value{Type: resp.Array, Array: arr}

	case command.Incr:
		n, err := e.Admin.Active().Incr(cmd.Key)
		if err != nil {
			return errValue(execErrf("ERR %s", err.Error()))
		}
		return resp.Value{Type: resp.Integer, Int: n}

	case command.ConfigGet:
		return e.configGet(cmd.ConfigParam)

	case command.Info:
		return e.info()

	case command.ReplConfListeningPort, command.ReplConfCapa:
		return resp.Value{Type: resp.SimpleString, Str: "OK"}

	case command.ReplConfGetAck:
		off := e.Info.Offset()
		return resp.Value{Type: resp.Array, Array: []resp.Value{
			{Type: resp.BulkString, Str: "REPLCONF"},
			{Type: resp.BulkString, Str: "ACK"},
			{Type: resp.BulkString, Str: strconv.FormatInt(off, 10)},
		}}

	default:
		return errValue(execErrf("ERR unsupported command in this context"))
	}
}

// propagate re-serializes write commands and publishes them to the
// bus when this process is a master with at least one connected
// replica (spec.md §4.5).
func (e *Executor) propagate(cmd command.Command) {
	if e.Master == nil || e.Master.Bus.Count() == 0 {
		return
	}
	e.Master.Bus.Publish(repl.EncodeSetCommand(cmd.Key, cmd.Value, cmd.HasPX, cmd.PXMillis))
}

func (e *Executor) configGet(param string) resp.Value {
	var value resp.Value
	switch param {
	case "dir":
		value = resp.Value{Type: resp.BulkString, Str: e.Config.Dir}
	case "dbfilename":
		value = resp.Value{Type: resp.BulkString, Str: e.Config.DBFilename}
	default:
		value = resp.Value{Type: resp.BulkString, IsNull: true}
	}
	return resp.Value{Type: resp.Array, Array: []resp.Value{
		{Type: resp.BulkString, Str: param},
		value,
	}}
}

func (e *Executor) info() resp.Value {
	return resp.Value{Type: resp.BulkString, Str: e.Info.Section()}
}

func errValue(err error) resp.Value {
	return resp.Value{Type: resp.Error, Str: err.Error()}
}
