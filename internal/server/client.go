package server

import (
	"bufio"
	"errors"
	"io"
	"net"

	"duskdb/internal/command"
	"duskdb/internal/logger"
	"duskdb/internal/resp"
)

// Client is the per-connection state machine: its own read buffer
// (so a pipelined-but-incomplete final frame carries over to the next
// socket read — DESIGN.md Open Question A) and its own MULTI queue.
// Unlike the teacher's internal/cmd/transactions.go, which keys every
// transaction off the literal string "default" and so shares one
// queue across every connection, the transaction state here (inMulti
// and queue) is plain fields on Client — each connection gets its own
// (DESIGN.md Open Question C).
type Client struct {
	conn   net.Conn
	writer *bufio.Writer
	exec   *Executor

	readBuf []byte

	inMulti bool
	queue   []command.Command
}

func newClient(conn net.Conn, exec *Executor) *Client {
	return &Client{
		conn:    conn,
		writer:  bufio.NewWriter(conn),
		exec:    exec,
		readBuf: make([]byte, 0, 4096),
	}
}

// serve runs the connection's request loop until the client
// disconnects or a ParseError forces the connection closed (spec.md
// §7: "ParseError ... Policy: close connection").
func (c *Client) serve() {
	defer c.conn.Close()

	tmp := make([]byte, 4096)
	for {
		values, consumed, err := resp.ParseMany(c.readBuf)
		if err != nil {
			logger.Errorf("server: parse error, closing connection: %v", err)
			return
		}
		if consumed > 0 {
			c.readBuf = c.readBuf[consumed:]
			for _, v := range values {
				if v.Type != resp.Array {
					continue
				}
				if !c.handleOne(v.Array) {
					return
				}
			}
			continue
		}

		n, err := c.conn.Read(tmp)
		if n > 0 {
			c.readBuf = append(c.readBuf, tmp[:n]...)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Errorf("server: read error: %v", err)
			}
			return
		}
	}
}

// handleOne decodes and dispatches one request array. It returns
// false when the connection should be closed (a PSYNC upgrade hands
// the socket to the replica pipe, or a flush failed).
func (c *Client) handleOne(args []resp.Value) bool {
	cmd, err := command.Decode(args)
	if err != nil {
		return c.writeAndFlush(resp.Value{Type: resp.Error, Str: err.Error()})
	}

	if cmd.Kind == command.PSync {
		return c.handlePSync()
	}

	switch {
	case cmd.Kind == command.Multi:
		return c.beginMulti()
	case cmd.Kind == command.Discard:
		return c.discard()
	case cmd.Kind == command.Exec:
		return c.execTransaction()
	case c.inMulti:
		c.queue = append(c.queue, cmd)
		return c.writeAndFlush(resp.Value{Type: resp.SimpleString, Str: "QUEUED"})
	default:
		reply := c.exec.Execute(cmd)
		return c.writeAndFlush(reply)
	}
}

func (c *Client) beginMulti() bool {
	if c.inMulti {
		// Nested MULTI is out of scope (spec.md §4.3); reuse the
		// already-active queue rather than inventing new behavior.
		return c.writeAndFlush(resp.Value{Type: resp.SimpleString, Str: "OK"})
	}
	c.inMulti = true
	c.queue = nil
	return c.writeAndFlush(resp.Value{Type: resp.SimpleString, Str: "OK"})
}

func (c *Client) discard() bool {
	if !c.inMulti {
		return c.writeAndFlush(resp.Value{Type: resp.Error, Str: "ERR DISCARD without MULTI"})
	}
	c.inMulti = false
	c.queue = nil
	return c.writeAndFlush(resp.Value{Type: resp.SimpleString, Str: "OK"})
}

func (c *Client) execTransaction() bool {
	if !c.inMulti {
		return c.writeAndFlush(resp.Value{Type: resp.Error, Str: "ERR EXEC without MULTI"})
	}
	queued := c.queue
	c.inMulti = false
	c.queue = nil

	replies := make([]resp.Value, len(queued))
	for i, cmd := range queued {
		replies[i] = c.exec.Execute(cmd)
	}
	return c.writeAndFlush(resp.Value{Type: resp.Array, Array: replies})
}

// handlePSync upgrades the connection into a replica pipe: it writes
// the FULLRESYNC response and snapshot itself (via repl.Master), then
// blocks pumping bus messages to the socket until the connection
// drops.
func (c *Client) handlePSync() bool {
	if c.exec.Master == nil {
		return c.writeAndFlush(resp.Value{Type: resp.Error, Str: "ERR not a master"})
	}
	id, ch, err := c.exec.Master.UpgradePSync(c.writer)
	if err != nil {
		logger.Errorf("server: PSYNC upgrade failed: %v", err)
		return false
	}
	defer c.exec.Master.Bus.Unsubscribe(id)

	for data := range ch {
		if _, err := c.writer.Write(data); err != nil {
			return false
		}
		if err := c.writer.Flush(); err != nil {
			return false
		}
	}
	return false
}

func (c *Client) writeAndFlush(v resp.Value) bool {
	if err := resp.Encode(c.writer, v); err != nil {
		return false
	}
	if err := c.writer.Flush(); err != nil {
		return false
	}
	return true
}
