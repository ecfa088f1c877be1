package server

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"duskdb/internal/config"
	"github.com/stretchr/testify/require"
)

// startTestServer brings up a Server on port and returns a func that
// shuts it down.
func startTestServer(t *testing.T, port int) func() {
	t.Helper()
	cfg := &config.Config{Port: port, ReplID: "0123456789012345678901234567890123456789"}
	srv := New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	// Give the listener a moment to bind before the first dial.
	for i := 0; i < 50; i++ {
		conn, err := net.Dial("tcp", "127.0.0.1:"+itoaTest(port))
		if err == nil {
			conn.Close()
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	return func() {
		cancel()
		<-errCh
	}
}

func itoaTest(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [10]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[pos:])
}

func dial(t *testing.T, port int) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", "127.0.0.1:"+itoaTest(port))
	require.NoError(t, err)
	return conn, bufio.NewReader(conn)
}

func TestPingPong(t *testing.T) {
	stop := startTestServer(t, 17001)
	defer stop()

	conn, r := dial(t, 17001)
	defer conn.Close()

	_, err := conn.Write([]byte("*1\r\n$4\r\nPING\r\n"))
	require.NoError(t, err)

	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "+PONG\r\n", line)
}

func TestSetGetWithExpiry(t *testing.T) {
	stop := startTestServer(t, 17002)
	defer stop()

	conn, r := dial(t, 17002)
	defer conn.Close()

	_, err := conn.Write([]byte("*5\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n$2\r\nPX\r\n$5\r\n50000\r\n"))
	require.NoError(t, err)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "+OK\r\n", line)

	_, err = conn.Write([]byte("*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n"))
	require.NoError(t, err)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "$3\r\n", line)
	body, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "bar\r\n", body)
}

func TestIncrAndKeys(t *testing.T) {
	stop := startTestServer(t, 17003)
	defer stop()

	conn, r := dial(t, 17003)
	defer conn.Close()

	_, err := conn.Write([]byte("*2\r\n$4\r\nINCR\r\n$7\r\ncounter\r\n"))
	require.NoError(t, err)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ":1\r\n", line)

	_, err = conn.Write([]byte("*2\r\n$4\r\nKEYS\r\n$1\r\n*\r\n"))
	require.NoError(t, err)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "*1\r\n", line)
}

func TestMultiExecQueuesAndContinuesOnError(t *testing.T) {
	stop := startTestServer(t, 17004)
	defer stop()

	conn, r := dial(t, 17004)
	defer conn.Close()

	cmds := []string{
		"*1\r\n$5\r\nMULTI\r\n",
		"*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$3\r\nabc\r\n",
		"*2\r\n$4\r\nINCR\r\n$1\r\nk\r\n",
		"*1\r\n$4\r\nEXEC\r\n",
	}
	for _, c := range cmds {
		_, err := conn.Write([]byte(c))
		require.NoError(t, err)
	}

	line, err := r.ReadString('\n') // MULTI -> +OK
	require.NoError(t, err)
	require.Equal(t, "+OK\r\n", line)

	line, err = r.ReadString('\n') // SET queued -> +QUEUED
	require.NoError(t, err)
	require.Equal(t, "+QUEUED\r\n", line)

	line, err = r.ReadString('\n') // INCR queued -> +QUEUED
	require.NoError(t, err)
	require.Equal(t, "+QUEUED\r\n", line)

	line, err = r.ReadString('\n') // EXEC -> array of 2 replies
	require.NoError(t, err)
	require.Equal(t, "*2\r\n", line)

	line, err = r.ReadString('\n') // SET reply
	require.NoError(t, err)
	require.Equal(t, "+OK\r\n", line)

	line, err = r.ReadString('\n') // INCR on non-integer -> error
	require.NoError(t, err)
	require.Contains(t, line, "-ERR")
}

func TestConfigGetUnknownParamReturnsNullBulk(t *testing.T) {
	stop := startTestServer(t, 17005)
	defer stop()

	conn, r := dial(t, 17005)
	defer conn.Close()

	_, err := conn.Write([]byte("*3\r\n$6\r\nCONFIG\r\n$3\r\nGET\r\n$7\r\nunknown\r\n"))
	require.NoError(t, err)

	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "*2\r\n", line)

	line, err = r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "$7\r\n", line)
	body, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "unknown\r\n", body)

	line, err = r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "$-1\r\n", line)
}

func TestInfoReportsMasterRole(t *testing.T) {
	stop := startTestServer(t, 17006)
	defer stop()

	conn, r := dial(t, 17006)
	defer conn.Close()

	_, err := conn.Write([]byte("*1\r\n$4\r\nINFO\r\n"))
	require.NoError(t, err)

	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, byte('$'), line[0])

	lenLine := line
	_ = lenLine
	body := make([]byte, 0, 256)
	for {
		b, err := r.ReadByte()
		require.NoError(t, err)
		body = append(body, b)
		if len(body) >= 2 && body[len(body)-2] == '\r' && body[len(body)-1] == '\n' {
			break
		}
	}
	require.Contains(t, string(body), "role:master")
}
