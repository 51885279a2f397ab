package server

import (
	"bufio"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidekv/tidekv/fs"
	"github.com/tidekv/tidekv/lsm"
	"github.com/tidekv/tidekv/redis"
)

func startTestServer(t *testing.T) (addr string, shutdown func()) {
	t.Helper()
	engine, err := lsm.Open(fs.MemFs(), lsm.DefaultOptions())
	require.NoError(t, err)
	srv := New(redis.NewStore(engine), nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		srv.Serve(ln)
		close(done)
	}()
	return ln.Addr().String(), func() {
		srv.Close()
		<-done
	}
}

type testClient struct {
	conn net.Conn
	r    *bufio.Reader
}

func dialTest(t *testing.T, addr string) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	return &testClient{conn: conn, r: bufio.NewReader(conn)}
}

func (c *testClient) send(t *testing.T, raw string) {
	t.Helper()
	_, err := c.conn.Write([]byte(raw))
	require.NoError(t, err)
}

func (c *testClient) readLine(t *testing.T) string {
	t.Helper()
	line, err := c.r.ReadString('\n')
	require.NoError(t, err)
	return line
}

func TestServerInlineCommands(t *testing.T) {
	addr, shutdown := startTestServer(t)
	defer shutdown()

	c := dialTest(t, addr)
	defer c.conn.Close()

	c.send(t, "SET greeting hello\r\n")
	assert.Equal(t, "+OK\r\n", c.readLine(t))

	c.send(t, "GET greeting\r\n")
	assert.Equal(t, "$5\r\n", c.readLine(t))
	assert.Equal(t, "hello\r\n", c.readLine(t))

	c.send(t, "GET nothing\r\n")
	assert.Equal(t, "$-1\r\n", c.readLine(t))
}

func TestServerRESPArrays(t *testing.T) {
	addr, shutdown := startTestServer(t)
	defer shutdown()

	c := dialTest(t, addr)
	defer c.conn.Close()

	c.send(t, "*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$9\r\nsome data\r\n")
	assert.Equal(t, "+OK\r\n", c.readLine(t))

	c.send(t, "*2\r\n$3\r\nGET\r\n$1\r\nk\r\n")
	assert.Equal(t, "$9\r\n", c.readLine(t))
	assert.Equal(t, "some data\r\n", c.readLine(t))
}

func TestServerCommandErrors(t *testing.T) {
	addr, shutdown := startTestServer(t)
	defer shutdown()

	c := dialTest(t, addr)
	defer c.conn.Close()

	c.send(t, "BOGUS\r\n")
	line := c.readLine(t)
	assert.Contains(t, line, "-ERR unknown command")

	c.send(t, "SET onlykey\r\n")
	line = c.readLine(t)
	assert.Contains(t, line, "-ERR wrong number of arguments")
}

func TestServerQuit(t *testing.T) {
	addr, shutdown := startTestServer(t)
	defer shutdown()

	c := dialTest(t, addr)
	defer c.conn.Close()

	c.send(t, "QUIT\r\n")
	assert.Equal(t, "+OK\r\n", c.readLine(t))
	// server closes the connection after QUIT
	_, err := c.r.ReadByte()
	assert.Error(t, err)
}

func TestServerMultipleClients(t *testing.T) {
	addr, shutdown := startTestServer(t)
	defer shutdown()

	c1 := dialTest(t, addr)
	defer c1.conn.Close()
	c2 := dialTest(t, addr)
	defer c2.conn.Close()

	c1.send(t, "SET shared fromc1\r\n")
	assert.Equal(t, "+OK\r\n", c1.readLine(t))

	c2.send(t, "GET shared\r\n")
	assert.Equal(t, "$6\r\n", c2.readLine(t))
	assert.Equal(t, "fromc1\r\n", c2.readLine(t))
}
