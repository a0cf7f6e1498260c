package server

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/bankd/internal/bank"
	"github.com/example/bankd/internal/hash"
	"github.com/example/bankd/internal/protocol"
	"github.com/example/bankd/internal/session"
	"github.com/example/bankd/internal/store"
	"github.com/example/bankd/pkg/audit"
)

type testServer struct {
	addr     string
	sessions *session.Manager
	trail    *audit.Trail
}

func startServer(t *testing.T) *testServer {
	t.Helper()

	sessions := session.NewManager()
	trail := audit.NewTrail()
	b := bank.New(store.NewMemory(), sessions, hash.New(), nil)

	srv := New(Options{
		Dispatcher:  protocol.NewDispatcher(b),
		Sessions:    sessions,
		Trail:       trail,
		IdleTimeout: 5 * time.Second,
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go srv.Serve(ln)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	return &testServer{addr: ln.Addr().String(), sessions: sessions, trail: trail}
}

type client struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

func dial(t *testing.T, addr string) *client {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &client{t: t, conn: conn, reader: bufio.NewReader(conn)}
}

// send writes one command line and returns the reply without its CRLF.
func (c *client) send(line string) string {
	c.t.Helper()
	_, err := c.conn.Write([]byte(line + "\r\n"))
	require.NoError(c.t, err)

	reply, err := c.reader.ReadString('\n')
	require.NoError(c.t, err)
	return strings.TrimRight(reply, "\r\n")
}

func TestHandshakeAndScenario(t *testing.T) {
	ts := startServer(t)

	alice := dial(t, ts.addr)
	assert.Equal(t, "OK bank", alice.send("HI"))
	assert.Equal(t, "OK 0", alice.send("REGISTER alice secret"))
	assert.Equal(t, "OK 0", alice.send("REGISTER bob secret2"))

	reply := alice.send("LOGIN alice secret")
	require.True(t, strings.HasPrefix(reply, "OK "), reply)
	aliceID := strings.TrimPrefix(reply, "OK ")

	bob := dial(t, ts.addr)
	reply = bob.send("LOGIN bob secret2")
	require.True(t, strings.HasPrefix(reply, "OK "), reply)
	bobID := strings.TrimPrefix(reply, "OK ")

	assert.Equal(t, "OK 0", alice.send("DEPOSIT 500"))
	assert.Equal(t, "OK 500", alice.send("BALANCE"))

	assert.Equal(t, "OK 0", alice.send("TRANSFER "+aliceID+" "+bobID+" 200"))
	assert.Equal(t, "OK 300", alice.send("BALANCE"))
	assert.Equal(t, "OK 200", bob.send("BALANCE "+bobID))

	assert.Equal(t, "ERR 4", alice.send("WITHDRAW 1000"))
	assert.Equal(t, "ERR 253", alice.send("DEPOSIT NaN"))
	assert.Equal(t, "OK 300", alice.send("BALANCE"))
}

func TestPreAuthRejections(t *testing.T) {
	ts := startServer(t)

	setup := dial(t, ts.addr)
	require.Equal(t, "OK 0", setup.send("REGISTER alice secret"))
	reply := setup.send("LOGIN alice secret")
	require.True(t, strings.HasPrefix(reply, "OK "), reply)
	aliceID := strings.TrimPrefix(reply, "OK ")

	stranger := dial(t, ts.addr)
	assert.Equal(t, "ERR 254", stranger.send("BOGUS"))
	assert.Equal(t, "ERR 253", stranger.send("DEPOSIT 500"))
	assert.Equal(t, "ERR 251", stranger.send("BALANCE "+aliceID))
	assert.Equal(t, "ERR 2", stranger.send("LOGIN alice wrong"))
	assert.Equal(t, "ERR 2", stranger.send("LOGIN nobody secret"))
}

func TestSessionConflictAndDisconnectUnbind(t *testing.T) {
	ts := startServer(t)

	first := dial(t, ts.addr)
	require.Equal(t, "OK 0", first.send("REGISTER alice secret"))
	reply := first.send("LOGIN alice secret")
	require.True(t, strings.HasPrefix(reply, "OK "), reply)

	second := dial(t, ts.addr)
	assert.Equal(t, "ERR 3", second.send("LOGIN alice secret"))

	// Dropping the connection must release the session as if the client
	// had logged out.
	first.conn.Close()
	require.Eventually(t, func() bool {
		return ts.sessions.Active() == 0
	}, 2*time.Second, 10*time.Millisecond)

	reply = second.send("LOGIN alice secret")
	assert.True(t, strings.HasPrefix(reply, "OK "), reply)
}

func TestLogoutClosesConnection(t *testing.T) {
	ts := startServer(t)

	c := dial(t, ts.addr)
	require.Equal(t, "OK 0", c.send("REGISTER alice secret"))
	reply := c.send("LOGIN alice secret")
	require.True(t, strings.HasPrefix(reply, "OK "), reply)

	assert.Equal(t, "OK 0", c.send("LOGOUT"))

	// The server ends the connection after a successful logout.
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := c.reader.ReadString('\n')
	assert.Error(t, err)
	assert.Equal(t, 0, ts.sessions.Active())
}

func TestOverlongLineDropsConnection(t *testing.T) {
	ts := startServer(t)

	c := dial(t, ts.addr)
	require.Equal(t, "OK bank", c.send("HI"))

	// A line that never ends must not buffer without bound; the server
	// drops the connection once the cap is hit.
	_, err := c.conn.Write([]byte(strings.Repeat("A", maxLineBytes+1)))
	require.NoError(t, err)

	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = c.reader.ReadString('\n')
	assert.Error(t, err)
}

func TestAuditTrailRecordsMutations(t *testing.T) {
	ts := startServer(t)

	c := dial(t, ts.addr)
	require.Equal(t, "OK 0", c.send("REGISTER alice secret"))
	reply := c.send("LOGIN alice secret")
	require.True(t, strings.HasPrefix(reply, "OK "), reply)
	require.Equal(t, "OK 0", c.send("DEPOSIT 100"))
	require.Equal(t, "ERR 4", c.send("WITHDRAW 500"))

	entries := ts.trail.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "REGISTER", entries[0].Op)
	assert.Equal(t, "DEPOSIT", entries[1].Op)
	assert.Equal(t, "WITHDRAW", entries[2].Op)
	assert.Contains(t, entries[2].Detail, "code=4")
	assert.True(t, audit.Verify(entries))
}
