package ctrlconn_test

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gabstv/freeport"
	"github.com/usnistgov/patchpanel/core/testenv"
	"github.com/usnistgov/patchpanel/mgmt/ctrlconn"
)

var makeAR = testenv.MakeAR

type echoExecutor struct {
	mutex sync.Mutex
	lines []string
}

func (x *echoExecutor) Execute(line string) (reply []byte, exit bool) {
	x.mutex.Lock()
	defer x.mutex.Unlock()
	x.lines = append(x.lines, line)
	return []byte(strings.ToUpper(line)), line == "exit"
}

func listen(t testing.TB) (ln net.Listener, addr string) {
	port, e := freeport.TCP()
	if e != nil {
		t.Fatalf("freeport.TCP: %v", e)
	}
	addr = fmt.Sprintf("127.0.0.1:%d", port)
	ln, e = net.Listen("tcp", addr)
	if e != nil {
		t.Fatalf("net.Listen: %v", e)
	}
	t.Cleanup(func() { ln.Close() })
	return ln, addr
}

func TestConfig(t *testing.T) {
	assert, _ := makeAR(t)

	assert.NoError(ctrlconn.Config{Controller: "127.0.0.1:5555"}.Validate())
	assert.NoError(ctrlconn.Config{Controller: "[::1]:5555"}.Validate())
	assert.Error(ctrlconn.Config{Controller: "localhost"}.Validate())
	_, e := ctrlconn.New(ctrlconn.Config{}, &echoExecutor{})
	assert.Error(e)
}

func TestRedial(t *testing.T) {
	assert, require := makeAR(t)
	ln, addr := listen(t)

	x := &echoExecutor{}
	c, e := ctrlconn.New(ctrlconn.Config{Controller: addr, RedialInitial: 10, RedialMaximum: 20}, x)
	require.NoError(e)

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	exchange := func(conn net.Conn, line string) string {
		fmt.Fprintln(conn, line)
		conn.SetReadDeadline(time.Now().Add(time.Second))
		reply, e := bufio.NewReader(conn).ReadString('\n')
		require.NoError(e)
		return strings.TrimSuffix(reply, "\n")
	}

	conn, e := ln.Accept()
	require.NoError(e)
	assert.Equal("STATUS", exchange(conn, "status"))
	conn.Close()

	conn, e = ln.Accept()
	require.NoError(e)
	defer conn.Close()
	assert.Equal("PATCH RESET", exchange(conn, "patch reset"))
	assert.Equal("EXIT", exchange(conn, "exit"))

	select {
	case e := <-done:
		assert.NoError(e)
	case <-time.After(time.Second):
		require.Fail("Run did not return after exit")
	}
	assert.Equal([]string{"status", "patch reset", "exit"}, x.lines)
	assert.Equal(1, c.NRedials())
}

func TestCancel(t *testing.T) {
	assert, require := makeAR(t)
	_, addr := listen(t)

	c, e := ctrlconn.New(ctrlconn.Config{Controller: addr}, &echoExecutor{})
	require.NoError(e)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case e := <-done:
		assert.ErrorIs(e, context.Canceled)
	case <-time.After(time.Second):
		require.Fail("Run did not return after cancel")
	}
}
