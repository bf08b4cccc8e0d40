package main

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/gabstv/freeport"
	"github.com/usnistgov/patchpanel/app/dataplane/dataplanetest"
	"github.com/usnistgov/patchpanel/core/testenv"
	"github.com/usnistgov/patchpanel/mgmt/cmdline"
	"github.com/usnistgov/patchpanel/mgmt/ctrlconn"
	"github.com/usnistgov/patchpanel/mgmt/ctrlhub"
)

var makeAR = testenv.MakeAR

func TestShell(t *testing.T) {
	assert, require := makeAR(t)

	tcpPort, e := freeport.TCP()
	require.NoError(e)
	addr := fmt.Sprintf("127.0.0.1:%d", tcpPort)
	hub, e := ctrlhub.Listen(addr)
	require.NoError(e)
	defer hub.Close()

	var out bytes.Buffer
	sh := newShell(hub, &out)
	require.NoError(sh.Dispatch("status"))
	assert.Equal("no client connected\n", out.String())

	f := dataplanetest.New(t, nil)
	c, e := ctrlconn.New(ctrlconn.Config{Controller: addr}, cmdline.New(f.DP))
	require.NoError(e)
	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()
	require.Eventually(func() bool { return len(hub.Clients()) == 1 }, time.Second, 10*time.Millisecond)

	out.Reset()
	require.NoError(sh.Dispatch("status"))
	assert.Equal("1 client connected\n  sec 0\n", out.String())
	assert.Equal([]string{"0"}, sh.clientIDs(""))

	out.Reset()
	require.NoError(sh.Dispatch("sec 0 add ring:3"))
	assert.JSONEq(`{"result":"success"}`, out.String())
	assert.Equal([]string{"ring:3"}, sh.recentPorts(""))

	out.Reset()
	require.NoError(sh.Dispatch("sec 0 add ring:3"))
	assert.Contains(out.String(), `"FAILED"`)

	assert.Error(sh.Dispatch("sec 0"))
	assert.Error(sh.Dispatch("sec x status"))
	assert.ErrorIs(sh.Dispatch("sec 7 status"), ctrlhub.ErrNoClient)
	assert.Error(sh.Dispatch("reboot"))
	assert.NoError(sh.Dispatch(""))
	assert.NoError(sh.Dispatch("help"))

	assert.ErrorIs(sh.Dispatch("bye all"), errBye)
	select {
	case e := <-done:
		assert.NoError(e)
	case <-time.After(time.Second):
		require.Fail("client did not exit")
	}
}
