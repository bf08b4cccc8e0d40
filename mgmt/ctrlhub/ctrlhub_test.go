package ctrlhub_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/gabstv/freeport"
	"github.com/usnistgov/patchpanel/app/dataplane"
	"github.com/usnistgov/patchpanel/app/dataplane/dataplanetest"
	"github.com/usnistgov/patchpanel/core/testenv"
	"github.com/usnistgov/patchpanel/mgmt/cmdline"
	"github.com/usnistgov/patchpanel/mgmt/ctrlconn"
	"github.com/usnistgov/patchpanel/mgmt/ctrlhub"
)

var makeAR = testenv.MakeAR

func TestHub(t *testing.T) {
	assert, require := makeAR(t)

	_, e := ctrlhub.Listen("localhost:1")
	assert.Error(e)

	tcpPort, e := freeport.TCP()
	require.NoError(e)
	addr := fmt.Sprintf("127.0.0.1:%d", tcpPort)
	h, e := ctrlhub.Listen(addr)
	require.NoError(e)
	defer h.Close()

	f := dataplanetest.New(t, func(cfg *dataplane.Config) { cfg.ClientID = 4 })
	c, e := ctrlconn.New(ctrlconn.Config{Controller: addr}, cmdline.New(f.DP))
	require.NoError(e)
	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	require.Eventually(func() bool { return len(h.Clients()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal([]int{4}, h.Clients())

	reply, e := h.Exec(4, "add ring:0")
	require.NoError(e)
	assert.JSONEq(`{"result":"success"}`, string(reply))

	reply, e = h.Exec(4, "status")
	require.NoError(e)
	var st dataplane.Status
	testenv.FromJSON(string(reply), &st)
	assert.Equal(4, st.ClientID)
	assert.Equal([]string{"ring:0"}, st.Ports)

	_, e = h.Exec(9, "status")
	assert.ErrorIs(e, ctrlhub.ErrNoClient)

	assert.NoError(h.Bye())
	select {
	case e := <-done:
		assert.NoError(e)
	case <-time.After(time.Second):
		require.Fail("client did not exit")
	}
	assert.Len(h.Clients(), 0)
}
