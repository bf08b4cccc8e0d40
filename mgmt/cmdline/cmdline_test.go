package cmdline_test

import (
	"testing"

	"github.com/usnistgov/patchpanel/app/dataplane"
	"github.com/usnistgov/patchpanel/app/dataplane/dataplanetest"
	"github.com/usnistgov/patchpanel/core/testenv"
	"github.com/usnistgov/patchpanel/mgmt/cmdline"
)

var makeAR = testenv.MakeAR

type fixture struct {
	*dataplanetest.Fixture
	ip *cmdline.Interpreter
}

func newFixture(t testing.TB) *fixture {
	f := dataplanetest.New(t, nil)
	return &fixture{Fixture: f, ip: cmdline.New(f.DP)}
}

func (f *fixture) Result(line string) (res cmdline.Result) {
	reply, exit := f.ip.Execute(line)
	if exit {
		panic(line + " requested exit")
	}
	testenv.FromJSON(string(reply), &res)
	return res
}

func (f *fixture) Code(line string) cmdline.Code {
	res := f.Result(line)
	if res.ErrorDetails == nil {
		return 0
	}
	return res.ErrorDetails.Code
}

func (f *fixture) Status() (st dataplane.Status) {
	reply, _ := f.ip.Execute("status")
	testenv.FromJSON(string(reply), &st)
	return st
}

func TestPatch(t *testing.T) {
	assert, require := makeAR(t)
	f := newFixture(t)

	require.Equal(cmdline.Result{Result: cmdline.ResultSuccess}, f.Result("add ring:0"))
	require.NoError(f.Result("add ring:1").Err())
	require.NoError(f.Result("patch ring:0 ring:1").Err())
	require.NoError(f.Result("forward").Err())

	st := f.Status()
	assert.Equal(dataplane.StatusRunning, st.Status)
	assert.Equal([]string{"ring:0", "ring:1"}, st.Ports)
	assert.Equal([]dataplane.PatchStatus{{Src: "ring:0", Dst: "ring:1"}}, st.Patches)

	f.Feed(0, 3, testenv.EthernetFrame("02:00:00:00:00:0A", "02:00:00:00:00:01", -1, 46))
	assert.True(f.WaitRing(1, 3))

	require.NoError(f.Result("stop").Err())
	assert.Equal(dataplane.StatusIdling, f.Status().Status)

	require.NoError(f.Result("patch reset").Err())
	assert.Len(f.Status().Patches, 0)

	require.NoError(f.Result("del ring:1").Err())
	assert.Equal([]string{"ring:0"}, f.Status().Ports)
}

func TestErrors(t *testing.T) {
	assert, require := makeAR(t)
	f := newFixture(t)
	require.NoError(f.Result("add ring:0").Err())

	assert.Equal(cmdline.CodeWrongFormat, f.Code(""))
	assert.Equal(cmdline.CodeWrongFormat, f.Code("add 'ring:0"))
	assert.Equal(cmdline.CodeUnknownCommand, f.Code("connect ring:0"))
	assert.Equal(cmdline.CodeNoParam, f.Code("add"))
	assert.Equal(cmdline.CodeInvalidType, f.Code("add eth:0"))
	assert.Equal(cmdline.CodeInvalidValue, f.Code("add ring:x"))
	assert.Equal(cmdline.CodeFailed, f.Code("add ring:0"))
	assert.Equal(cmdline.CodeFailed, f.Code("patch ring:0 ring:5"))
	assert.Equal(cmdline.CodeWrongFormat, f.Code("patch ring:0 ring:0 ring:0"))
	assert.Equal(cmdline.CodeNoParam, f.Code("_set_client_id"))
	assert.Equal(cmdline.CodeInvalidValue, f.Code("_set_client_id -1"))

	res := f.Result("del ring:8")
	assert.Equal(cmdline.ResultError, res.Result)
	require.NotNil(res.ErrorDetails)
	assert.Contains(res.ErrorDetails.Message, "ring:8")
	assert.Error(res.Err())
}

func TestClientID(t *testing.T) {
	assert, require := makeAR(t)
	f := newFixture(t)

	require.NoError(f.Result("_set_client_id 3").Err())
	reply, exit := f.ip.Execute("_get_client_id")
	assert.False(exit)
	assert.Equal("3", string(reply))
	assert.Equal(3, f.Status().ClientID)
}

func TestExit(t *testing.T) {
	assert, _ := makeAR(t)
	f := newFixture(t)

	f.Result("forward")
	reply, exit := f.ip.Execute("exit")
	assert.True(exit)
	assert.JSONEq(`{"result":"success"}`, string(reply))
	assert.Equal(dataplane.StatusIdling, f.DP.Status().Status)
}

func TestClassifier(t *testing.T) {
	assert, require := makeAR(t)
	f := newFixture(t)

	for _, line := range []string{
		"add ring:0",
		"add ring:1",
		"add ring:2",
		"component start cls1 2 classifier_mac",
		"port add ring:0 rx cls1 del_vlantag",
		"port add ring:1 tx cls1",
		"port add ring:2 tx cls1 add_vlantag 10 3",
		"classifier_table add mac 02:00:00:00:00:0a ring:1",
		"classifier_table add mac default ring:2",
		"classifier_table add vlan 7 02:00:00:00:00:0b ring:2",
	} {
		require.NoError(f.Result(line).Err(), line)
	}

	assert.Equal(cmdline.CodeInvalidType, f.Code("component start cls2 3 mirror"))
	assert.Equal(cmdline.CodeInvalidValue, f.Code("component start cls2 x classifier_mac"))
	assert.Equal(cmdline.CodeNoParam, f.Code("component start cls2"))
	assert.Equal(cmdline.CodeUnknownCommand, f.Code("component pause cls1"))
	assert.Equal(cmdline.CodeInvalidValue, f.Code("port add ring:1 up cls1"))
	assert.Equal(cmdline.CodeInvalidValue, f.Code("port add ring:1 tx cls1 add_vlantag 5000 0"))
	assert.Equal(cmdline.CodeInvalidType, f.Code("port add ring:1 tx cls1 set_vlantag"))
	assert.Equal(cmdline.CodeInvalidValue, f.Code("classifier_table add vlan 4095 default ring:1"))
	assert.Equal(cmdline.CodeInvalidValue, f.Code("classifier_table add mac 02:00 ring:1"))
	assert.Equal(cmdline.CodeInvalidType, f.Code("classifier_table add ip 10.0.0.1 ring:1"))
	assert.Equal(cmdline.CodeFailed, f.Code("classifier_table add mac default ring:0"))

	st := f.Status()
	require.Len(st.Components, 1)
	assert.Equal(dataplane.ComponentStatus{
		LCore: 2, Name: "cls1", Type: dataplane.ComponentClassifierMAC,
		RxPort: []string{"ring:0"}, TxPort: []string{"ring:1", "ring:2"},
	}, st.Components[0])
	assert.Equal([]dataplane.ClassifierStatus{
		{Type: "mac", Value: "02:00:00:00:00:0a", Port: "ring:1"},
		{Type: "mac", Value: "default", Port: "ring:2"},
		{Type: "vlan", Value: "7/02:00:00:00:00:0b", Port: "ring:2"},
	}, st.ClassifierTable)

	require.NoError(f.Result("classifier_table del vlan 7 02:00:00:00:00:0b ring:2").Err())
	require.NoError(f.Result("port del ring:2 tx cls1").Err())
	assert.Len(f.Status().ClassifierTable, 1)

	require.NoError(f.Result("component stop cls1").Err())
	assert.Equal(cmdline.CodeFailed, f.Code("component stop cls1"))
}

func TestRelay(t *testing.T) {
	assert, require := makeAR(t)
	f := newFixture(t)

	for _, line := range []string{
		"add ring:0",
		"add ring:1",
		"add ring:2",
		"add ring:3",
		"component start fwd1 2 forward",
		"component start mrg1 3 merge",
		"port add ring:0 rx fwd1",
		"port add ring:1 tx fwd1 add_vlantag 10 0",
		"port add ring:1 rx mrg1",
		"port add ring:2 rx mrg1",
		"port add ring:3 tx mrg1",
	} {
		require.NoError(f.Result(line).Err(), line)
	}
	assert.Equal(cmdline.CodeFailed, f.Code("port add ring:0 tx mrg1"))
	assert.Equal(cmdline.CodeFailed, f.Code("classifier_table add mac default ring:3"))

	st := f.Status()
	assert.Equal([]dataplane.ComponentStatus{
		{LCore: 2, Name: "fwd1", Type: dataplane.ComponentForward, RxPort: []string{"ring:0"}, TxPort: []string{"ring:1"}},
		{LCore: 3, Name: "mrg1", Type: dataplane.ComponentMerge, RxPort: []string{"ring:1", "ring:2"}, TxPort: []string{"ring:3"}},
	}, st.Components)

	// ring:0 -> fwd1 -> ring:1 -> mrg1 -> ring:3
	f.Feed(0, 3, testenv.EthernetFrame("02:00:00:00:00:0A", "02:00:00:00:00:01", -1, 46))
	assert.True(f.WaitRing(3, 3))
	f.Drain(3)

	require.NoError(f.Result("port del ring:3 tx mrg1").Err())
	require.NoError(f.Result("component stop fwd1").Err())
	require.NoError(f.Result("component stop mrg1").Err())
	assert.Len(f.Status().Components, 0)
}
