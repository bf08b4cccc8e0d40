package events_test

import (
	"testing"

	"github.com/usnistgov/patchpanel/core/events"
	"github.com/usnistgov/patchpanel/core/testenv"
)

var makeAR = testenv.MakeAR

func TestOnCancel(t *testing.T) {
	assert, _ := makeAR(t)

	nA, nB, nC, nD := 0, 0, 0, 0
	fA := func() { nA++ }
	fB := func() { nB++ }
	fC := func() { nC++ }
	fD := func() { nD++ }

	emitter := events.NewEmitter()
	cancelA := emitter.On(1, fA)
	cancelB := emitter.On(1, fB)
	cancelC := emitter.Once(2, fC)
	cancelD := emitter.Once(2, fD)

	emitter.Emit(1)
	assert.Equal(1, nA)
	assert.Equal(1, nB)

	cancelA.Close()
	emitter.Emit(1)
	assert.Equal(1, nA)
	assert.Equal(2, nB)

	cancelA.Close()
	emitter.Emit(1)
	assert.Equal(1, nA)
	assert.Equal(3, nB)

	cancelB.Close()
	emitter.Emit(1)
	assert.Equal(3, nB)

	cancelD.Close()
	emitter.Emit(2)
	assert.Equal(1, nC)
	assert.Equal(0, nD)

	emitter.Emit(2)
	assert.Equal(1, nC)

	cancelC.Close()
}

func TestArguments(t *testing.T) {
	assert, _ := makeAR(t)

	emitter := events.NewEmitter()
	var got []string
	defer emitter.On("port", func(name string, id int) { got = append(got, name) }).Close()

	emitter.Emit("port", "ring", 3)
	emitter.Emit("port", "tap", 1)
	assert.Equal([]string{"ring", "tap"}, got)
}
