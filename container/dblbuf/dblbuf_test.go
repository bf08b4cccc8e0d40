package dblbuf_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/usnistgov/patchpanel/container/dblbuf"
	"github.com/usnistgov/patchpanel/core/testenv"
)

var makeAR = testenv.MakeAR

type pair struct {
	A, B int
}

func TestUpdate(t *testing.T) {
	assert, require := makeAR(t)

	a := dblbuf.New[pair]("test", dblbuf.Config{})
	r := a.NewReader()
	defer r.Close()
	assert.Equal(pair{}, *r.Acquire())
	r.Park()
	assert.Equal(uint64(0), a.Generation())

	for i := 1; i <= 5; i++ {
		require.NoError(a.Update(func(slot *pair) error {
			*slot = pair{i, i}
			return nil
		}))
		assert.True(r.Stale())
		assert.Equal(pair{i, i}, *r.Acquire())
		assert.False(r.Stale())
		r.Park()
		assert.Equal(uint64(i), a.Generation())
	}

	errBuild := errors.New("build failure")
	assert.ErrorIs(a.Update(func(slot *pair) error {
		slot.A = 100
		return errBuild
	}), errBuild)
	assert.Equal(uint64(5), a.Generation())
	assert.Equal(pair{5, 5}, *r.Acquire())
}

func TestDrainTimeout(t *testing.T) {
	assert, _ := makeAR(t)

	a := dblbuf.New[pair]("test", dblbuf.Config{RetryCount: 3, RetryInterval: 1})
	r := a.NewReader()
	defer r.Close()
	held := r.Acquire()

	// reader holds generation 0 and does not observe generation 1, so generation 0 is republished
	assert.ErrorIs(a.Update(func(slot *pair) error {
		*slot = pair{1, 1}
		return nil
	}), dblbuf.ErrDrainTimeout)
	assert.Equal(uint64(2), a.Generation())
	assert.Equal(pair{}, *held)

	// reader has not observed generation 2 either, so no rebuild is attempted
	built := false
	assert.ErrorIs(a.Update(func(slot *pair) error {
		built = true
		return nil
	}), dblbuf.ErrDrainTimeout)
	assert.False(built)
	assert.Equal(uint64(2), a.Generation())

	// once the reader resumes, updates succeed
	assert.Equal(pair{}, *r.Acquire())
	r.Park()
	assert.NoError(a.Update(func(slot *pair) error {
		*slot = pair{4, 4}
		return nil
	}))
	assert.Equal(pair{4, 4}, *r.Acquire())
}

func TestParked(t *testing.T) {
	assert, _ := makeAR(t)

	a := dblbuf.New[pair]("test", dblbuf.Config{RetryCount: 1, RetryInterval: 1})
	r := a.NewReader()
	defer r.Close()
	r.Acquire()
	r.Park()

	for i := 1; i <= 3; i++ {
		assert.NoError(a.Update(func(slot *pair) error {
			*slot = pair{i, i}
			return nil
		}))
	}
	assert.Equal(pair{3, 3}, *r.Acquire())

	r.Close()
	r2 := a.NewReader()
	defer r2.Close()
	assert.NoError(a.Update(func(slot *pair) error {
		*slot = pair{9, 9}
		return nil
	}))
}

func TestConcurrent(t *testing.T) {
	assert, _ := makeAR(t)

	a := dblbuf.New[pair]("test", dblbuf.Config{RetryCount: 100000})
	var stop atomic.Bool
	var torn atomic.Int32
	var wg sync.WaitGroup
	for range 2 {
		r := a.NewReader()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer r.Close()
			for !stop.Load() {
				p := r.Acquire()
				if p.A != p.B {
					torn.Add(1)
				}
			}
		}()
	}

	for i := 1; i <= 500; i++ {
		assert.NoError(a.Update(func(slot *pair) error {
			slot.A = i
			slot.B = i
			return nil
		}))
	}
	stop.Store(true)
	wg.Wait()
	assert.Zero(torn.Load())
}
