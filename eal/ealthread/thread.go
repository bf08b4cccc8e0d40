// Package ealthread provides a polling thread abstraction bound to a logical core.
package ealthread

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/usnistgov/patchpanel/core/logging"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// ErrRunning indicates an error condition when a function expects the thread to be stopped.
var ErrRunning = errors.New("operation not permitted when thread is running")

var logger = logging.New("ealthread")

// Thread represents a procedure running on an LCore.
type Thread interface {
	// LCore returns allocated lcore.
	LCore() LCore

	// SetLCore assigns an lcore.
	// This can only be used when the thread is stopped.
	SetLCore(lc LCore)

	// IsRunning indicates whether the thread is running.
	IsRunning() bool

	// Launch launches the thread.
	Launch()

	// Stop stops the thread.
	Stop() error
}

// New creates a Thread.
// main is the thread procedure; it should return when stop is requested, and its return value is the exit code.
func New(main func() int, stop Stopper) Thread {
	return &threadImpl{
		main: main,
		stop: stop,
	}
}

type threadImpl struct {
	mutex sync.Mutex
	lc    LCore
	main  func() int
	stop  Stopper
	done  chan int
}

func (th *threadImpl) LCore() LCore {
	th.mutex.Lock()
	defer th.mutex.Unlock()
	return th.lc
}

func (th *threadImpl) SetLCore(lc LCore) {
	th.mutex.Lock()
	defer th.mutex.Unlock()
	if th.done != nil {
		panic(ErrRunning)
	}
	th.lc = lc
}

func (th *threadImpl) IsRunning() bool {
	th.mutex.Lock()
	defer th.mutex.Unlock()
	return th.done != nil
}

func (th *threadImpl) Launch() {
	th.mutex.Lock()
	defer th.mutex.Unlock()
	if th.done != nil {
		logger.Panic("thread is running", th.lc.ZapField("lc"))
	}

	done := make(chan int, 1)
	th.done = done
	lc := th.lc
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		if lc.Valid() {
			if e := setAffinity(lc); e != nil {
				logger.Warn("cannot set CPU affinity", lc.ZapField("lc"), zap.Error(e))
			}
		}
		done <- th.main()
	}()
}

func (th *threadImpl) Stop() error {
	th.mutex.Lock()
	done := th.done
	th.mutex.Unlock()
	if done == nil {
		return nil
	}

	th.stop.BeforeWait()
	exitCode := <-done
	th.stop.AfterWait()

	th.mutex.Lock()
	th.done = nil
	th.mutex.Unlock()
	if exitCode != 0 {
		return fmt.Errorf("exit code %d", exitCode)
	}
	return nil
}

func setAffinity(lc LCore) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(lc.ID())
	return unix.SchedSetaffinity(0, &set)
}

// WithThread is an object that encloses a Thread.
type WithThread interface {
	Thread() Thread
}

// ThreadOf retrieves Thread from Thread or WithThread.
func ThreadOf(obj any) Thread {
	switch obj := obj.(type) {
	case Thread:
		return obj
	case WithThread:
		return obj.Thread()
	}
	return nil
}
