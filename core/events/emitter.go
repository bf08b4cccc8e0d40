// Package events provides a simple event emitter.
package events

import (
	"io"
	"sync"

	"github.com/chuckpreslar/emission"
)

// Emitter is a simple event emitter.
// This is a thin wrapper of emission.Emitter that modifies On and Once methods to return an io.Closer that cancels the callback registration.
type Emitter struct {
	*emission.Emitter
}

// NewEmitter creates a simple event emitter.
func NewEmitter() *Emitter {
	return &Emitter{
		Emitter: emission.NewEmitter(),
	}
}

// On registers a callback when an event occurs.
// Returns an io.Closer that cancels the callback registration.
func (emitter *Emitter) On(event, listener any) io.Closer {
	emitter.Emitter.On(event, listener)
	return &canceler{emitter: emitter.Emitter, event: event, listener: listener}
}

// Once registers a one-time callback when an event occurs.
// Returns an io.Closer that cancels the callback registration.
func (emitter *Emitter) Once(event, listener any) io.Closer {
	emitter.Emitter.Once(event, listener)
	return &canceler{emitter: emitter.Emitter, event: event, listener: listener}
}

type canceler struct {
	once     sync.Once
	emitter  *emission.Emitter
	event    any
	listener any
}

func (c *canceler) Close() error {
	c.once.Do(func() { c.emitter.Off(c.event, c.listener) })
	return nil
}
