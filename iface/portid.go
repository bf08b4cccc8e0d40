package iface

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// ErrPortID indicates a malformed port descriptor.
var ErrPortID = errors.New("invalid port descriptor")

// PortID identifies a logical port, written as "type:id".
type PortID struct {
	Type Type
	ID   int
}

// ParsePortID parses "type:id".
func ParsePortID(s string) (p PortID, e error) {
	typ, idStr, ok := strings.Cut(s, ":")
	if !ok {
		return p, fmt.Errorf("%w %q", ErrPortID, s)
	}
	if p.Type, e = ParseType(typ); e != nil {
		return p, fmt.Errorf("%w %q", e, typ)
	}
	if p.ID, e = strconv.Atoi(idStr); e != nil || p.ID < 0 {
		return p, fmt.Errorf("%w %q", ErrPortID, s)
	}
	return p, nil
}

// MustParsePortID parses "type:id", panics on error.
func MustParsePortID(s string) PortID {
	p, e := ParsePortID(s)
	if e != nil {
		panic(e)
	}
	return p
}

func (p PortID) String() string {
	return p.Type.String() + ":" + strconv.Itoa(p.ID)
}

// MarshalText implements encoding.TextMarshaler.
func (p PortID) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *PortID) UnmarshalText(text []byte) (e error) {
	*p, e = ParsePortID(string(text))
	return e
}

// ZapField returns a zap.Field for logging.
func (p PortID) ZapField(key string) zap.Field {
	return zap.Stringer(key, p)
}

// PortQueue identifies a queue of a logical port.
// It is written as "type:id" for queue 0 of a single-queue port, or "type:id nq Q" otherwise.
type PortQueue struct {
	PortID
	Queue int
}

// ParsePortQueue parses "type:id", "type:id nq Q", or "type:idnqQ".
func ParsePortQueue(s string) (pq PortQueue, e error) {
	portStr, queueStr, hasQueue := strings.Cut(s, "nq")
	if pq.PortID, e = ParsePortID(strings.TrimSpace(portStr)); e != nil {
		return pq, e
	}
	if hasQueue {
		if pq.Queue, e = strconv.Atoi(strings.TrimSpace(queueStr)); e != nil || pq.Queue < 0 {
			return pq, fmt.Errorf("%w %q", ErrPortID, s)
		}
	}
	return pq, nil
}

// Format prints the port queue.
// The queue suffix is omitted when the port has a single queue.
func (pq PortQueue) Format(nQueues int) string {
	if nQueues > 1 {
		return fmt.Sprintf("%s nq %d", pq.PortID, pq.Queue)
	}
	return pq.PortID.String()
}

func (pq PortQueue) String() string {
	if pq.Queue == 0 {
		return pq.PortID.String()
	}
	return pq.Format(2)
}

// MarshalText implements encoding.TextMarshaler.
func (pq PortQueue) MarshalText() ([]byte, error) {
	return []byte(pq.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (pq *PortQueue) UnmarshalText(text []byte) (e error) {
	*pq, e = ParsePortQueue(string(text))
	return e
}
