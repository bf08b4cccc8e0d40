// Package portstats maintains per-port packet counters in a shared memory region.
//
// The region is a file under a tmpfs directory, mapped into every process that opens it.
// Its layout is a fixed-size array of physical port records followed by a fixed-size array
// of client port records, with no header.
package portstats

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"unsafe"

	"github.com/usnistgov/patchpanel/core/logging"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

var logger = logging.New("portstats")

// Defaults.
const (
	DefaultDir       = "/dev/shm"
	DefaultName      = "patchpanel_stats"
	DefaultMaxPhy    = 64
	DefaultMaxClient = 1024
)

// ErrIndex indicates a record index is out of range.
var ErrIndex = errors.New("stats record index out of range")

// Counter selects a counter within Record.
type Counter int

// Counter values, in the order they are stored.
const (
	Rx Counter = iota
	Tx
	RxDrop
	TxDrop
	nCounters
)

// Record holds counters of one port.
// Each counter is written by the owning worker and read by monitors without locking.
type Record [nCounters]uint64

// RecordSize is the size of Record in bytes.
const RecordSize = int(unsafe.Sizeof(Record{}))

// Add increments a counter.
func (r *Record) Add(c Counter, n uint64) {
	if r == nil || n == 0 {
		return
	}
	atomic.AddUint64(&r[c], n)
}

// Load reads a counter.
func (r *Record) Load(c Counter) uint64 {
	if r == nil {
		return 0
	}
	return atomic.LoadUint64(&r[c])
}

// Read returns a snapshot of all counters.
func (r *Record) Read() (cnt Counters) {
	return Counters{
		Rx:     r.Load(Rx),
		Tx:     r.Load(Tx),
		RxDrop: r.Load(RxDrop),
		TxDrop: r.Load(TxDrop),
	}
}

// Reset zeros all counters.
func (r *Record) Reset() {
	if r == nil {
		return
	}
	for c := range nCounters {
		atomic.StoreUint64(&r[c], 0)
	}
}

// Counters is a snapshot of Record.
type Counters struct {
	Rx     uint64 `json:"rx"`
	Tx     uint64 `json:"tx"`
	RxDrop uint64 `json:"rx_drop"`
	TxDrop uint64 `json:"tx_drop"`
}

func (cnt Counters) String() string {
	return fmt.Sprintf("%drx %dtx %drx-drop %dtx-drop", cnt.Rx, cnt.Tx, cnt.RxDrop, cnt.TxDrop)
}

// Config contains Region settings.
type Config struct {
	// Dir is the tmpfs directory containing the region file.
	Dir string `json:"dir,omitempty"`

	// Name is the region file name.
	Name string `json:"name,omitempty"`

	MaxPhy    int `json:"maxPhy,omitempty"`
	MaxClient int `json:"maxClient,omitempty"`

	// Reset zeros the region after mapping it.
	// The owner of the region should set this on a clean start.
	Reset bool `json:"reset,omitempty"`
}

func (cfg *Config) applyDefaults() {
	if cfg.Dir == "" {
		cfg.Dir = DefaultDir
	}
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.MaxPhy <= 0 {
		cfg.MaxPhy = DefaultMaxPhy
	}
	if cfg.MaxClient <= 0 {
		cfg.MaxClient = DefaultMaxClient
	}
}

// Path returns the region file path.
func (cfg Config) Path() string {
	cfg.applyDefaults()
	return filepath.Join(cfg.Dir, cfg.Name)
}

// Region is a mapped statistics region.
type Region struct {
	path   string
	mem    []byte
	phy    []Record
	client []Record
}

// Open maps a statistics region, creating it if necessary.
func Open(cfg Config) (rg *Region, e error) {
	cfg.applyDefaults()
	rg = &Region{path: cfg.Path()}
	size := (cfg.MaxPhy + cfg.MaxClient) * RecordSize

	fd, e := unix.Open(rg.path, unix.O_RDWR|unix.O_CREAT|unix.O_CLOEXEC, 0o600)
	if e != nil {
		return nil, fmt.Errorf("open %s: %w", rg.path, e)
	}
	defer unix.Close(fd)

	var st unix.Stat_t
	if e = unix.Fstat(fd, &st); e != nil {
		return nil, fmt.Errorf("fstat %s: %w", rg.path, e)
	}
	if st.Size < int64(size) {
		if e = unix.Ftruncate(fd, int64(size)); e != nil {
			return nil, fmt.Errorf("ftruncate %s: %w", rg.path, e)
		}
	}

	if rg.mem, e = unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED); e != nil {
		return nil, fmt.Errorf("mmap %s: %w", rg.path, e)
	}

	records := unsafe.Slice((*Record)(unsafe.Pointer(unsafe.SliceData(rg.mem))), cfg.MaxPhy+cfg.MaxClient)
	rg.phy, rg.client = records[:cfg.MaxPhy:cfg.MaxPhy], records[cfg.MaxPhy:]
	if cfg.Reset {
		clear(rg.mem)
	}

	logger.Info("stats region mapped",
		zap.String("path", rg.path),
		zap.Int("max-phy", cfg.MaxPhy),
		zap.Int("max-client", cfg.MaxClient),
		zap.Bool("reset", cfg.Reset),
	)
	return rg, nil
}

// Path returns the region file path.
func (rg *Region) Path() string {
	return rg.path
}

// MaxPhy returns the capacity of the physical port array.
func (rg *Region) MaxPhy() int {
	return len(rg.phy)
}

// MaxClient returns the capacity of the client port array.
func (rg *Region) MaxClient() int {
	return len(rg.client)
}

// Phy returns the record of a physical port.
func (rg *Region) Phy(i int) (*Record, error) {
	if i < 0 || i >= len(rg.phy) {
		return nil, ErrIndex
	}
	return &rg.phy[i], nil
}

// Client returns the record of a client port.
func (rg *Region) Client(i int) (*Record, error) {
	if i < 0 || i >= len(rg.client) {
		return nil, ErrIndex
	}
	return &rg.client[i], nil
}

// Close unmaps the region.
// Records obtained from this region must not be used afterwards.
func (rg *Region) Close() error {
	if rg.mem == nil {
		return nil
	}
	e := unix.Munmap(rg.mem)
	rg.mem, rg.phy, rg.client = nil, nil, nil
	return e
}

// Remove unmaps the region and deletes its file.
func (rg *Region) Remove() error {
	e := rg.Close()
	if e2 := os.Remove(rg.path); e2 != nil && !errors.Is(e2, os.ErrNotExist) {
		return e2
	}
	return e
}
