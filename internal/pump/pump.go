package pump

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cilium/ebpf/ringbuf"
	"golang.org/x/sys/unix"

	"github.com/espegro/fact-agent/internal/logger"
	"github.com/espegro/fact-agent/internal/metrics"
	"github.com/espegro/fact-agent/internal/types"
)

// HostPathResolver maps an inode key back to a best-effort host path.
// Implemented by the host scanner's inode table.
type HostPathResolver interface {
	Resolve(key types.InodeKey) (string, bool)
}

// bootClock converts kernel boot-time timestamps to wall-clock time.
// The offset is captured once at pump start; boot-time includes
// suspend, so the drift over an agent's lifetime is clock-adjustment
// only.
type bootClock struct {
	bootEpoch time.Time
}

func newBootClock() (bootClock, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_BOOTTIME, &ts); err != nil {
		return bootClock{}, fmt.Errorf("reading boot clock: %w", err)
	}
	sinceBoot := time.Duration(ts.Sec)*time.Second + time.Duration(ts.Nsec)
	return bootClock{bootEpoch: time.Now().Add(-sinceBoot)}, nil
}

func (c bootClock) toWall(ns uint64) time.Time {
	return c.bootEpoch.Add(time.Duration(ns))
}

// Pump drains the ring buffer on a single goroutine: decode each
// frame, recover a host path for events the kernel could not resolve
// one for, and hand the event downstream.
type Pump struct {
	reader    *ringbuf.Reader
	hostPaths HostPathResolver
	out       chan<- *types.Event
	clock     bootClock

	// sendTimeout bounds how long a full downstream channel stalls the
	// consume loop before the event is dropped. While the pump is
	// stalled the kernel ring buffer fills and drops with a counter;
	// loss is preferred over unbounded buffering.
	sendTimeout time.Duration
}

// New creates a pump reading from rd and writing decoded events to out
func New(rd *ringbuf.Reader, hostPaths HostPathResolver, out chan<- *types.Event) (*Pump, error) {
	clock, err := newBootClock()
	if err != nil {
		return nil, err
	}
	return &Pump{
		reader:      rd,
		hostPaths:   hostPaths,
		out:         out,
		clock:       clock,
		sendTimeout: time.Second,
	}, nil
}

// Run consumes the ring buffer until the reader is closed or the
// context is cancelled. Malformed frames are counted and dropped;
// they never stop the loop.
func (p *Pump) Run(ctx context.Context) error {
	// Unblock the blocking Read when the context ends; Close is also
	// called by Monitor.Close, and ringbuf.Reader tolerates both.
	stop := context.AfterFunc(ctx, func() {
		p.reader.SetDeadline(time.Now())
	})
	defer stop()

	for {
		record, err := p.reader.Read()
		if err != nil {
			if errors.Is(err, ringbuf.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			return fmt.Errorf("reading from ring buffer: %w", err)
		}

		event, err := Decode(record.RawSample)
		if err != nil {
			metrics.DecodeErrors.Inc()
			logger.Debug("Dropping frame: %v", err)
			continue
		}
		metrics.EventsDecoded.Inc()

		event.Timestamp = p.clock.toWall(event.TimestampNS)
		p.fillHostPath(event)

		select {
		case p.out <- event:
		case <-ctx.Done():
			return nil
		case <-time.After(p.sendTimeout):
			metrics.EventsDropped.Inc()
			logger.Debug("Event channel full, dropping event")
		}
	}
}

// fillHostPath recovers a host-side path for events whose kernel-side
// walk did not produce one (task in a non-host mount namespace with
// no reverse mapping). The inode table is best-effort.
func (p *Pump) fillHostPath(event *types.Event) {
	if event.HostFile != "" || p.hostPaths == nil || !event.Inode.Present() {
		return
	}
	if path, ok := p.hostPaths.Resolve(event.Inode); ok {
		event.HostFile = path
	}
}
