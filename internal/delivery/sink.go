package delivery

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/espegro/fact-agent/internal/config"
	"github.com/espegro/fact-agent/internal/logger"
	"github.com/espegro/fact-agent/internal/metrics"
	"github.com/espegro/fact-agent/internal/ratelimit"
	"github.com/espegro/fact-agent/internal/types"
)

// reportMethod is the full method name of the client-streaming RPC
// declared in proto/fact.proto.
const reportMethod = "/fact.v1.FileActivityService/Report"

var reportStreamDesc = grpc.StreamDesc{
	StreamName:    "Report",
	ClientStreams: true,
}

// Sink buffers decoded events in a bounded queue and ships them to the
// consumer over a single client-streaming gRPC session. On transport
// failure the session is re-established with capped exponential
// backoff; events arriving meanwhile stay in the queue and are dropped
// per the configured policy once it fills.
type Sink struct {
	url       string
	creds     credentials.TransportCredentials
	queue     chan *FileActivity
	sender    *ratelimit.BufferedSender[*FileActivity]
	limiter   *ratelimit.EventLimiter
	backoff   backoff
	userAgent string
}

// NewSink builds a sink from the delivery configuration. perf controls
// the queue drop policy and the optional event rate limit.
func NewSink(cfg config.DeliveryConfig, perf config.PerformanceConfig) (*Sink, error) {
	creds, err := transportCredentials(cfg.CertsDir)
	if err != nil {
		return nil, err
	}

	size := cfg.QueueSize
	if size <= 0 {
		size = 4096
	}
	queue := make(chan *FileActivity, size)

	policy := perf.DropPolicy
	if policy == "" {
		policy = "newest"
	}

	var limiter *ratelimit.EventLimiter
	if perf.MaxEventsPerSec > 0 {
		limiter = ratelimit.NewEventLimiter(perf.MaxEventsPerSec, perf.LogDroppedEvents, perf.DropStatsIntervalSec)
	}

	return &Sink{
		url:       cfg.URL,
		creds:     creds,
		queue:     queue,
		sender:    ratelimit.NewBufferedSender(queue, policy, perf.LogDroppedEvents),
		limiter:   limiter,
		backoff:   newBackoff(cfg.BackoffInitialMS, cfg.BackoffMaxMS),
		userAgent: "fact-agent",
	}, nil
}

// transportCredentials loads ca.pem/cert.pem/key.pem from certsDir, or
// returns insecure credentials when no directory is configured.
func transportCredentials(certsDir string) (credentials.TransportCredentials, error) {
	if certsDir == "" {
		return insecure.NewCredentials(), nil
	}

	ca, err := os.ReadFile(filepath.Join(certsDir, "ca.pem"))
	if err != nil {
		return nil, fmt.Errorf("reading CA certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(ca) {
		return nil, fmt.Errorf("no usable certificates in %s", filepath.Join(certsDir, "ca.pem"))
	}

	cert, err := tls.LoadX509KeyPair(
		filepath.Join(certsDir, "cert.pem"),
		filepath.Join(certsDir, "key.pem"),
	)
	if err != nil {
		return nil, fmt.Errorf("loading client certificate: %w", err)
	}

	return credentials.NewTLS(&tls.Config{
		RootCAs:      pool,
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}), nil
}

// Enqueue converts and queues one event for delivery. Returns false if
// the event was dropped (rate limit or full queue).
func (s *Sink) Enqueue(e *types.Event) bool {
	if s.limiter != nil && !s.limiter.AllowEvent() {
		metrics.EventsDropped.Inc()
		return false
	}
	dropsBefore := s.sender.GetDroppedCount()
	if !s.sender.Send(FromEvent(e)) {
		metrics.EventsDropped.Inc()
		return false
	}
	if s.sender.GetDroppedCount() > dropsBefore {
		// "oldest" policy: the queue head was evicted to make room
		metrics.EventsDropped.Inc()
	}
	return true
}

// Run drives the delivery loop until the context is cancelled: dial,
// open the Report stream, send an INIT record, then drain the queue
// into the stream. Any transport error tears the session down and
// re-enters the dial loop after the current backoff delay.
func (s *Sink) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		metrics.Reconnects.Inc()
		logger.Info("Connecting to consumer at %s", s.url)
		conn, stream, err := s.connect(ctx)
		if err != nil {
			delay := s.backoff.next()
			logger.Debug("Connect failed (retrying in %v): %v", delay, err)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			continue
		}

		logger.Info("Connected to consumer")
		s.backoff.reset()
		metrics.ConnectedToConsumer.Set(1)

		err = s.drain(ctx, stream)
		metrics.ConnectedToConsumer.Set(0)
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		delay := s.backoff.next()
		logger.Warn("Consumer session ended (reconnecting in %v): %v", delay, err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sink) connect(ctx context.Context) (*grpc.ClientConn, grpc.ClientStream, error) {
	conn, err := grpc.NewClient(s.url,
		grpc.WithTransportCredentials(s.creds),
		grpc.WithUserAgent(s.userAgent),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("creating client: %w", err)
	}

	stream, err := conn.NewStream(ctx, &reportStreamDesc, reportMethod)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("opening report stream: %w", err)
	}

	if err := stream.SendMsg(initActivity(bootNow())); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("sending init record: %w", err)
	}

	return conn, stream, nil
}

// drain ships queued events until a send fails or the context ends.
// On shutdown the stream is half-closed so the consumer sees a clean
// end-of-stream.
func (s *Sink) drain(ctx context.Context, stream grpc.ClientStream) error {
	for {
		select {
		case activity := <-s.queue:
			if err := stream.SendMsg(activity); err != nil {
				metrics.EventsDropped.Inc()
				return fmt.Errorf("sending event: %w", err)
			}
			metrics.EventsDelivered.Inc()
		case <-ctx.Done():
			return stream.CloseSend()
		}
	}
}

// QueueDepth reports the number of events waiting for delivery
func (s *Sink) QueueDepth() int {
	return len(s.queue)
}

// bootNow returns the current boot-time clock reading, matching the
// timestamp domain of kernel-produced events.
func bootNow() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_BOOTTIME, &ts); err != nil {
		return 0
	}
	return uint64(ts.Sec)*uint64(time.Second) + uint64(ts.Nsec)
}

// backoff implements capped exponential delay between dial attempts
type backoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
}

func newBackoff(initialMS, maxMS int) backoff {
	if initialMS <= 0 {
		initialMS = 1000
	}
	if maxMS <= 0 {
		maxMS = 30000
	}
	b := backoff{
		initial: time.Duration(initialMS) * time.Millisecond,
		max:     time.Duration(maxMS) * time.Millisecond,
	}
	b.reset()
	return b
}

// next returns the current delay and doubles it for the next attempt
func (b *backoff) next() time.Duration {
	d := b.current
	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}
	return d
}

func (b *backoff) reset() {
	b.current = b.initial
}
