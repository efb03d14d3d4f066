package monitor

import (
	"context"
	"log"
	"sync"
	"time"

	"wayve-go-srv/internal/audio"
	"wayve-go-srv/internal/dedup"
	"wayve-go-srv/internal/models"
)

// Interval is the wait between completed detection cycles.
const Interval = 30 * time.Second

// SourceName identifies the audio monitor as a detection producer.
const SourceName = "audio_monitor"

// State of the detection scheduler.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Recognizer is the remote fingerprinting call the loop depends on.
type Recognizer interface {
	Recognize(ctx context.Context, sample []byte) (*models.Track, error)
}

// Sink routes an identified track through the shared dedup gate and into the
// history. All producers submit through the same sink.
type Sink interface {
	Submit(track models.Track, source string, now time.Time) (dedup.Result, error)
}

// Monitor drives periodic ambient sampling: wait, re-check capability,
// record, recognize, submit, repeat. One cycle in flight at a time; the next
// wait starts only after the previous cycle fully completes.
type Monitor struct {
	sampler    audio.Sampler
	recognizer Recognizer
	sink       Sink
	lease      Lease
	interval   time.Duration

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

// New wires a monitor. Nothing runs until Start.
func New(sampler audio.Sampler, recognizer Recognizer, sink Sink, lease Lease) *Monitor {
	return &Monitor{
		sampler:    sampler,
		recognizer: recognizer,
		sink:       sink,
		lease:      lease,
		interval:   Interval,
	}
}

// State reports the current scheduler state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start launches the detection loop. Idempotent: starting a running monitor
// is a no-op. Fails without starting when microphone capability is absent.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateIdle {
		return nil
	}
	m.state = StateStarting

	if err := m.sampler.Available(); err != nil {
		m.state = StateIdle
		return err
	}

	if err := m.lease.Acquire(); err != nil {
		// A missing inhibitor degrades battery behavior, not correctness.
		log.Printf("monitor: wake lease unavailable: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.state = StateRunning

	go m.run(ctx, m.done)

	log.Printf("monitor: continuous detection started (every %s)", m.interval)
	return nil
}

// Stop cancels the loop at its next suspension point and waits for it to
// finish. An in-flight recognition is allowed to complete; its write is
// additive and deduplicated, so no rollback is needed.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.state != StateRunning {
		m.mu.Unlock()
		return
	}
	m.state = StateStopping
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	<-done
	log.Printf("monitor: continuous detection stopped")
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	// Release order matters: the lease goes exactly once, on every exit
	// path, before the state flips back to idle.
	defer close(done)
	defer func() {
		m.mu.Lock()
		m.state = StateIdle
		m.mu.Unlock()
	}()
	defer m.lease.Release()

	for {
		// Capability can be revoked while running; losing it is the one
		// fatal condition for the loop itself.
		if err := m.sampler.Available(); err != nil {
			log.Printf("monitor: capability lost, stopping: %v", err)
			return
		}

		m.cycle(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(m.interval):
		}
	}
}

// cycle runs one sample-recognize-submit pass. Any failure is logged and
// skipped; a single bad cycle is never fatal to the scheduler.
func (m *Monitor) cycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("monitor: panic in detection cycle: %v", r)
		}
	}()

	sample, err := m.sampler.Sample(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("monitor: %v", err)
		}
		return
	}

	if peak := audio.PeakAmplitude(sample); peak < audio.LowSignalThreshold {
		// Still sent: the remote service is authoritative on silence.
		log.Printf("monitor: low audio level (peak %d/32768), sending anyway", peak)
	}

	track, err := m.recognizer.Recognize(ctx, sample)
	if err != nil {
		log.Printf("monitor: %v", err)
		return
	}
	if track == nil {
		log.Printf("monitor: no match")
		return
	}

	result, err := m.sink.Submit(*track, SourceName, time.Now())
	if err != nil {
		log.Printf("monitor: failed to record %q by %q: %v", track.Title, track.Artist, err)
		return
	}
	log.Printf("monitor: %q by %q -> %s", track.Title, track.Artist, result)
}
