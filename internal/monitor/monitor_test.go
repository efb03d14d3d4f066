package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wayve-go-srv/internal/audio"
	"wayve-go-srv/internal/dedup"
	"wayve-go-srv/internal/models"
)

/* =========================
   Fakes
   ========================= */

type fakeSampler struct {
	mu        sync.Mutex
	available error
	sample    []byte
	sampleErr error
}

func (f *fakeSampler) Available() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available
}

func (f *fakeSampler) setAvailable(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.available = err
}

func (f *fakeSampler) Sample(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sample, f.sampleErr
}

type fakeRecognizer struct {
	mu     sync.Mutex
	track  *models.Track
	err    error
	calls  int
	panics bool
}

func (f *fakeRecognizer) Recognize(ctx context.Context, sample []byte) (*models.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.panics {
		panic("recognizer exploded")
	}
	return f.track, f.err
}

func (f *fakeRecognizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type submission struct {
	track  models.Track
	source string
}

type fakeSink struct {
	mu   sync.Mutex
	subs []submission
}

func (f *fakeSink) Submit(t models.Track, source string, now time.Time) (dedup.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, submission{track: t, source: source})
	return dedup.Accepted, nil
}

func (f *fakeSink) submissions() []submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]submission(nil), f.subs...)
}

type fakeLease struct {
	acquired atomic.Int32
	released atomic.Int32
}

func (f *fakeLease) Acquire() error { f.acquired.Add(1); return nil }
func (f *fakeLease) Release()       { f.released.Add(1) }

func newTestMonitor(sampler audio.Sampler, rec Recognizer, sink Sink, lease Lease) *Monitor {
	m := New(sampler, rec, sink, lease)
	m.interval = 5 * time.Millisecond
	return m
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal(msg)
}

/* =========================
   Tests
   ========================= */

// TestStartStopLifecycle: a detected track flows to the sink tagged with the
// monitor's source name, and the wake lease is released exactly once on stop.
func TestStartStopLifecycle(t *testing.T) {
	track := models.Track{Title: "Song", Artist: "Artist"}
	sampler := &fakeSampler{sample: []byte("pcm")}
	rec := &fakeRecognizer{track: &track}
	sink := &fakeSink{}
	lease := &fakeLease{}

	m := newTestMonitor(sampler, rec, sink, lease)
	require.NoError(t, m.Start())
	assert.Equal(t, StateRunning, m.State())

	eventually(t, func() bool { return len(sink.submissions()) > 0 }, "no track reached the sink")

	m.Stop()
	assert.Equal(t, StateIdle, m.State())
	assert.Equal(t, int32(1), lease.acquired.Load())
	assert.Equal(t, int32(1), lease.released.Load())

	subs := sink.submissions()
	assert.Equal(t, "Song", subs[0].track.Title)
	assert.Equal(t, SourceName, subs[0].source)
}

// TestStartIdempotent: starting twice runs one loop, stopping twice is safe.
func TestStartIdempotent(t *testing.T) {
	sampler := &fakeSampler{sample: []byte("pcm")}
	lease := &fakeLease{}
	m := newTestMonitor(sampler, &fakeRecognizer{}, &fakeSink{}, lease)

	require.NoError(t, m.Start())
	require.NoError(t, m.Start())
	assert.Equal(t, int32(1), lease.acquired.Load())

	m.Stop()
	m.Stop()
	assert.Equal(t, int32(1), lease.released.Load())
	assert.Equal(t, StateIdle, m.State())
}

// TestStartWithoutCapability: no microphone means Start fails and nothing
// runs, lease included.
func TestStartWithoutCapability(t *testing.T) {
	capErr := &audio.CapabilityError{Reason: "no device"}
	sampler := &fakeSampler{available: capErr}
	lease := &fakeLease{}
	m := newTestMonitor(sampler, &fakeRecognizer{}, &fakeSink{}, lease)

	err := m.Start()
	assert.ErrorContains(t, err, "microphone capability unavailable")
	assert.Equal(t, StateIdle, m.State())
	assert.Equal(t, int32(0), lease.acquired.Load())
}

// TestCapabilityLossStopsLoop: revoking capture access mid-run winds the loop
// down on its own and still releases the lease.
func TestCapabilityLossStopsLoop(t *testing.T) {
	sampler := &fakeSampler{sample: []byte("pcm")}
	lease := &fakeLease{}
	m := newTestMonitor(sampler, &fakeRecognizer{}, &fakeSink{}, lease)

	require.NoError(t, m.Start())
	sampler.setAvailable(&audio.CapabilityError{Reason: "revoked"})

	eventually(t, func() bool { return m.State() == StateIdle }, "loop did not stop on capability loss")
	assert.Equal(t, int32(1), lease.released.Load())
}

// TestRecognizerErrorSkipsCycle: a failed recognition is not fatal; the loop
// keeps cycling.
func TestRecognizerErrorSkipsCycle(t *testing.T) {
	sampler := &fakeSampler{sample: []byte("pcm")}
	rec := &fakeRecognizer{err: assert.AnError}
	sink := &fakeSink{}
	m := newTestMonitor(sampler, rec, sink, &fakeLease{})

	require.NoError(t, m.Start())
	eventually(t, func() bool { return rec.callCount() >= 3 }, "loop stalled after recognizer error")
	m.Stop()

	assert.Empty(t, sink.submissions())
}

// TestCyclePanicContained: a panic inside one cycle never kills the
// scheduler.
func TestCyclePanicContained(t *testing.T) {
	sampler := &fakeSampler{sample: []byte("pcm")}
	rec := &fakeRecognizer{panics: true}
	m := newTestMonitor(sampler, rec, &fakeSink{}, &fakeLease{})

	require.NoError(t, m.Start())
	eventually(t, func() bool { return rec.callCount() >= 2 }, "loop died after panic")

	assert.Equal(t, StateRunning, m.State())
	m.Stop()
}

// TestNoMatchSubmitsNothing: a nil track from the recognizer is a quiet
// cycle.
func TestNoMatchSubmitsNothing(t *testing.T) {
	sampler := &fakeSampler{sample: []byte("pcm")}
	rec := &fakeRecognizer{}
	sink := &fakeSink{}
	m := newTestMonitor(sampler, rec, sink, &fakeLease{})

	require.NoError(t, m.Start())
	eventually(t, func() bool { return rec.callCount() >= 2 }, "no cycles ran")
	m.Stop()

	assert.Empty(t, sink.submissions())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopping", StateStopping.String())
}
