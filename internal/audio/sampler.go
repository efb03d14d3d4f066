package audio

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// Recording parameters, chosen for recognition accuracy: CD-rate mono PCM,
// eight seconds per sample.
const (
	SampleRate     = 44100
	SampleDuration = 8 * time.Second

	// LowSignalThreshold is the peak amplitude (out of 32768) below which a
	// sample is probably silence. Low samples are still sent; the remote
	// service is authoritative.
	LowSignalThreshold = 500
)

// CapabilityError means microphone access is not available at all. It is
// fatal to the detection loop, unlike a per-sample failure.
type CapabilityError struct {
	Reason string
}

func (e *CapabilityError) Error() string {
	return "microphone capability unavailable: " + e.Reason
}

// SamplingError is a recoverable capture failure; the cycle is skipped and
// the loop continues.
type SamplingError struct {
	Err error
}

func (e *SamplingError) Error() string {
	return "audio sampling failed: " + e.Err.Error()
}

func (e *SamplingError) Unwrap() error { return e.Err }

// Sampler acquires fixed-duration ambient audio samples. Available is
// re-checked every cycle because capture access can be revoked at runtime.
type Sampler interface {
	Available() error
	Sample(ctx context.Context) ([]byte, error)
}

// CommandSampler shells out to an ALSA capture tool for raw PCM. Capture
// blocks for the full sample duration once started; cancellation between
// cycles is the scheduler's job.
type CommandSampler struct {
	binary   string
	device   string
	duration time.Duration
}

// NewCommandSampler builds a sampler around arecord. An empty device uses
// the ALSA default.
func NewCommandSampler(device string) *CommandSampler {
	return &CommandSampler{
		binary:   "arecord",
		device:   device,
		duration: SampleDuration,
	}
}

// Available reports whether the capture tool can be found.
func (s *CommandSampler) Available() error {
	if _, err := exec.LookPath(s.binary); err != nil {
		return &CapabilityError{Reason: fmt.Sprintf("%s not found in PATH", s.binary)}
	}
	return nil
}

// Sample records one fixed-duration chunk of little-endian 16-bit mono PCM.
func (s *CommandSampler) Sample(ctx context.Context) ([]byte, error) {
	args := []string{
		"-q",
		"-t", "raw",
		"-f", "S16_LE",
		"-r", strconv.Itoa(SampleRate),
		"-c", "1",
		"-d", strconv.Itoa(int(s.duration / time.Second)),
	}
	if s.device != "" {
		args = append(args, "-D", s.device)
	}

	out, err := exec.CommandContext(ctx, s.binary, args...).Output()
	if err != nil {
		return nil, &SamplingError{Err: err}
	}
	if len(out) == 0 {
		return nil, &SamplingError{Err: fmt.Errorf("capture produced no data")}
	}
	return out, nil
}

// PeakAmplitude scans 16-bit little-endian PCM and returns the largest
// absolute sample value. Used as a signal-quality observation only.
func PeakAmplitude(pcm []byte) int {
	peak := 0
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int(int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8))
		if sample < 0 {
			sample = -sample
		}
		if sample > peak {
			peak = sample
		}
	}
	return peak
}
