package audio

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func pcm(samples ...int16) []byte {
	out := make([]byte, 0, len(samples)*2)
	for _, s := range samples {
		out = binary.LittleEndian.AppendUint16(out, uint16(s))
	}
	return out
}

func TestPeakAmplitude(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want int
	}{
		{"empty", nil, 0},
		{"silence", pcm(0, 0, 0), 0},
		{"positive peak", pcm(10, 1200, 37), 1200},
		{"negative peak dominates", pcm(100, -5000, 200), 5000},
		{"full scale negative", pcm(-32768), 32768},
		{"trailing odd byte ignored", append(pcm(300), 0xFF), 300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PeakAmplitude(tt.data))
		})
	}
}

func TestLowSignalClassification(t *testing.T) {
	assert.Less(t, PeakAmplitude(pcm(80, -120)), LowSignalThreshold)
	assert.GreaterOrEqual(t, PeakAmplitude(pcm(80, -12000)), LowSignalThreshold)
}

func TestCapabilityErrorMessage(t *testing.T) {
	err := &CapabilityError{Reason: "arecord not found in PATH"}
	assert.Contains(t, err.Error(), "microphone capability unavailable")
	assert.Contains(t, err.Error(), "arecord")
}

func TestSamplingErrorUnwrap(t *testing.T) {
	inner := assert.AnError
	err := &SamplingError{Err: inner}
	assert.ErrorIs(t, err, inner)
}
