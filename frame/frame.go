// Package frame defines the DAQ frame type and its binary and JSON
// codecs. A frame is one atomic unit of synchronized multi-channel
// samples; the binary wire layout is a 100-word little-endian header
// followed by interleaved main samples and optional tacho sequences.
package frame

import (
	"time"
)

// HeaderWords is the fixed size of the frame header in uint16 words.
const HeaderWords = 100

// Recognized header slots. Slots 10..10+mainChannels carry per-channel
// gap values; all other slots are reserved and preserved on re-encode.
const (
	slotFrameIndexLow  = 0
	slotFrameIndexHigh = 1
	slotMainChannels   = 2
	slotSampleRate     = 3
	slotBitDepth       = 4
	slotSamplesPerChan = 5
	slotTachoChannels  = 6
	slotGapBase        = 10
)

// Frame is a decoded DAQ frame. Main holds one sample slice per channel
// (deinterleaved); TachoFreq and TachoTrigger are present when the
// frame carries one or two tacho channels respectively. Header retains
// the raw 100-word header so Encode round-trips reserved slots
// bit-for-bit.
type Frame struct {
	Topic             string
	FrameIndex        uint32
	SampleRate        int
	BitDepth          int
	MainChannels      int
	TachoChannels     int
	SamplesPerChannel int

	Header       [HeaderWords]uint16
	Main         [][]uint16
	TachoFreq    []uint16
	TachoTrigger []uint16

	// extra holds tacho words beyond the two recognized sequences
	// (tachoChannels > 2), preserved opaquely for round-trip.
	extra []uint16

	CreatedAt time.Time
}

// Channel returns the raw samples for main channel i.
func (f *Frame) Channel(i int) []uint16 {
	if i < 0 || i >= len(f.Main) {
		return nil
	}
	return f.Main[i]
}

// Gap returns the per-channel gap value from the header (used by the
// centerline feature). Channel index is 0-based.
func (f *Frame) Gap(channel int) uint16 {
	slot := slotGapBase + channel
	if channel < 0 || slot >= HeaderWords {
		return 0
	}
	return f.Header[slot]
}

// HasTachoFreq reports whether the frame carries a tacho frequency sequence.
func (f *Frame) HasTachoFreq() bool {
	return len(f.TachoFreq) > 0
}

// HasTachoTrigger reports whether the frame carries a tacho trigger sequence.
func (f *Frame) HasTachoTrigger() bool {
	return len(f.TachoTrigger) > 0
}

// MeanTachoFreq returns the mean of the tacho frequency column, the
// shaft rotation frequency estimate in Hz. Returns 0 when absent.
func (f *Frame) MeanTachoFreq() float64 {
	if len(f.TachoFreq) == 0 {
		return 0
	}
	var sum float64
	for _, v := range f.TachoFreq {
		sum += float64(v)
	}
	return sum / float64(len(f.TachoFreq))
}

// Duration returns the time span covered by the frame's samples.
func (f *Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(f.SamplesPerChannel) / float64(f.SampleRate) * float64(time.Second))
}
