package frame

import (
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/vibstreams/errors"
)

// buildPayload assembles a binary frame payload for tests. Trigger
// pulses are emitted as 65535 at the given indices.
func buildPayload(t *testing.T, frameIndex uint32, mainChannels, sampleRate, samplesPerChannel,
	tachoChannels int, mainValue, freqValue uint16, triggerAt []int) []byte {
	t.Helper()

	words := make([]uint16, 0,
		HeaderWords+samplesPerChannel*(mainChannels+tachoChannels))

	header := make([]uint16, HeaderWords)
	header[0] = uint16(frameIndex & 0xFFFF)
	header[1] = uint16(frameIndex >> 16)
	header[2] = uint16(mainChannels)
	header[3] = uint16(sampleRate)
	header[4] = 16
	header[5] = uint16(samplesPerChannel)
	header[6] = uint16(tachoChannels)
	words = append(words, header...)

	for s := 0; s < samplesPerChannel; s++ {
		for c := 0; c < mainChannels; c++ {
			words = append(words, mainValue)
		}
	}

	if tachoChannels >= 1 {
		for i := 0; i < samplesPerChannel; i++ {
			words = append(words, freqValue)
		}
	}
	if tachoChannels >= 2 {
		trigger := make([]uint16, samplesPerChannel)
		for _, idx := range triggerAt {
			trigger[idx] = 65535
		}
		words = append(words, trigger...)
	}

	out := make([]byte, len(words)*2)
	for i, w := range words {
		binary.LittleEndian.PutUint16(out[i*2:], w)
	}
	return out
}

// Scenario: a 4-channel frame at 4096 Hz with constant main samples,
// constant tacho frequency and ten evenly spaced trigger pulses.
func TestDecodeFullFrame(t *testing.T) {
	triggers := []int{0, 410, 820, 1230, 1640, 2050, 2460, 2870, 3280, 3690}
	payload := buildPayload(t, 0, 4, 4096, 4096, 2, 32768, 10, triggers)
	require.Len(t, payload, 2*(HeaderWords+4096*6))

	f, err := Decode(payload)
	require.NoError(t, err)

	assert.Equal(t, uint32(0), f.FrameIndex)
	assert.Equal(t, 4, f.MainChannels)
	assert.Equal(t, 4096, f.SampleRate)
	assert.Equal(t, 4096, f.SamplesPerChannel)
	assert.Equal(t, 2, f.TachoChannels)
	assert.Equal(t, 16, f.BitDepth)

	require.Len(t, f.Main, 4)
	for c := 0; c < 4; c++ {
		require.Len(t, f.Main[c], 4096)
		assert.Equal(t, uint16(32768), f.Main[c][0])
		assert.Equal(t, uint16(32768), f.Main[c][4095])
	}

	require.Len(t, f.TachoFreq, 4096)
	assert.Equal(t, uint16(10), f.TachoFreq[0])
	assert.InDelta(t, 10.0, f.MeanTachoFreq(), 1e-9)

	assert.Equal(t, triggers, f.Triggers())
}

func TestDecodeDeinterleavesChannels(t *testing.T) {
	// 2 channels, 3 samples each, interleaved as c0,c1 per time step.
	words := make([]uint16, HeaderWords+6)
	words[2] = 2  // main channels
	words[3] = 64 // sample rate
	words[5] = 3  // samples per channel
	copy(words[HeaderWords:], []uint16{10, 20, 11, 21, 12, 22})

	data := make([]byte, len(words)*2)
	for i, w := range words {
		binary.LittleEndian.PutUint16(data[i*2:], w)
	}

	f, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, []uint16{10, 11, 12}, f.Channel(0))
	assert.Equal(t, []uint16{20, 21, 22}, f.Channel(1))
}

func TestDecodeErrorKinds(t *testing.T) {
	valid := buildPayload(t, 1, 1, 64, 4, 0, 0, 0, nil)

	t.Run("too short", func(t *testing.T) {
		_, err := Decode(make([]byte, 10))
		assert.Equal(t, "malformed_payload", errors.DecodeKind(err))
	})

	t.Run("odd length", func(t *testing.T) {
		_, err := Decode(make([]byte, 201))
		assert.Equal(t, "malformed_payload", errors.DecodeKind(err))
	})

	t.Run("shorter than header", func(t *testing.T) {
		_, err := Decode(make([]byte, 100))
		assert.Equal(t, "malformed_payload", errors.DecodeKind(err))
	})

	t.Run("zero main channels", func(t *testing.T) {
		bad := append([]byte(nil), valid...)
		binary.LittleEndian.PutUint16(bad[2*2:], 0)
		_, err := Decode(bad)
		assert.Equal(t, "header_invalid", errors.DecodeKind(err))
	})

	t.Run("zero sample rate", func(t *testing.T) {
		bad := append([]byte(nil), valid...)
		binary.LittleEndian.PutUint16(bad[3*2:], 0)
		_, err := Decode(bad)
		assert.Equal(t, "header_invalid", errors.DecodeKind(err))
	})

	t.Run("unsupported bit depth", func(t *testing.T) {
		bad := append([]byte(nil), valid...)
		binary.LittleEndian.PutUint16(bad[4*2:], 24)
		_, err := Decode(bad)
		assert.Equal(t, "header_invalid", errors.DecodeKind(err))
	})

	t.Run("body length mismatch", func(t *testing.T) {
		bad := append(append([]byte(nil), valid...), 0, 0)
		_, err := Decode(bad)
		assert.Equal(t, "length_mismatch", errors.DecodeKind(err))
	})

	t.Run("header only with no main channels", func(t *testing.T) {
		words := make([]uint16, HeaderWords)
		words[6] = 0
		data := make([]byte, len(words)*2)
		for i, w := range words {
			binary.LittleEndian.PutUint16(data[i*2:], w)
		}
		_, err := Decode(data)
		assert.Equal(t, "header_invalid", errors.DecodeKind(err))
	})
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := buildPayload(t, 70000, 4, 4096, 256, 2, 1234, 25, []int{0, 100, 200})

	// Populate a reserved slot and a gap slot to verify preservation.
	binary.LittleEndian.PutUint16(payload[9*2:], 777)
	binary.LittleEndian.PutUint16(payload[10*2:], 300) // gap channel 0

	f, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, uint32(70000), f.FrameIndex)
	assert.Equal(t, uint16(300), f.Gap(0))

	encoded := f.Encode()
	assert.Equal(t, payload, encoded)

	f2, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, f.Main, f2.Main)
	assert.Equal(t, f.TachoFreq, f2.TachoFreq)
	assert.Equal(t, f.TachoTrigger, f2.TachoTrigger)
}

func TestRoundTripPreservesExtraTachoWords(t *testing.T) {
	// tacho_channels = 3: freq, trigger, and one unrecognized sequence.
	spc := 8
	words := make([]uint16, HeaderWords+spc*4)
	words[2] = 1
	words[3] = 64
	words[5] = uint16(spc)
	words[6] = 3
	for i := HeaderWords; i < len(words); i++ {
		words[i] = uint16(i)
	}
	data := make([]byte, len(words)*2)
	for i, w := range words {
		binary.LittleEndian.PutUint16(data[i*2:], w)
	}

	f, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, data, f.Encode())
}

func TestDecodeJSON(t *testing.T) {
	payload := map[string]any{
		"values": [][]float64{
			{1, 2, 3, 4},
			{5, 6, 7, 8},
			{10, 10, 10, 10},     // tacho freq
			{65535, 0, 0, 65535}, // tacho trigger
		},
		"sample_rate": 4096,
		"frame_index": 9,
	}
	data, err := json.Marshal(payload)
	require.NoError(t, err)

	f, err := DecodeJSON(data, 2)
	require.NoError(t, err)
	assert.Equal(t, uint32(9), f.FrameIndex)
	assert.Equal(t, 2, f.MainChannels)
	assert.Equal(t, 2, f.TachoChannels)
	assert.Equal(t, []uint16{1, 2, 3, 4}, f.Channel(0))
	assert.Equal(t, []uint16{10, 10, 10, 10}, f.TachoFreq)
	assert.Equal(t, []uint16{65535, 0, 0, 65535}, f.TachoTrigger)
}

func TestDecodeJSONAllRowsMain(t *testing.T) {
	data := []byte(`{"values": [[1,2],[3,4],[5,6]], "sample_rate": 64}`)
	f, err := DecodeJSON(data, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, f.MainChannels)
	assert.Equal(t, 0, f.TachoChannels)
}

func TestDecodeJSONErrors(t *testing.T) {
	t.Run("invalid json", func(t *testing.T) {
		_, err := DecodeJSON([]byte("{"), 0)
		assert.True(t, errors.IsInvalid(err))
	})

	t.Run("missing sample rate", func(t *testing.T) {
		_, err := DecodeJSON([]byte(`{"values": [[1,2]]}`), 0)
		assert.True(t, errors.IsInvalid(err))
	})

	t.Run("ragged rows", func(t *testing.T) {
		_, err := DecodeJSON([]byte(`{"values": [[1,2],[3]], "sample_rate": 64}`), 0)
		assert.True(t, errors.IsInvalid(err))
	})

	t.Run("too many tacho rows", func(t *testing.T) {
		_, err := DecodeJSON([]byte(`{"values": [[1],[2],[3],[4]], "sample_rate": 64}`), 1)
		assert.True(t, errors.IsInvalid(err))
	})
}
