package frame

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/c360/vibstreams/errors"
)

// Decode parses a binary DAQ payload into a Frame.
//
// The payload is little-endian uint16 words: a 100-word header,
// samples_per_channel groups of main_channels interleaved samples, then
// a tacho frequency sequence (tacho_channels >= 1) and a tacho trigger
// sequence (tacho_channels >= 2).
func Decode(data []byte) (*Frame, error) {
	if len(data) < 20 || len(data)%2 != 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %d bytes", errors.ErrMalformedPayload, len(data)),
			"Codec", "Decode", "payload size check")
	}
	if len(data) < HeaderWords*2 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %d bytes, header needs %d", errors.ErrMalformedPayload, len(data), HeaderWords*2),
			"Codec", "Decode", "header size check")
	}

	var header [HeaderWords]uint16
	for i := 0; i < HeaderWords; i++ {
		header[i] = binary.LittleEndian.Uint16(data[i*2:])
	}

	frameIndex := uint32(header[slotFrameIndexLow]) | uint32(header[slotFrameIndexHigh])<<16
	mainChannels := int(header[slotMainChannels])
	sampleRate := int(header[slotSampleRate])
	bitDepth := int(header[slotBitDepth])
	samplesPerChannel := int(header[slotSamplesPerChan])
	tachoChannels := int(header[slotTachoChannels])

	if mainChannels <= 0 || sampleRate <= 0 || samplesPerChannel <= 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: main=%d rate=%d samples=%d",
				errors.ErrHeaderInvalid, mainChannels, sampleRate, samplesPerChannel),
			"Codec", "Decode", "header field check")
	}
	// bit_depth is advisory; every producer emits 16-bit samples. Zero
	// is tolerated for generators that leave the slot unset.
	if bitDepth != 0 && bitDepth != 16 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: bit_depth=%d", errors.ErrHeaderInvalid, bitDepth),
			"Codec", "Decode", "bit depth check")
	}

	bodyWords := (len(data) - HeaderWords*2) / 2
	wantWords := samplesPerChannel * (mainChannels + tachoChannels)
	if bodyWords != wantWords {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: body %d words, want %d", errors.ErrLengthMismatch, bodyWords, wantWords),
			"Codec", "Decode", "body length check")
	}

	body := data[HeaderWords*2:]
	word := func(i int) uint16 { return binary.LittleEndian.Uint16(body[i*2:]) }

	// Deinterleave main samples: channel-minor within each time step.
	main := make([][]uint16, mainChannels)
	for c := range main {
		main[c] = make([]uint16, samplesPerChannel)
	}
	for t := 0; t < samplesPerChannel; t++ {
		base := t * mainChannels
		for c := 0; c < mainChannels; c++ {
			main[c][t] = word(base + c)
		}
	}

	offset := samplesPerChannel * mainChannels
	var tachoFreq, tachoTrigger, extra []uint16

	if tachoChannels >= 1 {
		tachoFreq = make([]uint16, samplesPerChannel)
		for i := range tachoFreq {
			tachoFreq[i] = word(offset + i)
		}
		offset += samplesPerChannel
	}
	if tachoChannels >= 2 {
		tachoTrigger = make([]uint16, samplesPerChannel)
		for i := range tachoTrigger {
			tachoTrigger[i] = word(offset + i)
		}
		offset += samplesPerChannel
	}
	if remaining := bodyWords - offset; remaining > 0 {
		extra = make([]uint16, remaining)
		for i := range extra {
			extra[i] = word(offset + i)
		}
	}

	return &Frame{
		FrameIndex:        frameIndex,
		SampleRate:        sampleRate,
		BitDepth:          bitDepth,
		MainChannels:      mainChannels,
		TachoChannels:     tachoChannels,
		SamplesPerChannel: samplesPerChannel,
		Header:            header,
		Main:              main,
		TachoFreq:         tachoFreq,
		TachoTrigger:      tachoTrigger,
		extra:             extra,
		CreatedAt:         time.Now().UTC(),
	}, nil
}

// Encode serializes a Frame to the binary wire layout. Recognized
// header slots are refreshed from the frame fields; reserved slots are
// written back untouched, so Encode(Decode(p)) == p for valid payloads.
func (f *Frame) Encode() []byte {
	header := f.Header
	header[slotFrameIndexLow] = uint16(f.FrameIndex & 0xFFFF)
	header[slotFrameIndexHigh] = uint16(f.FrameIndex >> 16)
	header[slotMainChannels] = uint16(f.MainChannels)
	header[slotSampleRate] = uint16(f.SampleRate)
	header[slotBitDepth] = uint16(f.BitDepth)
	header[slotSamplesPerChan] = uint16(f.SamplesPerChannel)
	header[slotTachoChannels] = uint16(f.TachoChannels)

	totalWords := HeaderWords + f.SamplesPerChannel*f.MainChannels +
		len(f.TachoFreq) + len(f.TachoTrigger) + len(f.extra)
	out := make([]byte, totalWords*2)

	for i, w := range header {
		binary.LittleEndian.PutUint16(out[i*2:], w)
	}

	pos := HeaderWords
	put := func(w uint16) {
		binary.LittleEndian.PutUint16(out[pos*2:], w)
		pos++
	}

	for t := 0; t < f.SamplesPerChannel; t++ {
		for c := 0; c < f.MainChannels; c++ {
			put(f.Main[c][t])
		}
	}
	for _, w := range f.TachoFreq {
		put(w)
	}
	for _, w := range f.TachoTrigger {
		put(w)
	}
	for _, w := range f.extra {
		put(w)
	}

	return out
}

// jsonPayload is the alternate JSON wire format accepted from software
// generators: a sequence of per-channel sample rows plus metadata.
type jsonPayload struct {
	Values     [][]float64 `json:"values"`
	SampleRate int         `json:"sample_rate"`
	FrameIndex uint32      `json:"frame_index"`
}

// DecodeJSON parses the JSON frame format. When mainChannels > 0, rows
// beyond it are interpreted as the tacho frequency and tacho trigger
// sequences; when 0, every row is a main channel.
func DecodeJSON(data []byte, mainChannels int) (*Frame, error) {
	var p jsonPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrMalformedPayload, err),
			"Codec", "DecodeJSON", "json parsing")
	}

	if len(p.Values) == 0 || p.SampleRate <= 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %d rows, rate %d", errors.ErrHeaderInvalid, len(p.Values), p.SampleRate),
			"Codec", "DecodeJSON", "payload field check")
	}

	if mainChannels <= 0 || mainChannels > len(p.Values) {
		mainChannels = len(p.Values)
	}
	tachoRows := len(p.Values) - mainChannels
	if tachoRows > 2 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %d trailing rows beyond %d main channels",
				errors.ErrLengthMismatch, tachoRows, mainChannels),
			"Codec", "DecodeJSON", "row count check")
	}

	samplesPerChannel := len(p.Values[0])
	if samplesPerChannel == 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: empty channel row", errors.ErrHeaderInvalid),
			"Codec", "DecodeJSON", "row length check")
	}
	for i, row := range p.Values {
		if len(row) != samplesPerChannel {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: row %d has %d samples, want %d",
					errors.ErrLengthMismatch, i, len(row), samplesPerChannel),
				"Codec", "DecodeJSON", "row length check")
		}
	}

	toWords := func(row []float64) []uint16 {
		out := make([]uint16, len(row))
		for i, v := range row {
			out[i] = clampWord(v)
		}
		return out
	}

	main := make([][]uint16, mainChannels)
	for c := 0; c < mainChannels; c++ {
		main[c] = toWords(p.Values[c])
	}

	var tachoFreq, tachoTrigger []uint16
	if tachoRows >= 1 {
		tachoFreq = toWords(p.Values[mainChannels])
	}
	if tachoRows >= 2 {
		tachoTrigger = toWords(p.Values[mainChannels+1])
	}

	f := &Frame{
		FrameIndex:        p.FrameIndex,
		SampleRate:        p.SampleRate,
		BitDepth:          16,
		MainChannels:      mainChannels,
		TachoChannels:     tachoRows,
		SamplesPerChannel: samplesPerChannel,
		Main:              main,
		TachoFreq:         tachoFreq,
		TachoTrigger:      tachoTrigger,
		CreatedAt:         time.Now().UTC(),
	}
	f.Header[slotFrameIndexLow] = uint16(p.FrameIndex & 0xFFFF)
	f.Header[slotFrameIndexHigh] = uint16(p.FrameIndex >> 16)
	f.Header[slotMainChannels] = uint16(mainChannels)
	f.Header[slotSampleRate] = uint16(p.SampleRate)
	f.Header[slotBitDepth] = 16
	f.Header[slotSamplesPerChan] = uint16(samplesPerChannel)
	f.Header[slotTachoChannels] = uint16(tachoRows)
	return f, nil
}

func clampWord(v float64) uint16 {
	r := math.Round(v)
	if r < 0 {
		return 0
	}
	if r > 65535 {
		return 65535
	}
	return uint16(r)
}
