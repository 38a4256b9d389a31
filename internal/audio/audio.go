// Package audio converts 16-bit little-endian mono PCM between the sample rates used by the
// telephony leg (8 kHz) and the synthesis provider (22.05 kHz).
package audio

import (
	"encoding/binary"
	"errors"
	"math"
	"time"

	"github.com/faiface/beep"
)

const (
	TelephonyRate = 8000
	SynthesisRate = 22050

	// ASRGain attenuates synthesized-rate audio before it is sent to recognition.
	ASRGain = 0.8

	resampleQuality = 3
)

var ErrOddLength = errors.New("audio: pcm16 buffer has odd length")

// Resample converts pcm16 mono audio from one rate to another and scales it by gain,
// clipping to the int16 range.
func Resample(pcm []byte, from, to int, gain float64) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, ErrOddLength
	}
	if from <= 0 || to <= 0 {
		return nil, errors.New("audio: sample rates must be positive")
	}
	if len(pcm) == 0 {
		return []byte{}, nil
	}

	src := &pcmStreamer{pcm: pcm}
	var s beep.Streamer = src
	if from != to {
		s = beep.Resample(resampleQuality, beep.SampleRate(from), beep.SampleRate(to), src)
	}

	out := make([]byte, 0, len(pcm)*to/from+4)
	buf := make([][2]float64, 512)
	for {
		n, ok := s.Stream(buf)
		for i := 0; i < n; i++ {
			out = binary.LittleEndian.AppendUint16(out, uint16(toInt16(buf[i][0]*gain)))
		}
		if !ok {
			break
		}
	}
	return out, nil
}

// ForRecognition converts audio at rate from to the telephony rate at ASRGain.
// Audio already at the telephony rate, or a conversion failure, returns the input unchanged.
func ForRecognition(pcm []byte, from int) []byte {
	if from <= 0 || from == TelephonyRate {
		return pcm
	}
	out, err := Resample(pcm, from, TelephonyRate, ASRGain)
	if err != nil {
		return pcm
	}
	return out
}

// ForTelephony converts synthesized audio to the 8 kHz stream the PBX plays.
func ForTelephony(pcm []byte) ([]byte, error) {
	return Resample(pcm, SynthesisRate, TelephonyRate, 1)
}

// Duration is the playback time of a pcm16 mono buffer at the given rate.
func Duration(n int, rate int) time.Duration {
	if rate <= 0 || n <= 0 {
		return 0
	}
	samples := n / 2
	return time.Duration(samples) * time.Second / time.Duration(rate)
}

func toInt16(v float64) int16 {
	v = math.Round(v * 32768)
	if v > 32767 {
		return 32767
	}
	if v < -32767 {
		return -32767
	}
	return int16(v)
}

type pcmStreamer struct {
	pcm []byte
	pos int
}

func (p *pcmStreamer) Stream(samples [][2]float64) (int, bool) {
	if p.pos >= len(p.pcm) {
		return 0, false
	}
	n := 0
	for n < len(samples) && p.pos+1 < len(p.pcm) {
		v := float64(int16(binary.LittleEndian.Uint16(p.pcm[p.pos:]))) / 32768
		samples[n][0], samples[n][1] = v, v
		n++
		p.pos += 2
	}
	return n, true
}

func (p *pcmStreamer) Err() error { return nil }
