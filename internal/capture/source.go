// Package capture produces the short audio segments the engine submits for
// recognition. The engine does not care where audio comes from; sources only
// have to deliver a bounded segment of PCM with its format.
package capture

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"math"
	"time"
)

// Segment is one captured slice of audio, already encoded for submission.
type Segment struct {
	Payload    string // base64 16-bit LE PCM
	SampleRate int
	Channels   int
	Duration   time.Duration
}

type Source interface {
	Capture(ctx context.Context, d time.Duration) (*Segment, error)
}

// ToneSource synthesizes a sine tone. It stands in for a live input when the
// engine runs without one, and keeps tests free of audio fixtures.
type ToneSource struct {
	SampleRate int
	Channels   int
	Frequency  float64
}

func NewToneSource() *ToneSource {
	return &ToneSource{SampleRate: 48000, Channels: 2, Frequency: 440}
}

func (s *ToneSource) Capture(ctx context.Context, d time.Duration) (*Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	frames := int(float64(s.SampleRate) * d.Seconds())
	pcm := make([]byte, 0, frames*s.Channels*2)
	for i := 0; i < frames; i++ {
		sample := int16(10000 * math.Sin(2*math.Pi*s.Frequency*float64(i)/float64(s.SampleRate)))
		for ch := 0; ch < s.Channels; ch++ {
			pcm = binary.LittleEndian.AppendUint16(pcm, uint16(sample))
		}
	}

	return &Segment{
		Payload:    base64.StdEncoding.EncodeToString(pcm),
		SampleRate: s.SampleRate,
		Channels:   s.Channels,
		Duration:   d,
	}, nil
}
