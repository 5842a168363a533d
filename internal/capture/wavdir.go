package capture

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/go-audio/wav"
)

// WAVDirSource feeds the engine from a directory of WAV files, round-robin.
// It backs line-feed setups where a separate process drops fixed-length
// recordings on disk, and doubles as a replayable input for local runs.
type WAVDirSource struct {
	mu    sync.Mutex
	files []string
	next  int
}

func NewWAVDirSource(dir string) (*WAVDirSource, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.wav"))
	if err != nil {
		return nil, fmt.Errorf("scanning capture directory: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no wav files in %s", dir)
	}
	sort.Strings(files)

	return &WAVDirSource{files: files}, nil
}

func (s *WAVDirSource) Capture(ctx context.Context, d time.Duration) (*Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	path := s.files[s.next]
	s.next = (s.next + 1) % len(s.files)
	s.mu.Unlock()

	return readWAVSegment(path, d)
}

func readWAVSegment(path string, d time.Duration) (*Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%s is not a valid wav file", path)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	if dec.BitDepth != 16 {
		return nil, errors.New("only 16-bit PCM captures are supported")
	}

	sampleRate := buf.Format.SampleRate
	channels := buf.Format.NumChannels

	// Truncate to the requested segment length.
	maxSamples := int(float64(sampleRate)*d.Seconds()) * channels
	samples := buf.Data
	if len(samples) > maxSamples {
		samples = samples[:maxSamples]
	}

	pcm := make([]byte, 0, len(samples)*2)
	for _, s := range samples {
		pcm = binary.LittleEndian.AppendUint16(pcm, uint16(int16(s)))
	}

	return &Segment{
		Payload:    base64.StdEncoding.EncodeToString(pcm),
		SampleRate: sampleRate,
		Channels:   channels,
		Duration:   d,
	}, nil
}
