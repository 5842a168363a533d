package capture

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func writeTestWAV(t *testing.T, path string, seconds int) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create wav file: %v", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, 8000, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 8000},
		Data:           make([]int, 8000*seconds),
		SourceBitDepth: 16,
	}
	for i := range buf.Data {
		buf.Data[i] = (i % 128) - 64
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("Failed to write wav data: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Failed to close encoder: %v", err)
	}
}

func TestWAVDirSource_Capture(t *testing.T) {
	dir := t.TempDir()
	writeTestWAV(t, filepath.Join(dir, "a.wav"), 2)

	src, err := NewWAVDirSource(dir)
	if err != nil {
		t.Fatalf("Failed to create source: %v", err)
	}

	seg, err := src.Capture(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if seg.SampleRate != 8000 || seg.Channels != 1 {
		t.Errorf("Expected 8000/1, got %d/%d", seg.SampleRate, seg.Channels)
	}

	pcm, err := base64.StdEncoding.DecodeString(seg.Payload)
	if err != nil {
		t.Fatalf("Payload is not valid base64: %v", err)
	}
	// 1s of 16-bit mono at 8kHz.
	if len(pcm) != 8000*2 {
		t.Errorf("Expected %d payload bytes, got %d", 8000*2, len(pcm))
	}
}

func TestWAVDirSource_RoundRobin(t *testing.T) {
	dir := t.TempDir()
	writeTestWAV(t, filepath.Join(dir, "a.wav"), 1)
	writeTestWAV(t, filepath.Join(dir, "b.wav"), 2)

	src, err := NewWAVDirSource(dir)
	if err != nil {
		t.Fatalf("Failed to create source: %v", err)
	}

	first, err := src.Capture(context.Background(), 2*time.Second)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	second, err := src.Capture(context.Background(), 2*time.Second)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	// a.wav only holds 1s, b.wav holds the full 2s requested.
	if len(first.Payload) >= len(second.Payload) {
		t.Error("Expected round-robin to move to the second file")
	}
}

func TestWAVDirSource_EmptyDir(t *testing.T) {
	if _, err := NewWAVDirSource(t.TempDir()); err == nil {
		t.Error("Expected error for directory without wav files")
	}
}

func TestToneSource_Capture(t *testing.T) {
	src := NewToneSource()

	seg, err := src.Capture(context.Background(), 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if seg.SampleRate != 48000 || seg.Channels != 2 {
		t.Errorf("Expected 48000/2, got %d/%d", seg.SampleRate, seg.Channels)
	}

	pcm, err := base64.StdEncoding.DecodeString(seg.Payload)
	if err != nil {
		t.Fatalf("Payload is not valid base64: %v", err)
	}
	if len(pcm) != 4800*2*2 {
		t.Errorf("Expected %d payload bytes, got %d", 4800*2*2, len(pcm))
	}
}

func TestToneSource_CancelledContext(t *testing.T) {
	src := NewToneSource()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := src.Capture(ctx, time.Second); err == nil {
		t.Error("Expected error for cancelled context")
	}
}
