package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SessionRecorder runs repeated dictation takes on a capture device: each
// Start allocates a fresh device and take, each Stop finishes the take and
// yields the recorded MP3 path.
type SessionRecorder struct {
	conf *DeviceConfig
	dir  string

	mu    sync.Mutex
	dev   Device
	take  *Take
	dataC chan DataPacket
}

// NewSessionRecorder creates a recorder writing take files into dir.
func NewSessionRecorder(conf *DeviceConfig, dir string) *SessionRecorder {
	return &SessionRecorder{conf: conf, dir: dir}
}

// Start opens the capture device and begins buffering a new take.
func (r *SessionRecorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dev != nil {
		return errors.New("take already in progress")
	}

	path := filepath.Join(r.dir, fmt.Sprintf("take-%s.mp3", time.Now().Format("20060102-150405")))
	dataC := make(chan DataPacket, 64)

	dev := NewDevice(r.conf)
	if err := dev.CaptureInto(ctx, dataC); err != nil {
		return fmt.Errorf("failed to allocate capture device: %w", err)
	}

	take, err := NewTake(TakeConfig{
		SampleRate: r.conf.SampleRate,
		Channels:   r.conf.CaptureChannels,
		MP3Path:    path,
	}, dataC)
	if err != nil {
		dev.Dealloc(ctx)
		return fmt.Errorf("failed to create take: %w", err)
	}

	if err := take.Start(ctx); err != nil {
		dev.Dealloc(ctx)
		return fmt.Errorf("failed to start take: %w", err)
	}

	if err := dev.Start(ctx); err != nil {
		dev.Dealloc(ctx)
		return fmt.Errorf("failed to start capture device: %w", err)
	}

	r.dev, r.take, r.dataC = dev, take, dataC

	return nil
}

// Stop finishes the current take and returns the recorded MP3 path.
func (r *SessionRecorder) Stop(ctx context.Context) (string, error) {
	return r.finish(ctx, false)
}

// Discard finishes and deletes the current take.
func (r *SessionRecorder) Discard(ctx context.Context) error {
	_, err := r.finish(ctx, true)
	return err
}

func (r *SessionRecorder) finish(ctx context.Context, discard bool) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dev == nil {
		return "", errors.New("no take in progress")
	}

	stopErr := r.dev.Stop(ctx)
	close(r.dataC)
	takeErr := r.take.Wait()
	r.dev.Dealloc(ctx)

	path := r.take.Path()
	r.dev, r.take, r.dataC = nil, nil, nil

	if stopErr != nil {
		return "", fmt.Errorf("failed to stop capture device: %w", stopErr)
	}

	if takeErr != nil {
		return "", fmt.Errorf("take failed: %w", takeErr)
	}

	if discard {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to remove discarded take: %w", err)
		}
		return "", nil
	}

	return path, nil
}
