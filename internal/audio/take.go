package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	mp3encoder "github.com/braheezy/shine-mp3/pkg/mp3"
)

// Take buffers one dictation take: raw PCM from the capture channel is
// written to a temp file, then encoded to MP3 when the channel closes.
type Take struct {
	sampleRate int
	channels   int
	input      <-chan []byte
	pcmPath    string
	mp3Path    string

	pcmFile      *os.File
	bytesWritten int64
	mu           sync.RWMutex
	wg           sync.WaitGroup
	errOnce      sync.Once
	err          error
}

// TakeConfig holds configuration for one recorded take.
type TakeConfig struct {
	SampleRate int    // Sample rate in Hz (e.g., 16000)
	Channels   int    // Number of channels (1 for mono)
	MP3Path    string // Final MP3 output path
}

// NewTake creates a recorder for a single take fed by input (S16LE PCM).
func NewTake(config TakeConfig, input <-chan []byte) (*Take, error) {
	if input == nil {
		return nil, errors.New("input channel cannot be nil")
	}

	if config.SampleRate <= 0 {
		return nil, errors.New("sample rate must be positive")
	}

	if config.Channels <= 0 {
		return nil, errors.New("channels must be positive")
	}

	if config.MP3Path == "" {
		return nil, errors.New("MP3 path cannot be empty")
	}

	return &Take{ //nolint:exhaustruct // wg, errOnce, err initialized later
		sampleRate: config.SampleRate,
		channels:   config.Channels,
		input:      input,
		pcmPath:    config.MP3Path + ".tmp.pcm",
		mp3Path:    config.MP3Path,
	}, nil
}

// Start begins buffering PCM data from the input channel to disk. Must be
// called before any data is sent to the input channel.
func (t *Take) Start(ctx context.Context) error {
	if t.pcmFile != nil {
		return errors.New("take already started")
	}

	pcmFile, err := os.Create(t.pcmPath)
	if err != nil {
		return fmt.Errorf("failed to create PCM file %s: %w", t.pcmPath, err)
	}

	t.pcmFile = pcmFile

	t.wg.Go(func() {
		defer func() {
			if err := t.pcmFile.Close(); err != nil {
				t.setError(fmt.Errorf("failed to close PCM file: %w", err))
				return
			}

			if err := t.convertToMP3(); err != nil {
				t.setError(fmt.Errorf("failed to convert to MP3: %w", err))
				return
			}

			if err := t.cleanup(); err != nil {
				slog.Warn("failed to cleanup temporary PCM file", "error", err)
			}

			slog.Debug("take complete", "output", t.mp3Path)
		}()

		for {
			select {
			case data, ok := <-t.input:
				if !ok {
					// Channel closed, finish the take
					return
				}

				n, err := t.pcmFile.Write(data)
				if err != nil {
					t.setError(fmt.Errorf("failed to write PCM data: %w", err))
					return
				}

				t.mu.Lock()
				t.bytesWritten += int64(n)
				t.mu.Unlock()

			case <-ctx.Done():
				return
			}
		}
	})

	return nil
}

// Wait blocks until the take completes (including MP3 conversion and
// cleanup) and returns any error from the whole process.
func (t *Take) Wait() error {
	t.wg.Wait()
	return t.err
}

// BytesWritten returns the number of PCM bytes buffered so far. Safe for
// concurrent use.
func (t *Take) BytesWritten() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.bytesWritten
}

// Path returns the MP3 output path of the take.
func (t *Take) Path() string {
	return t.mp3Path
}

// convertToMP3 encodes the buffered PCM to the final MP3 file.
func (t *Take) convertToMP3() error {
	pcmData, err := os.ReadFile(t.pcmPath)
	if err != nil {
		return fmt.Errorf("failed to read PCM file: %w", err)
	}

	// S16LE bytes -> int16 samples
	numSamples := len(pcmData) / 2
	monoSamples := make([]int16, numSamples)

	reader := bytes.NewReader(pcmData)
	if err := binary.Read(reader, binary.LittleEndian, monoSamples); err != nil {
		return fmt.Errorf("failed to read PCM samples: %w", err)
	}

	// shine-mp3 miscounts mono input, so duplicate mono into stereo (L=R).
	var samples []int16
	channels := t.channels

	if t.channels == 1 {
		samples = make([]int16, numSamples*2)
		for i, sample := range monoSamples {
			samples[i*2] = sample
			samples[i*2+1] = sample
		}
		channels = 2
	} else {
		samples = monoSamples
	}

	encoder := mp3encoder.NewEncoder(t.sampleRate, channels)

	mp3File, err := os.Create(t.mp3Path)
	if err != nil {
		return fmt.Errorf("failed to create MP3 file %s: %w", t.mp3Path, err)
	}
	defer mp3File.Close()

	if err := encoder.Write(mp3File, samples); err != nil {
		return fmt.Errorf("failed to encode MP3: %w", err)
	}

	return nil
}

func (t *Take) cleanup() error {
	if err := os.Remove(t.pcmPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove temporary PCM file %s: %w", t.pcmPath, err)
	}

	return nil
}

// setError records the first error that occurs (subsequent calls are no-ops).
func (t *Take) setError(err error) {
	t.errOnce.Do(func() {
		t.err = err
		slog.Error("take recorder error", "error", err)
	})
}
