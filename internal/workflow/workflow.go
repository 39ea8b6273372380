// Package workflow drives one dictation session end to end: recording,
// transcription, correction, and delivery, with phases enforced by the
// dictation state machine.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/alkime/dictate/internal/deliver"
	"github.com/alkime/dictate/internal/dictation"
)

var (
	// ErrAlreadyRecording is returned by Start while a take is in progress.
	ErrAlreadyRecording = errors.New("already recording")
	// ErrNotRecording is returned by Stop and Abort when no take is in progress.
	ErrNotRecording = errors.New("no recording in progress")
	// ErrNoSpeech is returned by Stop when the take transcribed to nothing.
	ErrNoSpeech = errors.New("no speech detected in take")
)

// Transcriber turns a recorded audio file into raw text.
type Transcriber interface {
	TranscribeFile(ctx context.Context, audioFile io.Reader) (string, error)
}

// Corrector improves a raw transcript, best effort.
type Corrector interface {
	Correct(ctx context.Context, transcriptionID, text string) (string, error)
}

// TakeRecorder captures one audio take at a time.
type TakeRecorder interface {
	Start(ctx context.Context) error
	// Stop finishes the take and returns the recorded audio file path.
	Stop(ctx context.Context) (string, error)
	// Discard finishes and deletes the take.
	Discard(ctx context.Context) error
}

// Result summarizes one completed dictation.
type Result struct {
	TranscriptionID string
	RawTranscript   string
	FinalTranscript string
	Corrected       bool
}

// Workflow coordinates the collaborators of a dictation session.
type Workflow struct {
	machine     *dictation.Machine
	recorder    TakeRecorder
	transcriber Transcriber
	corrector   Corrector
	sink        deliver.Sink
	log         *slog.Logger
}

// New creates a workflow around the given collaborators.
func New(
	machine *dictation.Machine,
	recorder TakeRecorder,
	transcriber Transcriber,
	corrector Corrector,
	sink deliver.Sink,
	log *slog.Logger,
) *Workflow {
	return &Workflow{
		machine:     machine,
		recorder:    recorder,
		transcriber: transcriber,
		corrector:   corrector,
		sink:        sink,
		log:         log,
	}
}

// Phase exposes the current dictation phase for status surfaces.
func (w *Workflow) Phase() dictation.Phase {
	return w.machine.Current()
}

// Start begins recording a new take.
func (w *Workflow) Start(ctx context.Context) error {
	if w.machine.Current() == dictation.PhaseRecording {
		return ErrAlreadyRecording
	}

	if err := w.machine.TransitionTo(dictation.PhaseRecording); err != nil {
		return err
	}

	if err := w.recorder.Start(ctx); err != nil {
		// Recording never began; give the phase back.
		if terr := w.machine.TransitionTo(dictation.PhaseIdle); terr != nil {
			w.log.Error("failed to return to idle after recorder error", "error", terr)
		}

		return fmt.Errorf("failed to start recording: %w", err)
	}

	w.log.Info("recording started")

	return nil
}

// Stop finishes the take, transcribes it, runs the correction pipeline and
// delivers the final text. The machine returns to idle whatever the outcome.
func (w *Workflow) Stop(ctx context.Context) (Result, error) {
	if w.machine.Current() != dictation.PhaseRecording {
		return Result{}, ErrNotRecording
	}

	if err := w.machine.TransitionTo(dictation.PhaseTranscribing); err != nil {
		return Result{}, err
	}

	defer func() {
		if err := w.machine.TransitionTo(dictation.PhaseIdle); err != nil {
			w.log.Error("failed to return to idle", "error", err)
		}
	}()

	audioPath, err := w.recorder.Stop(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to finish take: %w", err)
	}

	audioFile, err := os.Open(audioPath)
	if err != nil {
		return Result{}, fmt.Errorf("failed to open take %s: %w", audioPath, err)
	}
	defer audioFile.Close()

	raw, err := w.transcriber.TranscribeFile(ctx, audioFile)
	if err != nil {
		return Result{}, fmt.Errorf("failed to transcribe take: %w", err)
	}

	if strings.TrimSpace(raw) == "" {
		return Result{}, ErrNoSpeech
	}

	transcriptionID := uuid.NewString()

	final, err := w.corrector.Correct(ctx, transcriptionID, raw)
	if err != nil {
		return Result{}, fmt.Errorf("failed to correct transcript: %w", err)
	}

	if err := w.sink.Deliver(ctx, final); err != nil {
		return Result{}, fmt.Errorf("failed to deliver transcript: %w", err)
	}

	w.log.Info("dictation complete",
		"transcriptionId", transcriptionID,
		"chars", len(final),
		"corrected", final != raw,
	)

	return Result{
		TranscriptionID: transcriptionID,
		RawTranscript:   raw,
		FinalTranscript: final,
		Corrected:       final != raw,
	}, nil
}

// Abort discards the current take and returns to idle without transcribing.
func (w *Workflow) Abort(ctx context.Context) error {
	if w.machine.Current() != dictation.PhaseRecording {
		return ErrNotRecording
	}

	if err := w.machine.TransitionTo(dictation.PhaseIdle); err != nil {
		return err
	}

	if err := w.recorder.Discard(ctx); err != nil {
		w.log.Warn("failed to discard take", "error", err)
	}

	w.log.Info("recording aborted")

	return nil
}
