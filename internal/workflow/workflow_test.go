package workflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alkime/dictate/internal/dictation"
)

type fakeRecorder struct {
	dir       string
	started   bool
	stopped   bool
	discarded bool
	startErr  error
}

func (f *fakeRecorder) Start(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}

func (f *fakeRecorder) Stop(context.Context) (string, error) {
	f.stopped = true
	path := filepath.Join(f.dir, "take.mp3")
	if err := os.WriteFile(path, []byte("fake audio"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (f *fakeRecorder) Discard(context.Context) error {
	f.discarded = true
	return nil
}

type fakeTranscriber struct {
	result string
	called bool
}

func (f *fakeTranscriber) TranscribeFile(_ context.Context, _ io.Reader) (string, error) {
	f.called = true
	return f.result, nil
}

type fakeCorrector struct {
	calls []string
}

func (f *fakeCorrector) Correct(_ context.Context, transcriptionID, text string) (string, error) {
	f.calls = append(f.calls, transcriptionID)
	return "corrected: " + text, nil
}

type fakeSink struct {
	delivered []string
}

func (f *fakeSink) Deliver(_ context.Context, text string) error {
	f.delivered = append(f.delivered, text)
	return nil
}

func TestWorkflow_FullCyclePhases(t *testing.T) {
	rec := &fakeRecorder{dir: t.TempDir()}
	tr := &fakeTranscriber{result: "hello from the microphone"}
	machine := dictation.NewMachine()
	corrector := &fakeCorrector{}
	sink := &fakeSink{}
	wf := New(machine, rec, tr, corrector, sink, slog.Default())

	var phases []dictation.Phase
	machine.Subscribe(func(p dictation.Phase) { phases = append(phases, p) })

	ctx := context.Background()
	require.NoError(t, wf.Start(ctx))
	assert.Equal(t, dictation.PhaseRecording, wf.Phase())

	result, err := wf.Stop(ctx)
	require.NoError(t, err)

	assert.Equal(t, dictation.PhaseIdle, wf.Phase())
	assert.Equal(t, []dictation.Phase{
		dictation.PhaseRecording,
		dictation.PhaseTranscribing,
		dictation.PhaseIdle,
	}, phases)

	assert.True(t, rec.started)
	assert.True(t, rec.stopped)
	assert.True(t, tr.called)
	require.Len(t, corrector.calls, 1)
	assert.NotEmpty(t, result.TranscriptionID)
	assert.Equal(t, "hello from the microphone", result.RawTranscript)
	assert.Equal(t, "corrected: hello from the microphone", result.FinalTranscript)
	assert.True(t, result.Corrected)
	assert.Equal(t, []string{"corrected: hello from the microphone"}, sink.delivered)
}

func TestWorkflow_StopWithoutStart(t *testing.T) {
	machine := dictation.NewMachine()
	wf := New(machine, &fakeRecorder{dir: t.TempDir()}, &fakeTranscriber{result: "x"},
		&fakeCorrector{}, &fakeSink{}, slog.Default())

	_, err := wf.Stop(context.Background())
	require.ErrorIs(t, err, ErrNotRecording)
	assert.Equal(t, dictation.PhaseIdle, machine.Current())
}

func TestWorkflow_StartTwice(t *testing.T) {
	machine := dictation.NewMachine()
	wf := New(machine, &fakeRecorder{dir: t.TempDir()}, &fakeTranscriber{result: "x"},
		&fakeCorrector{}, &fakeSink{}, slog.Default())

	ctx := context.Background()
	require.NoError(t, wf.Start(ctx))
	require.ErrorIs(t, wf.Start(ctx), ErrAlreadyRecording)
	assert.Equal(t, dictation.PhaseRecording, machine.Current())
}

func TestWorkflow_RecorderStartErrorReturnsToIdle(t *testing.T) {
	rec := &fakeRecorder{dir: t.TempDir(), startErr: errors.New("mic busy")}
	machine := dictation.NewMachine()
	wf := New(machine, rec, &fakeTranscriber{result: "x"},
		&fakeCorrector{}, &fakeSink{}, slog.Default())

	err := wf.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, dictation.PhaseIdle, machine.Current())
}

func TestWorkflow_EmptyTranscriptReturnsToIdle(t *testing.T) {
	machine := dictation.NewMachine()
	corrector := &fakeCorrector{}
	wf := New(machine, &fakeRecorder{dir: t.TempDir()}, &fakeTranscriber{result: "   "},
		corrector, &fakeSink{}, slog.Default())

	ctx := context.Background()
	require.NoError(t, wf.Start(ctx))

	_, err := wf.Stop(ctx)
	require.ErrorIs(t, err, ErrNoSpeech)
	assert.Equal(t, dictation.PhaseIdle, machine.Current())
	assert.Empty(t, corrector.calls, "empty transcript must not reach the pipeline")
}

func TestWorkflow_AbortDiscardsTake(t *testing.T) {
	rec := &fakeRecorder{dir: t.TempDir()}
	machine := dictation.NewMachine()
	wf := New(machine, rec, &fakeTranscriber{result: "x"},
		&fakeCorrector{}, &fakeSink{}, slog.Default())

	ctx := context.Background()
	require.NoError(t, wf.Start(ctx))
	require.NoError(t, wf.Abort(ctx))

	assert.True(t, rec.discarded)
	assert.Equal(t, dictation.PhaseIdle, machine.Current())

	require.ErrorIs(t, wf.Abort(ctx), ErrNotRecording)
}
