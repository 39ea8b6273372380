// Package dictation tracks which phase the dictation pipeline is in and
// enforces the legal ordering of phase changes.
package dictation

import (
	"fmt"
	"sync"
)

// Phase is the mutually exclusive operating mode of the pipeline.
type Phase string

const (
	// PhaseIdle means nothing is in flight; the machine starts here.
	PhaseIdle Phase = "idle"
	// PhaseRecording means the microphone is capturing a take.
	PhaseRecording Phase = "recording"
	// PhaseTranscribing means a finished take is being transcribed and corrected.
	PhaseTranscribing Phase = "transcribing"
)

// InvalidTransitionError reports a rejected phase change.
type InvalidTransitionError struct {
	From Phase
	To   Phase
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid dictation transition: %s -> %s", e.From, e.To)
}

// Observer receives the new phase immediately after a transition commits.
// Observers needing more than the phase should read the machine afresh.
type Observer func(Phase)

// Machine owns the current dictation phase. One Machine exists per running
// process and every phase change goes through TransitionTo; recording and
// transcribing hold exclusive resources (microphone, correction provider),
// so overlaps between them are rejected rather than serialized.
type Machine struct {
	mu        sync.Mutex
	current   Phase
	observers []Observer
}

// NewMachine returns a machine in the idle phase.
func NewMachine() *Machine {
	return &Machine{current: PhaseIdle}
}

// legal reports whether a committed from -> to change is allowed.
// Self-transitions are handled by TransitionTo before this is consulted.
func legal(from, to Phase) bool {
	switch from {
	case PhaseIdle:
		return to == PhaseRecording
	case PhaseRecording:
		return to == PhaseIdle || to == PhaseTranscribing
	case PhaseTranscribing:
		return to == PhaseIdle
	}

	return false
}

// Current returns the last committed phase.
func (m *Machine) Current() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.current
}

// CanTransitionTo reports whether a change to target would be accepted.
// Pure query, no side effects.
func (m *Machine) CanTransitionTo(target Phase) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.current == target || legal(m.current, target)
}

// Subscribe registers an observer for committed phase changes. Observers run
// synchronously inside TransitionTo, in registration order. Register before
// driving the machine; Subscribe is not meant to interleave with transitions.
func (m *Machine) Subscribe(fn Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.observers = append(m.observers, fn)
}

// TransitionTo requests a phase change.
//
// A transition to the current phase is a silent no-op: no mutation, no event.
// An illegal transition returns *InvalidTransitionError and leaves the phase
// unchanged. A legal transition commits the new phase and then invokes every
// observer, in order, before returning.
func (m *Machine) TransitionTo(target Phase) error {
	m.mu.Lock()

	if m.current == target {
		m.mu.Unlock()
		return nil
	}

	if !legal(m.current, target) {
		from := m.current
		m.mu.Unlock()

		return &InvalidTransitionError{From: from, To: target}
	}

	m.current = target
	observers := m.observers
	m.mu.Unlock()

	// Observers run outside the lock so they may call Current without
	// deadlocking. Panics propagate to the caller of TransitionTo; whoever
	// registered the observer owns its failure handling.
	for _, fn := range observers {
		fn(target)
	}

	return nil
}
