// Package notify delivers operator alerts about circuit breaker transitions.
package notify

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Sink receives human-readable alerts. Implementations must not panic on
// delivery trouble; they log and move on, because a failed notification must
// never alter a correction result already decided.
type Sink interface {
	NotifyCircuitOpened(providerID string, failureCount int, lastError string)
	NotifyCircuitClosed(providerID string)
	// Notify delivers a free-form message on the secondary channel.
	Notify(message string)
}

// LogSink writes notifications to the structured log.
type LogSink struct {
	Log *slog.Logger
}

func (s *LogSink) NotifyCircuitOpened(providerID string, failureCount int, lastError string) {
	s.Log.Error("correction circuit opened",
		"provider", providerID,
		"consecutiveFailures", failureCount,
		"lastError", lastError,
	)
}

func (s *LogSink) NotifyCircuitClosed(providerID string) {
	s.Log.Info("correction circuit closed", "provider", providerID)
}

func (s *LogSink) Notify(message string) {
	s.Log.Warn("operator notification", "message", message)
}

// CommandSink runs an external command (e.g. notify-send or a mail script)
// with the message as its single argument.
type CommandSink struct {
	Command string
	Log     *slog.Logger
}

func (s *CommandSink) NotifyCircuitOpened(providerID string, failureCount int, lastError string) {
	s.Notify(fmt.Sprintf(
		"dictate: transcript correction via %s suspended after %d consecutive failures (last: %s)",
		providerID, failureCount, lastError,
	))
}

func (s *CommandSink) NotifyCircuitClosed(providerID string) {
	s.Notify(fmt.Sprintf("dictate: transcript correction via %s recovered", providerID))
}

func (s *CommandSink) Notify(message string) {
	if strings.TrimSpace(s.Command) == "" {
		return
	}

	//nolint:gosec // Command comes from the operator's own config.
	if out, err := exec.Command(s.Command, message).CombinedOutput(); err != nil {
		s.Log.Error("notification command failed",
			"command", s.Command,
			"error", err,
			"output", strings.TrimSpace(string(out)),
		)
	}
}

// Multi fans each notification out to every sink in order.
type Multi []Sink

func (m Multi) NotifyCircuitOpened(providerID string, failureCount int, lastError string) {
	for _, s := range m {
		s.NotifyCircuitOpened(providerID, failureCount, lastError)
	}
}

func (m Multi) NotifyCircuitClosed(providerID string) {
	for _, s := range m {
		s.NotifyCircuitClosed(providerID)
	}
}

func (m Multi) Notify(message string) {
	for _, s := range m {
		s.Notify(message)
	}
}
