// Package deliver places corrected transcripts on the OS text-input surface.
package deliver

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Sink delivers a finished transcript to the user.
type Sink interface {
	Deliver(ctx context.Context, text string) error
}

// Clipboard copies text using the platform clipboard tool.
type Clipboard struct{}

// Deliver writes text to the system clipboard.
func (Clipboard) Deliver(ctx context.Context, text string) error {
	name, args := clipboardCommand(runtime.GOOS)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = strings.NewReader(text)

	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("clipboard command %s failed: %w (%s)",
			name, err, strings.TrimSpace(string(out)))
	}

	return nil
}

// clipboardCommand picks the clipboard tool for the platform. On Linux it
// prefers wl-copy (Wayland) and falls back to xclip.
func clipboardCommand(goos string) (string, []string) {
	switch goos {
	case "darwin":
		return "pbcopy", nil
	case "windows":
		return "clip", nil
	default:
		if _, err := exec.LookPath("wl-copy"); err == nil {
			return "wl-copy", nil
		}

		return "xclip", []string{"-selection", "clipboard"}
	}
}
