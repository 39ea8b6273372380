package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/gen2brain/malgo"

	"github.com/alkime/dictate/internal/audio"
	"github.com/alkime/dictate/internal/config"
	"github.com/alkime/dictate/internal/correction"
	"github.com/alkime/dictate/internal/deliver"
	"github.com/alkime/dictate/internal/dictation"
	"github.com/alkime/dictate/internal/keyring"
	"github.com/alkime/dictate/internal/logger"
	"github.com/alkime/dictate/internal/notify"
	"github.com/alkime/dictate/internal/server"
	"github.com/alkime/dictate/internal/store"
	"github.com/alkime/dictate/internal/transcribe"
	"github.com/alkime/dictate/internal/workdir"
	"github.com/alkime/dictate/internal/workflow"
)

// CLI defines the dictate command structure.
type CLI struct {
	// Default command (runs when no subcommand given)
	Run RunCmd `cmd:"" default:"withargs" help:"Run the dictation loop"`

	// Subcommands
	Devices DevicesCmd `cmd:"" help:"List available audio devices"`
	Config  ConfigCmd  `cmd:"" help:"Manage configuration"`
}

// RunCmd is the default command that runs the interactive dictation loop.
type RunCmd struct {
	DataDir         string `flag:"" optional:"" help:"Working directory (default: ~/.dictate)"`
	OpenAIAPIKey    string `flag:"" env:"OPENAI_API_KEY" help:"OpenAI API key for transcription"`
	AnthropicAPIKey string `flag:"" env:"ANTHROPIC_API_KEY" help:"Anthropic API key for correction"`
}

// Run executes the dictation loop.
//
//nolint:funlen // CLI command with multiple setup steps
func (c *RunCmd) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	log := logger.SetupLogger(cfg)

	// Resolve API keys: environment variables take priority, fallback to keychain
	if c.OpenAIAPIKey == "" {
		if secret, err := keyring.Get(keyring.OpenAI); err == nil {
			c.OpenAIAPIKey = secret
		} else {
			log.Debug("keychain lookup failed", "key", "openai", "error", err)
		}
	}

	if c.AnthropicAPIKey == "" {
		if secret, err := keyring.Get(keyring.Anthropic); err == nil {
			c.AnthropicAPIKey = secret
		} else {
			log.Debug("keychain lookup failed", "key", "anthropic", "error", err)
		}
	}

	var missing []string
	if c.OpenAIAPIKey == "" {
		missing = append(missing, "openai")
	}

	if c.AnthropicAPIKey == "" {
		missing = append(missing, "anthropic")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing API keys: %s. Set via environment variables or run 'dictate config set-key'",
			strings.Join(missing, ", "))
	}

	// Working directory and persistence
	if c.DataDir == "" {
		c.DataDir = cfg.DataDir
	}

	dir, err := workdir.Resolve(c.DataDir)
	if err != nil {
		return err
	}

	if err := workdir.Prep(dir); err != nil {
		return fmt.Errorf("failed to prepare working directory: %w", err)
	}

	db, err := store.Open(workdir.DBPath(dir), log)
	if err != nil {
		return fmt.Errorf("failed to open correction store: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close correction store", "error", err)
		}
	}()

	// Operator notifications, delivered off the dictation path
	sinks := notify.Multi{&notify.LogSink{Log: log}}
	if cfg.NotifyCommand != "" {
		sinks = append(sinks, &notify.CommandSink{Command: cfg.NotifyCommand, Log: log})
	}

	dispatcher := notify.NewDispatcher(sinks, cfg.NotifyQueueSize, log)
	if err := dispatcher.Run(ctx); err != nil {
		return fmt.Errorf("failed to start notification dispatcher: %w", err)
	}
	defer dispatcher.Wait()

	// Correction pipeline
	provider := correction.NewAnthropicProvider(c.AnthropicAPIKey)
	pipeline := correction.NewPipeline(provider, db, dispatcher, correction.Config{
		MinChars:         cfg.CorrectionMinChars,
		FailureThreshold: cfg.CorrectionFailureThreshold,
		OpenWindow:       cfg.CorrectionOpenWindow,
	}, log)

	// Dictation state machine
	machine := dictation.NewMachine()
	machine.Subscribe(func(phase dictation.Phase) {
		log.Info("phase changed", "phase", phase)
	})

	// Audio capture
	recorder := audio.NewSessionRecorder(&audio.DeviceConfig{
		Format:          malgo.FormatS16,
		SampleRate:      16_000,
		CaptureChannels: 1,
	}, workdir.TakesPath(dir))

	wf := workflow.New(
		machine,
		recorder,
		transcribe.NewClient(c.OpenAIAPIKey),
		pipeline,
		deliver.Clipboard{},
		log,
	)

	// Optional status server
	if cfg.ServerEnabled {
		srv := server.New(cfg, log, wf, pipeline, db)
		go func() {
			if err := server.Run(srv); err != nil {
				log.Error("Status server stopped", "error", err)
			}
		}()
	}

	return runLoop(ctx, wf, log)
}

// runLoop reads single-line commands from stdin: Enter toggles recording,
// "a" aborts the current take, "q" quits.
func runLoop(ctx context.Context, wf *workflow.Workflow, log *slog.Logger) error {
	fmt.Println("dictate ready. Enter = start/stop recording, a = abort take, q = quit.")

	scanner := bufio.NewScanner(os.Stdin)

	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}

		switch strings.TrimSpace(scanner.Text()) {
		case "q":
			if wf.Phase() == dictation.PhaseRecording {
				if err := wf.Abort(ctx); err != nil {
					log.Warn("failed to abort take on quit", "error", err)
				}
			}

			fmt.Println("bye!")

			return nil

		case "a":
			if err := wf.Abort(ctx); err != nil {
				fmt.Println(err)
			}

		default:
			if err := toggle(ctx, wf); err != nil {
				fmt.Println(err)
			}
		}
	}

	return scanner.Err()
}

// toggle starts a take when idle and finishes it when recording.
func toggle(ctx context.Context, wf *workflow.Workflow) error {
	if wf.Phase() == dictation.PhaseRecording {
		result, err := wf.Stop(ctx)
		if err != nil {
			if errors.Is(err, workflow.ErrNoSpeech) {
				fmt.Println("(no speech detected)")
				return nil
			}

			return err
		}

		fmt.Printf("copied to clipboard (%d chars):\n%s\n", len(result.FinalTranscript), result.FinalTranscript)

		return nil
	}

	if err := wf.Start(ctx); err != nil {
		return err
	}

	fmt.Println("recording... press Enter to finish")

	return nil
}

// DevicesCmd lists available audio devices.
type DevicesCmd struct{}

// Run executes the devices command.
func (dcmd *DevicesCmd) Run() error {
	slog.Info("Enumerating audio devices...")

	adev := audio.NewDevice(nil)
	devices, err := adev.EnumerateDevices(context.Background())
	if err != nil {
		return fmt.Errorf("failed to enumerate audio devices: %w", err)
	}

	for _, dev := range devices {
		slog.Info("Audio Device",
			"name", dev.Name,
			"isDefault", dev.IsDefault,
			"formatCount", dev.FormatCount,
			"formats", dev.Formats,
		)
	}

	return nil
}

// ConfigCmd groups configuration-related subcommands.
type ConfigCmd struct {
	SetKey   SetKeyCmd   `cmd:"" help:"Store an API key in system keychain"`
	ListKeys ListKeysCmd `cmd:"" name:"list-keys" help:"Show which API keys are configured"`
}

// SetKeyCmd stores an API key in the system keychain.
type SetKeyCmd struct {
	Service string `arg:"" enum:"openai,anthropic" help:"Service name (openai or anthropic)"`
	Secret  string `arg:"" help:"API key value"`
}

// Run executes the set-key command.
func (c *SetKeyCmd) Run() error {
	if strings.TrimSpace(c.Secret) == "" {
		return errors.New("API key cannot be empty")
	}

	apiKey, err := keyring.APIKeyFromServiceName(c.Service)
	if err != nil {
		return fmt.Errorf("invalid service: %w", err)
	}

	if err := keyring.Set(apiKey, c.Secret); err != nil {
		return fmt.Errorf("failed to store API key: %w", err)
	}

	fmt.Printf("%s API key stored in keychain\n", c.Service)

	return nil
}

// ListKeysCmd shows which API keys are configured.
type ListKeysCmd struct{}

// Run executes the list-keys command.
//
//nolint:unparam // error return required by Kong interface
func (c *ListKeysCmd) Run() error {
	allSet := true

	for _, apiKey := range keyring.AllAPIKeys() {
		if keyring.IsSet(apiKey) {
			fmt.Printf("%s: configured\n", apiKey.DisplayName())
		} else {
			fmt.Printf("%s: not set\n", apiKey.DisplayName())
			allSet = false
		}
	}

	if !allSet {
		fmt.Println("\nRun 'dictate config set-key <service> <key>' to configure.")
	}

	return nil
}

func main() {
	cli := &CLI{} //nolint:exhaustruct // Kong fills in command fields
	ctx := kong.Parse(cli)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
	os.Exit(0)
}
