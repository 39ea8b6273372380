// Package transcribe sends recorded audio to the Whisper API.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Client handles Whisper API transcription requests.
type Client struct {
	apiKey string
}

// NewClient creates a new transcription client.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey: apiKey,
	}
}

// TranscribeFile transcribes an audio file using the Whisper API.
func (c *Client) TranscribeFile(ctx context.Context, audioFile io.Reader) (string, error) {
	if c.apiKey == "" {
		return "", errors.New("API key required: set OPENAI_API_KEY or use --openai-api-key")
	}

	client := openai.NewClient(option.WithAPIKey(c.apiKey))

	params := openai.AudioTranscriptionNewParams{
		File:  audioFile,
		Model: openai.AudioModelWhisper1,
	}

	resp, err := client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to create transcription via Whisper API: %w", err)
	}

	return resp.Text, nil
}
