package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultWhisperModel  = openai.Whisper1
	defaultSpeechTimeout = 60 * time.Second
)

// ErrNotConfigured is returned when a speech provider has no credentials.
var ErrNotConfigured = errors.New("voice: provider not configured")

// Audio is an uploaded recording.
type Audio struct {
	Filename    string
	ContentType string
	Reader      io.Reader
}

// Transcript is the text recognized in a recording.
type Transcript struct {
	Text        string   `json:"transcript"`
	Language    *string  `json:"language"`
	DurationSec *float64 `json:"duration_sec"`
}

type audioClient interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
}

// WhisperTranscriber turns speech into text with OpenAI Whisper.
type WhisperTranscriber struct {
	client  audioClient
	model   string
	timeout time.Duration
}

// NewWhisperTranscriber returns nil when no client is given so callers can
// treat transcription as unconfigured.
func NewWhisperTranscriber(client audioClient, model string, timeout time.Duration) *WhisperTranscriber {
	if client == nil {
		return nil
	}
	if strings.TrimSpace(model) == "" {
		model = defaultWhisperModel
	}
	if timeout <= 0 {
		timeout = defaultSpeechTimeout
	}
	return &WhisperTranscriber{client: client, model: model, timeout: timeout}
}

func (w *WhisperTranscriber) Transcribe(ctx context.Context, audio Audio) (Transcript, error) {
	if w == nil {
		return Transcript{}, fmt.Errorf("%w: whisper api key missing", ErrNotConfigured)
	}
	filename := audio.Filename
	if strings.TrimSpace(filename) == "" {
		filename = "audio.m4a"
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: filename,
		Reader:   audio.Reader,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return Transcript{}, fmt.Errorf("voice: transcription failed: %w", err)
	}

	out := Transcript{Text: strings.TrimSpace(resp.Text)}
	if resp.Language != "" {
		lang := resp.Language
		out.Language = &lang
	}
	if resp.Duration > 0 {
		d := resp.Duration
		out.DurationSec = &d
	}
	return out, nil
}
