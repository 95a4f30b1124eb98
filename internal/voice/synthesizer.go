package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultElevenLabsBaseURL = "https://api.elevenlabs.io"
	defaultElevenLabsVoiceID = "EXAVITQu4vr4xnSDxMaL"
	defaultElevenLabsModelID = "eleven_multilingual_v2"
)

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ElevenLabsConfig configures the text-to-speech client.
type ElevenLabsConfig struct {
	APIKey  string
	VoiceID string
	ModelID string
	BaseURL string
	Timeout time.Duration
}

// ElevenLabsSynthesizer voices text as MP3 audio.
type ElevenLabsSynthesizer struct {
	client HTTPDoer
	cfg    ElevenLabsConfig
}

func NewElevenLabsSynthesizer(client HTTPDoer, cfg ElevenLabsConfig) *ElevenLabsSynthesizer {
	if client == nil {
		client = &http.Client{}
	}
	if strings.TrimSpace(cfg.VoiceID) == "" {
		cfg.VoiceID = defaultElevenLabsVoiceID
	}
	if strings.TrimSpace(cfg.ModelID) == "" {
		cfg.ModelID = defaultElevenLabsModelID
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultElevenLabsBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSpeechTimeout
	}
	return &ElevenLabsSynthesizer{client: client, cfg: cfg}
}

// Synthesize returns MP3 bytes for text.
func (s *ElevenLabsSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(s.cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: elevenlabs api key missing", ErrNotConfigured)
	}
	body, err := json.Marshal(map[string]string{"text": text, "model_id": s.cfg.ModelID})
	if err != nil {
		return nil, fmt.Errorf("voice: encode tts request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	url := fmt.Sprintf("%s/v1/text-to-speech/%s", s.cfg.BaseURL, s.cfg.VoiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("voice: build tts request: %w", err)
	}
	req.Header.Set("xi-api-key", s.cfg.APIKey)
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voice: tts request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("voice: tts returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("voice: read tts audio: %w", err)
	}
	return audio, nil
}
