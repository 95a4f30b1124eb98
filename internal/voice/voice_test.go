package voice

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/ersim-ai-platform/internal/conversation"
	"github.com/wolfman30/ersim-ai-platform/internal/identity"
	"github.com/wolfman30/ersim-ai-platform/pkg/logging"
)

type stubAudioClient struct {
	last openai.AudioRequest
	body string
	resp openai.AudioResponse
	err  error
}

func (s *stubAudioClient) CreateTranscription(_ context.Context, req openai.AudioRequest) (openai.AudioResponse, error) {
	s.last = req
	if req.Reader != nil {
		data, _ := io.ReadAll(req.Reader)
		s.body = string(data)
	}
	return s.resp, s.err
}

func TestWhisperTranscriber(t *testing.T) {
	client := &stubAudioClient{resp: openai.AudioResponse{Text: "  get me an ecg  ", Language: "english"}}
	tr := NewWhisperTranscriber(client, "", 0)

	got, err := tr.Transcribe(context.Background(), Audio{Filename: "clip.webm", Reader: strings.NewReader("RIFF")})
	require.NoError(t, err)
	assert.Equal(t, "get me an ecg", got.Text)
	require.NotNil(t, got.Language)
	assert.Equal(t, "english", *got.Language)
	assert.Nil(t, got.DurationSec)
	assert.Equal(t, openai.Whisper1, client.last.Model)
	assert.Equal(t, "clip.webm", client.last.FilePath)
	assert.Equal(t, openai.AudioResponseFormatJSON, client.last.Format)
	assert.Equal(t, "RIFF", client.body)
}

func TestWhisperTranscriberUnconfigured(t *testing.T) {
	tr := NewWhisperTranscriber(nil, "", 0)
	_, err := tr.Transcribe(context.Background(), Audio{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestElevenLabsSynthesizer(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("xi-api-key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3audio"))
	}))
	defer srv.Close()

	synth := NewElevenLabsSynthesizer(srv.Client(), ElevenLabsConfig{APIKey: "xi-key", BaseURL: srv.URL + "/"})
	audio, err := synth.Synthesize(context.Background(), "BP is 90 over 60.")
	require.NoError(t, err)

	assert.Equal(t, []byte("ID3audio"), audio)
	assert.Equal(t, "/v1/text-to-speech/"+defaultElevenLabsVoiceID, gotPath)
	assert.Equal(t, "xi-key", gotKey)
	assert.Equal(t, "BP is 90 over 60.", gotBody["text"])
	assert.Equal(t, defaultElevenLabsModelID, gotBody["model_id"])
}

func TestElevenLabsSynthesizerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	synth := NewElevenLabsSynthesizer(srv.Client(), ElevenLabsConfig{APIKey: "xi-key", BaseURL: srv.URL})
	_, err := synth.Synthesize(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")

	unconfigured := NewElevenLabsSynthesizer(nil, ElevenLabsConfig{})
	_, err = unconfigured.Synthesize(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

type stubTranscriber struct {
	text string
	err  error
}

func (s stubTranscriber) Transcribe(context.Context, Audio) (Transcript, error) {
	return Transcript{Text: s.text}, s.err
}

type stubSynthesizer struct {
	err   error
	texts []string
}

func (s *stubSynthesizer) Synthesize(_ context.Context, text string) ([]byte, error) {
	s.texts = append(s.texts, text)
	if s.err != nil {
		return nil, s.err
	}
	return []byte("mp3:" + text), nil
}

// stubResponder runs the BeforeCommit hook like the orchestrator and counts
// the turns it would have stored.
type stubResponder struct {
	last      conversation.RespondRequest
	resp      *conversation.TurnResponse
	err       error
	committed int
}

func (s *stubResponder) Respond(ctx context.Context, req conversation.RespondRequest) (*conversation.TurnResponse, error) {
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	if req.BeforeCommit != nil {
		if err := req.BeforeCommit(ctx, conversation.Decision{SpeechOutput: s.resp.SpeechOutput}); err != nil {
			return nil, fmt.Errorf("conversation: turn not recorded: %w", err)
		}
	}
	s.committed++
	return s.resp, nil
}

func multipartRequest(t *testing.T, path string, fields map[string]string, withAudio bool) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if withAudio {
		part, err := mw.CreateFormFile("audio", "clip.webm")
		require.NoError(t, err)
		_, _ = part.Write([]byte("audio-bytes"))
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHandlerTranscribe(t *testing.T) {
	h := NewHandler(stubTranscriber{text: "hello"}, &stubSynthesizer{}, &stubResponder{}, logging.Default())

	w := httptest.NewRecorder()
	h.Transcribe(w, multipartRequest(t, "/api/voice/transcribe", nil, true))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"transcript":"hello"`)

	w = httptest.NewRecorder()
	h.Transcribe(w, multipartRequest(t, "/api/voice/transcribe", nil, false))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	failing := NewHandler(stubTranscriber{err: errors.New("whisper down")}, &stubSynthesizer{}, &stubResponder{}, logging.Default())
	w = httptest.NewRecorder()
	failing.Transcribe(w, multipartRequest(t, "/api/voice/transcribe", nil, true))
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestHandlerSpeak(t *testing.T) {
	synth := &stubSynthesizer{}
	h := NewHandler(stubTranscriber{}, synth, &stubResponder{}, logging.Default())

	w := httptest.NewRecorder()
	h.Speak(w, httptest.NewRequest(http.MethodPost, "/api/voice/speak", strings.NewReader(`{"text":" Vitals stable. "}`)))
	require.Equal(t, http.StatusOK, w.Code)
	var resp speakResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "mp3", resp.Format)
	assert.Equal(t, "Vitals stable.", resp.Text)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("mp3:Vitals stable.")), resp.AudioBase64)

	w = httptest.NewRecorder()
	h.Speak(w, httptest.NewRequest(http.MethodPost, "/api/voice/speak", strings.NewReader(`{"text":"  "}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	synth.err = errors.New("tts down")
	w = httptest.NewRecorder()
	h.Speak(w, httptest.NewRequest(http.MethodPost, "/api/voice/speak", strings.NewReader(`{"assistant_text":"hi"}`)))
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestHandlerFullPipeline(t *testing.T) {
	responder := &stubResponder{resp: &conversation.TurnResponse{
		SessionID:      "sess",
		CaseID:         "case-7",
		TurnIndex:      2,
		SpeechOutput:   "ECG is up.",
		ActionTriggers: []conversation.ActionTrigger{{Type: conversation.TriggerTypeResourceRequest, Resource: "ecg"}},
		UIUpdates:      map[string]any{},
	}}
	synth := &stubSynthesizer{}
	h := NewHandler(stubTranscriber{text: "get me an ecg"}, synth, responder, logging.Default())

	req := multipartRequest(t, "/api/voice/full", map[string]string{"case_id": "case-7", "session_id": "sess"}, true)
	req = req.WithContext(identity.WithUserID(req.Context(), "learner-1"))
	w := httptest.NewRecorder()
	h.Full(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "learner-1", responder.last.UserID)
	assert.Equal(t, "sess", responder.last.SessionID)
	assert.Equal(t, "case-7", responder.last.CaseID)
	assert.Equal(t, "get me an ecg", responder.last.Utterance)
	assert.Equal(t, []string{"ECG is up."}, synth.texts)
	assert.Equal(t, 1, responder.committed)

	var resp map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "get me an ecg", resp["transcript"])
	assert.Equal(t, "sess", resp["session_id"])
	assert.EqualValues(t, 2, resp["turn_index"])
	assert.NotEmpty(t, resp["audio_base64"])
}

func TestHandlerFullPipelineSynthesisFailureStoresNothing(t *testing.T) {
	responder := &stubResponder{resp: &conversation.TurnResponse{SessionID: "sess", SpeechOutput: "ECG is up."}}
	synth := &stubSynthesizer{err: errors.New("elevenlabs 500")}
	h := NewHandler(stubTranscriber{text: "get me an ecg"}, synth, responder, logging.Default())

	w := httptest.NewRecorder()
	h.Full(w, multipartRequest(t, "/api/voice/full", map[string]string{"case_id": "case-7", "session_id": "sess"}, true))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "TTS error")
	assert.Equal(t, 0, responder.committed)
	assert.Equal(t, []string{"ECG is up."}, synth.texts)

	synth.err = nil
	w = httptest.NewRecorder()
	h.Full(w, multipartRequest(t, "/api/voice/full", map[string]string{"case_id": "case-7", "session_id": "sess"}, true))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, responder.committed)
}

func TestHandlerFullPipelineSkipsSynthesisForSilentTurn(t *testing.T) {
	responder := &stubResponder{resp: &conversation.TurnResponse{SessionID: "sess", SpeechOutput: ""}}
	synth := &stubSynthesizer{}
	h := NewHandler(stubTranscriber{text: "..."}, synth, responder, logging.Default())

	w := httptest.NewRecorder()
	h.Full(w, multipartRequest(t, "/api/voice/full", map[string]string{"case_id": "case-7"}, true))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, synth.texts)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Empty(t, resp["audio_base64"])
}

func TestHandlerFullPipelineMapsTurnErrors(t *testing.T) {
	responder := &stubResponder{err: conversation.ErrUpstreamFailure}
	h := NewHandler(stubTranscriber{text: "hello"}, &stubSynthesizer{}, responder, logging.Default())

	w := httptest.NewRecorder()
	h.Full(w, multipartRequest(t, "/api/voice/full", map[string]string{"case_id": "case-7"}, true))
	assert.Equal(t, http.StatusBadGateway, w.Code)

	responder.err = conversation.ErrInvalidInput
	w = httptest.NewRecorder()
	h.Full(w, multipartRequest(t, "/api/voice/full", nil, true))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
