package voice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/wolfman30/ersim-ai-platform/internal/conversation"
	"github.com/wolfman30/ersim-ai-platform/internal/identity"
	"github.com/wolfman30/ersim-ai-platform/pkg/logging"
)

const maxUploadBytes = 25 << 20

// Transcriber converts recorded speech to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio Audio) (Transcript, error)
}

// Synthesizer converts text to MP3 audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Responder runs one simulation turn.
type Responder interface {
	Respond(ctx context.Context, req conversation.RespondRequest) (*conversation.TurnResponse, error)
}

// Handler serves the /api/voice pipeline.
type Handler struct {
	transcriber Transcriber
	synthesizer Synthesizer
	responder   Responder
	logger      *logging.Logger
}

func NewHandler(transcriber Transcriber, synthesizer Synthesizer, responder Responder, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{transcriber: transcriber, synthesizer: synthesizer, responder: responder, logger: logger}
}

type speakRequest struct {
	Text          string `json:"text"`
	AssistantText string `json:"assistant_text"`
}

type speakResponse struct {
	AudioBase64 string `json:"audio_base64"`
	Format      string `json:"format"`
	Text        string `json:"text"`
}

type fullResponse struct {
	Transcript string `json:"transcript"`
	*conversation.TurnResponse
	AudioBase64 string `json:"audio_base64"`
	Format      string `json:"format"`
}

// Transcribe handles POST /api/voice/transcribe.
func (h *Handler) Transcribe(w http.ResponseWriter, r *http.Request) {
	audio, cleanup, ok := h.readAudio(w, r)
	if !ok {
		return
	}
	defer cleanup()

	transcript, err := h.transcriber.Transcribe(r.Context(), audio)
	if err != nil {
		h.logger.Error("transcription failed", "error", err)
		h.writeError(w, http.StatusBadGateway, fmt.Sprintf("Transcription error: %v", err))
		return
	}
	h.writeJSON(w, http.StatusOK, transcript)
}

// Speak handles POST /api/voice/speak.
func (h *Handler) Speak(w http.ResponseWriter, r *http.Request) {
	var req speakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		text = strings.TrimSpace(req.AssistantText)
	}
	if text == "" {
		h.writeError(w, http.StatusBadRequest, "Missing 'text' in request body.")
		return
	}

	audio, err := h.synthesizer.Synthesize(r.Context(), text)
	if err != nil {
		h.logger.Error("speech synthesis failed", "error", err)
		h.writeError(w, http.StatusBadGateway, fmt.Sprintf("TTS error: %v", err))
		return
	}
	h.writeJSON(w, http.StatusOK, speakResponse{
		AudioBase64: base64.StdEncoding.EncodeToString(audio),
		Format:      "mp3",
		Text:        text,
	})
}

// Full handles POST /api/voice/full: transcription, one turn, then synthesis
// of the reply.
func (h *Handler) Full(w http.ResponseWriter, r *http.Request) {
	audio, cleanup, ok := h.readAudio(w, r)
	if !ok {
		return
	}
	defer cleanup()

	transcript, err := h.transcriber.Transcribe(r.Context(), audio)
	if err != nil {
		h.logger.Error("transcription failed in full pipeline", "error", err)
		h.writeError(w, http.StatusBadGateway, fmt.Sprintf("Transcription error: %v", err))
		return
	}

	// Synthesis runs before the turn is stored so a TTS failure leaves no
	// turn behind and the client can retry.
	var speech []byte
	var synthErr error
	turn, err := h.responder.Respond(r.Context(), conversation.RespondRequest{
		UserID:    identity.UserID(r.Context()),
		SessionID: r.FormValue("session_id"),
		CaseID:    r.FormValue("case_id"),
		Utterance: transcript.Text,
		BeforeCommit: func(ctx context.Context, d conversation.Decision) error {
			if strings.TrimSpace(d.SpeechOutput) == "" {
				return nil
			}
			speech, synthErr = h.synthesizer.Synthesize(ctx, d.SpeechOutput)
			return synthErr
		},
	})
	if synthErr != nil {
		h.logger.Error("speech synthesis failed in full pipeline", "error", synthErr)
		h.writeError(w, http.StatusBadGateway, fmt.Sprintf("TTS error: %v", synthErr))
		return
	}
	if err != nil {
		status := conversation.StatusForError(err)
		h.logger.Error("turn failed in full pipeline", "error", err, "status", status)
		h.writeError(w, status, err.Error())
		return
	}

	resp := fullResponse{Transcript: transcript.Text, TurnResponse: turn, Format: "mp3"}
	if len(speech) > 0 {
		resp.AudioBase64 = base64.StdEncoding.EncodeToString(speech)
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// readAudio pulls the "audio" part from a multipart request, writing a 400
// when it is missing.
func (h *Handler) readAudio(w http.ResponseWriter, r *http.Request) (Audio, func(), bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		h.writeError(w, http.StatusBadRequest, "invalid multipart body")
		return Audio{}, nil, false
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Missing 'audio' file in request.")
		return Audio{}, nil, false
	}
	audio := Audio{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Reader:      file,
	}
	return audio, func() { _ = file.Close() }, true
}

func (h *Handler) writeError(w http.ResponseWriter, status int, detail string) {
	h.writeJSON(w, status, map[string]string{"detail": detail})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
