package httpapi

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/mbtivoice/internal/audio"
	"github.com/ent0n29/mbtivoice/internal/chat"
	"github.com/ent0n29/mbtivoice/internal/protocol"
	"github.com/ent0n29/mbtivoice/internal/voice"
)

const maxAudioUploadBytes = 16 << 20

type textTurnRequest struct {
	Text string `json:"text"`
	protocol.TurnOptions
}

func (s *Server) handleTextTurn(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req textTurnRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	turn := turnRequest(req.TurnOptions)
	turn.Text = req.Text

	res, err := s.turns.Submit(r.Context(), id, turn, nil)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// handleAudioTurn accepts a multipart "audio" field or a raw audio body.
func (s *Server) handleAudioTurn(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioUploadBytes)

	data, opts, err := readAudioUpload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "audio_too_large", err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_audio_upload", err.Error())
		return
	}

	turn := turnRequest(opts)
	turn.Audio = audio.BytesInput{Data: data}
	res, err := s.turns.Submit(r.Context(), id, turn, nil)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func readAudioUpload(r *http.Request) ([]byte, protocol.TurnOptions, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch {
	case mediaType == "multipart/form-data":
		if err := r.ParseMultipartForm(maxAudioUploadBytes); err != nil {
			return nil, protocol.TurnOptions{}, err
		}
		file, _, err := r.FormFile("audio")
		if err != nil {
			return nil, protocol.TurnOptions{}, fmt.Errorf("missing audio field: %w", err)
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, protocol.TurnOptions{}, err
		}
		return data, optionsFromForm(r), nil
	case strings.HasPrefix(mediaType, "audio/"), mediaType == "application/octet-stream", mediaType == "":
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, protocol.TurnOptions{}, err
		}
		return data, optionsFromForm(r), nil
	default:
		return nil, protocol.TurnOptions{}, fmt.Errorf("unsupported content type %q", mediaType)
	}
}

// optionsFromForm reads turn options from the multipart form or the query string.
func optionsFromForm(r *http.Request) protocol.TurnOptions {
	get := func(key string) string {
		if r.MultipartForm != nil {
			if v := r.MultipartForm.Value[key]; len(v) > 0 {
				return strings.TrimSpace(v[0])
			}
		}
		return strings.TrimSpace(r.URL.Query().Get(key))
	}
	return protocol.TurnOptions{
		LoraPath:     get("lora_path"),
		PromptChoice: get("prompt_choice"),
		FormatChoice: get("promptFormat_choice"),
		TTSStyle:     get("tts_style"),
		Language:     get("language"),
	}
}

func turnRequest(opts protocol.TurnOptions) voice.TurnRequest {
	return voice.TurnRequest{
		Persona: chat.Persona{
			LoraPath:     opts.LoraPath,
			PromptChoice: opts.PromptChoice,
			FormatChoice: opts.FormatChoice,
		},
		Style:    opts.TTSStyle,
		Language: opts.Language,
	}
}

func audioTurnRequest(msg protocol.TurnAudio) (voice.TurnRequest, error) {
	turn := turnRequest(msg.TurnOptions)
	if msg.AudioBase64 != "" {
		data, err := base64.StdEncoding.DecodeString(msg.AudioBase64)
		if err != nil {
			return voice.TurnRequest{}, fmt.Errorf("decode audio_base64: %w", err)
		}
		turn.Audio = audio.BytesInput{Data: data}
		return turn, nil
	}
	raw, err := base64.StdEncoding.DecodeString(msg.PCM16Base64)
	if err != nil {
		return voice.TurnRequest{}, fmt.Errorf("decode pcm16_base64: %w", err)
	}
	if len(raw)%2 != 0 {
		return voice.TurnRequest{}, fmt.Errorf("pcm16_base64 has odd length %d", len(raw))
	}
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[2*i:]))
	}
	turn.Audio = audio.SampledInput{SampleRate: msg.SampleRate, Channels: msg.Channels, Samples: samples}
	return turn, nil
}
