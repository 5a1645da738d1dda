package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/haivivi/voicegate/pkg/audio/pcm"
	"github.com/haivivi/voicegate/pkg/audio/resampler"
	"github.com/haivivi/voicegate/pkg/intent"
	"github.com/haivivi/voicegate/pkg/recognizer"
	"github.com/haivivi/voicegate/pkg/speech"
	"github.com/haivivi/voicegate/pkg/transcript"
)

const maxUpload = 32 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("server: encode response", "err", err)
	}
}

// writeError writes {"detail": msg}.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	return dec.Decode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type recognizeResponse struct {
	Text string          `json:"text"`
	Raw  json.RawMessage `json:"raw"`
}

// handleRecognize recognizes one utterance from an uploaded WAV file.
func (s *Server) handleRecognize(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "expected multipart form with an 'audio' file")
		return
	}
	f, _, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing 'audio' file")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	wav, err := pcm.DecodeWAV(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if wav.Channels < 1 || wav.Channels > 2 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported channel count %d", wav.Channels))
		return
	}
	samples, err := resampler.Resample(wav.Data,
		resampler.Format{SampleRate: wav.SampleRate, Stereo: wav.Channels == 2},
		resampler.Mono16K)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q := r.URL.Query()
	cfg := s.cfg.recognizerConfig(q.Get("language"), q.Get("endpoint_id"))
	res, err := s.engine.RecognizeOnce(r.Context(), samples, cfg)
	switch {
	case errors.Is(err, recognizer.ErrNoMatch):
		writeError(w, http.StatusUnprocessableEntity, "No speech recognized")
		return
	case err != nil:
		slog.Warn("server: file recognition failed", "err", err)
		writeError(w, http.StatusBadGateway, "STT canceled: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, recognizeResponse{Text: res.Text, Raw: res.Raw})
}

func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req speech.Request
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "Missing 'text'")
		return
	}
	if s.synthesizer == nil {
		writeError(w, http.StatusInternalServerError, "TTS config missing")
		return
	}
	req = req.Normalize()
	if _, err := speech.LookupFormat(req.Format); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	audio, err := s.synthesizer.Synthesize(r.Context(), req)
	switch {
	case errors.Is(err, speech.ErrUnknownFormat), errors.Is(err, speech.ErrUnsupportedFormat):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		slog.Warn("server: synthesis failed", "voice", req.Voice, "err", err)
		writeError(w, http.StatusBadGateway, "TTS canceled: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", audio.Format.MediaType())
	w.WriteHeader(http.StatusOK)
	w.Write(audio.Data)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req intent.Request
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "Missing 'text'")
		return
	}
	if s.classifier == nil {
		writeError(w, http.StatusInternalServerError, "CLU config missing")
		return
	}
	if req.Locale == "" {
		req.Locale = intent.DefaultLocale
	}
	p, err := s.classifier.Predict(r.Context(), req)
	switch {
	case errors.Is(err, intent.ErrNotConfigured):
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	case err != nil:
		slog.Warn("server: intent prediction failed", "err", err)
		writeError(w, http.StatusBadGateway, "CLU failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type transcriptResponse struct {
	Session *transcript.Summary `json:"session"`
	Records []transcript.Record `json:"records"`
	Text    string              `json:"text"`
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	if s.transcripts == nil {
		writeError(w, http.StatusNotFound, "transcripts are disabled")
		return
	}
	id := chi.URLParam(r, "id")
	sum, err := s.transcripts.Session(r.Context(), id)
	if errors.Is(err, transcript.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	recs, err := s.transcripts.Records(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recs == nil {
		recs = []transcript.Record{}
	}
	writeJSON(w, http.StatusOK, transcriptResponse{Session: sum, Records: recs, Text: transcript.Text(recs)})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.transcripts == nil {
		writeError(w, http.StatusNotFound, "transcripts are disabled")
		return
	}
	all, err := s.transcripts.Sessions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if all == nil {
		all = []transcript.Summary{}
	}
	writeJSON(w, http.StatusOK, all)
}
