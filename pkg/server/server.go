// Package server is the speech gateway: a websocket endpoint that streams
// microphone audio into a recognition session and streams the results back,
// plus request/response endpoints for file recognition, synthesis and intent
// prediction.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/haivivi/voicegate/pkg/audio/pcm"
	"github.com/haivivi/voicegate/pkg/intent"
	"github.com/haivivi/voicegate/pkg/protocol"
	"github.com/haivivi/voicegate/pkg/recognizer"
	"github.com/haivivi/voicegate/pkg/speech"
	"github.com/haivivi/voicegate/pkg/storage"
	"github.com/haivivi/voicegate/pkg/transcript"
)

// DefaultPhrases bias recognition towards classroom attendance commands.
var DefaultPhrases = []string{
	"сабақта жоқ",
	"жоқ",
	"Әлібек сабақта жоқ",
	"Ақмарал сабақта жоқ",
	"Сұлтан сабақта жоқ",
	"Алмаз сабақта жоқ",
}

// Config holds server settings.
type Config struct {
	// APIKey is the shared secret. When empty every request is rejected.
	APIKey string
	// Language is used when a stream or file request names none.
	Language string
	// Profile is the default recognition profile (endpoint id).
	Profile        string
	EndSilence     time.Duration
	InitialSilence time.Duration
	Phrases        []string
	// OutboundQueue bounds the messages waiting for the socket writer.
	OutboundQueue int
	// MaxArchiveBytes caps the audio kept per session for the archive.
	MaxArchiveBytes int
}

func (c Config) withDefaults() Config {
	if c.EndSilence <= 0 {
		c.EndSilence = recognizer.DefaultEndSilence
	}
	if c.InitialSilence <= 0 {
		c.InitialSilence = recognizer.DefaultInitialSilence
	}
	if c.OutboundQueue <= 0 {
		c.OutboundQueue = 256
	}
	if c.MaxArchiveBytes <= 0 {
		c.MaxArchiveBytes = int(pcm.L16Mono16K.BytesInDuration(10 * time.Minute))
	}
	return c
}

// recognizerConfig builds the session configuration for a request. Empty
// arguments fall back to the server defaults.
func (c Config) recognizerConfig(language, profile string) recognizer.Config {
	if language == "" {
		language = c.Language
	}
	if profile == "" {
		profile = c.Profile
	}
	return recognizer.Config{
		Language:       language,
		Profile:        profile,
		EndSilence:     c.EndSilence,
		InitialSilence: c.InitialSilence,
		WordTimestamps: true,
		Phrases:        c.Phrases,
	}.WithDefaults()
}

// Server serves the gateway API.
type Server struct {
	cfg         Config
	engine      recognizer.Engine
	synthesizer speech.Synthesizer
	classifier  intent.Classifier
	transcripts *transcript.Log
	archive     storage.Archive
	upgrader    websocket.Upgrader
}

// Option configures optional collaborators.
type Option func(*Server)

func WithSynthesizer(s speech.Synthesizer) Option { return func(srv *Server) { srv.synthesizer = s } }
func WithClassifier(c intent.Classifier) Option   { return func(srv *Server) { srv.classifier = c } }
func WithTranscripts(l *transcript.Log) Option     { return func(srv *Server) { srv.transcripts = l } }
func WithArchive(a storage.Archive) Option         { return func(srv *Server) { srv.archive = a } }

// New creates a server around a recognition engine.
func New(cfg Config, engine recognizer.Engine, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg.withDefaults(),
		engine: engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	r.Get("/health", s.handleHealth)
	// The stream endpoint authenticates after the upgrade so it can report
	// the failure over the socket.
	r.Get(protocol.Path, s.handleStream)

	r.Group(func(r chi.Router) {
		r.Use(s.requireKey)
		r.Post("/v1/speech/stt", s.handleRecognize)
		r.Post("/v1/speech/tts", s.handleSynthesize)
		r.Post("/v1/clu/predict", s.handlePredict)
		r.Get("/v1/sessions", s.handleSessions)
		r.Get("/v1/sessions/{id}/transcript", s.handleTranscript)
	})
	return r
}

// ListenAndServe serves on addr until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	hs := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- hs.ListenAndServe() }()
	slog.Info("server: listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
