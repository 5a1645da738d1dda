package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/haivivi/voicegate/pkg/doubaospeech"
	"github.com/haivivi/voicegate/pkg/intent"
	"github.com/haivivi/voicegate/pkg/kv"
	"github.com/haivivi/voicegate/pkg/recognizer"
	"github.com/haivivi/voicegate/pkg/server"
	"github.com/haivivi/voicegate/pkg/speech"
	"github.com/haivivi/voicegate/pkg/storage"
	"github.com/haivivi/voicegate/pkg/transcript"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the speech gateway",
	Long: `Run the speech gateway.

Every flag can also be set in the environment, with dashes replaced by
underscores and upper-cased (--api-key becomes API_KEY), or in a
voicegate.yaml file in the working directory.

Engines:
  doubao  Doubao streaming ASR and TTS (needs DOUBAO_APP_ID and DOUBAO_TOKEN)
  echo    offline engine reporting audio sizes, with beep synthesis

Transcripts are kept in Badger under --data-dir (in memory when empty).
Session audio is archived as WAV to --archive-dir or an S3 bucket.`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("addr", ":8000", "listen address")
	f.String("api-key", "", "shared secret clients must present")
	f.String("engine", "doubao", "recognition engine: doubao or echo")
	f.String("default-language", "ru-RU", "language used when a request names none")
	f.String("profile", "", "default recognition profile (endpoint id)")
	f.Int("end-silence-timeout-ms", int(recognizer.DefaultEndSilence/time.Millisecond), "end-of-speech silence")
	f.Int("initial-silence-timeout-ms", int(recognizer.DefaultInitialSilence/time.Millisecond), "silence allowed before speech")
	f.String("phrases", "", "comma-separated phrase hints (default: built-in attendance phrases)")

	f.String("doubao-app-id", "", "Doubao application id")
	f.String("doubao-token", "", "Doubao access token")
	f.String("doubao-cluster", "volcano_tts", "Doubao TTS cluster")
	f.String("tts-voice", "", "Doubao voice used for the default voice name")

	f.String("intent-provider", "openai", "intent classifier: openai, gemini or none")
	f.String("intent-model", "gpt-4o-mini", "intent model (a request deployment overrides it)")
	f.String("intent-catalog", "", "YAML intent catalog (default: built-in classroom catalog)")
	f.String("openai-api-key", "", "OpenAI API key")
	f.String("openai-base-url", "", "OpenAI-compatible base URL")
	f.String("gemini-api-key", "", "Gemini API key")

	f.String("data-dir", "", "Badger directory for transcripts (empty keeps them in memory)")
	f.Duration("transcript-ttl", 0, "transcript retention (0 keeps them)")
	f.String("archive-dir", "", "directory for session WAV archives")
	f.String("archive-s3-bucket", "", "S3 bucket for session WAV archives")
	f.String("archive-s3-prefix", "voicegate/", "S3 key prefix")
	f.String("archive-s3-region", "", "S3 region")
	f.String("archive-s3-endpoint", "", "S3-compatible endpoint URL")
	f.String("aws-access-key-id", "", "S3 access key")
	f.String("aws-secret-access-key", "", "S3 secret key")
}

func serveConfig(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName("voicegate")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read voicegate.yaml: %w", err)
		}
	}
	return v, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	v, err := serveConfig(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := server.Config{
		APIKey:         v.GetString("api-key"),
		Language:       v.GetString("default-language"),
		Profile:        v.GetString("profile"),
		EndSilence:     time.Duration(v.GetInt("end-silence-timeout-ms")) * time.Millisecond,
		InitialSilence: time.Duration(v.GetInt("initial-silence-timeout-ms")) * time.Millisecond,
		Phrases:        server.DefaultPhrases,
	}
	if p := v.GetString("phrases"); p != "" {
		cfg.Phrases = splitList(p)
	}
	if cfg.APIKey == "" {
		slog.Warn("serve: API_KEY is empty, every request will be rejected")
	}

	var (
		engine recognizer.Engine
		opts   []server.Option
	)
	switch name := v.GetString("engine"); name {
	case "doubao":
		appID, token := v.GetString("doubao-app-id"), v.GetString("doubao-token")
		if appID == "" || token == "" {
			return fmt.Errorf("engine doubao needs --doubao-app-id and --doubao-token")
		}
		c := doubaospeech.NewClient(appID,
			doubaospeech.WithToken(token),
			doubaospeech.WithCluster(v.GetString("doubao-cluster")),
		)
		engine = recognizer.NewDoubao(c)
		opts = append(opts, server.WithSynthesizer(speech.NewDoubao(c, v.GetString("tts-voice"))))
	case "echo":
		engine = &recognizer.Fake{FinalAfter: 50}
		opts = append(opts, server.WithSynthesizer(speech.Tone{}))
	default:
		return fmt.Errorf("unknown engine %q", name)
	}

	classifier, err := newClassifier(ctx, v)
	if err != nil {
		return err
	}
	if classifier != nil {
		opts = append(opts, server.WithClassifier(classifier))
	}

	store, err := kv.OpenBadger(v.GetString("data-dir"), slog.Default())
	if err != nil {
		return err
	}
	defer store.Close()
	opts = append(opts, server.WithTranscripts(transcript.NewLog(store, v.GetDuration("transcript-ttl"))))

	archive, err := newArchive(v)
	if err != nil {
		return err
	}
	if archive != nil {
		opts = append(opts, server.WithArchive(archive))
	}

	return server.New(cfg, engine, opts...).ListenAndServe(ctx, v.GetString("addr"))
}

func newClassifier(ctx context.Context, v *viper.Viper) (intent.Classifier, error) {
	catalog := intent.Classroom
	if path := v.GetString("intent-catalog"); path != "" {
		c, err := intent.LoadCatalog(path)
		if err != nil {
			return nil, err
		}
		catalog = c
	}
	reg := intent.NewRegistry(catalog)
	model := v.GetString("intent-model")

	switch p := v.GetString("intent-provider"); p {
	case "openai":
		key := v.GetString("openai-api-key")
		if key == "" {
			slog.Warn("serve: OPENAI_API_KEY is empty, intent classification disabled")
			return nil, nil
		}
		return intent.NewOpenAI(key, v.GetString("openai-base-url"), model, reg), nil
	case "gemini":
		key := v.GetString("gemini-api-key")
		if key == "" {
			slog.Warn("serve: GEMINI_API_KEY is empty, intent classification disabled")
			return nil, nil
		}
		if !v.IsSet("intent-model") {
			model = "gemini-2.5-flash"
		}
		return intent.NewGemini(ctx, key, model, reg)
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown intent provider %q", p)
	}
}

func newArchive(v *viper.Viper) (storage.Archive, error) {
	if bucket := v.GetString("archive-s3-bucket"); bucket != "" {
		return storage.NewS3(storage.S3Config{
			Bucket:    bucket,
			Prefix:    v.GetString("archive-s3-prefix"),
			Region:    v.GetString("archive-s3-region"),
			Endpoint:  v.GetString("archive-s3-endpoint"),
			AccessKey: v.GetString("aws-access-key-id"),
			SecretKey: v.GetString("aws-secret-access-key"),
		})
	}
	if dir := v.GetString("archive-dir"); dir != "" {
		return storage.NewLocal(dir)
	}
	return nil, nil
}

func splitList(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
