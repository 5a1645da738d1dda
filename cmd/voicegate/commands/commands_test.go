package commands

import (
	"path/filepath"
	"slices"
	"testing"

	"github.com/haivivi/voicegate/pkg/cli"
)

func TestOutputPath(t *testing.T) {
	tests := []struct {
		out       string
		format    string
		isDefault bool
		want      string
	}{
		{"out.wav", "riff-16khz-16bit-mono-pcm", true, "out.wav"},
		{"out.wav", "raw-16khz-16bit-mono-pcm", true, "out.bin"},
		{"out.wav", "audio-16khz-32kbitrate-mono-mp3", true, "out.bin"},
		{"speech.mp3", "audio-16khz-32kbitrate-mono-mp3", false, "speech.mp3"},
	}
	for _, tt := range tests {
		if got := outputPath(tt.out, tt.format, tt.isDefault); got != tt.want {
			t.Errorf("outputPath(%q, %q, %v) = %q, want %q", tt.out, tt.format, tt.isDefault, got, tt.want)
		}
	}
	if got := numbered("demo/out.wav", 3); got != "demo/out_03.wav" {
		t.Errorf("numbered = %q", got)
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" жоқ, Алмаз сабақта жоқ ,,")
	if want := []string{"жоқ", "Алмаз сабақта жоқ"}; !slices.Equal(got, want) {
		t.Errorf("splitList = %q, want %q", got, want)
	}
}

func TestCurrentContext(t *testing.T) {
	configPath = filepath.Join(t.TempDir(), "config.yaml")
	t.Cleanup(func() { configPath, contextName, serverURL, apiKey = "", "", "", "" })

	c, err := currentContext()
	if err != nil {
		t.Fatal(err)
	}
	if c.Server != "http://localhost:8000" {
		t.Errorf("default server = %q", c.Server)
	}

	cfg, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.SetContext(&cli.Context{Name: "school", Server: "https://speech.example.kz", APIKey: "k1", Language: "kk-KZ"}); err != nil {
		t.Fatal(err)
	}

	apiKey = "override"
	c, err = currentContext()
	if err != nil {
		t.Fatal(err)
	}
	if c.Server != "https://speech.example.kz" || c.APIKey != "override" || c.Language != "kk-KZ" {
		t.Errorf("context = %+v", c)
	}
	again, _ := loadConfig()
	if again.Contexts["school"].APIKey != "k1" {
		t.Error("flag override leaked into the saved context")
	}

	contextName = "missing"
	if _, err := currentContext(); err == nil {
		t.Error("unknown context resolved")
	}
}
