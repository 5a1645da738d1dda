package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/goccy/go-yaml"
)

const (
	// DefaultBaseDir is created under the user's home directory.
	DefaultBaseDir    = ".voicegate"
	DefaultConfigFile = "config.yaml"
)

// ErrNoContext is returned when no context is selected.
var ErrNoContext = errors.New("cli: no current context (run `voicegate config use-context`)")

// Config is the client configuration file.
type Config struct {
	CurrentContext string              `json:"current_context,omitempty" yaml:"current_context,omitempty"`
	Contexts       map[string]*Context `json:"contexts,omitempty" yaml:"contexts,omitempty"`

	path string
}

// Context is one gateway server and the client settings used with it.
type Context struct {
	Name string `json:"name" yaml:"name"`
	// Server is the gateway base URL, e.g. http://localhost:8000.
	Server    string `json:"server" yaml:"server"`
	APIKey    string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Language  string `json:"language,omitempty" yaml:"language,omitempty"`
	Normalize bool   `json:"normalize,omitempty" yaml:"normalize,omitempty"`

	Voice  string `json:"voice,omitempty" yaml:"voice,omitempty"`
	Format string `json:"format,omitempty" yaml:"format,omitempty"`

	Locale     string `json:"locale,omitempty" yaml:"locale,omitempty"`
	Project    string `json:"project,omitempty" yaml:"project,omitempty"`
	Deployment string `json:"deployment,omitempty" yaml:"deployment,omitempty"`

	Wakeword *Wakeword `json:"wakeword,omitempty" yaml:"wakeword,omitempty"`
}

// Wakeword configures the listen command's detector.
type Wakeword struct {
	AccessKey   string   `json:"access_key,omitempty" yaml:"access_key,omitempty"`
	Keywords    []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	BuiltIn     []string `json:"builtin,omitempty" yaml:"builtin,omitempty"`
	Sensitivity float32  `json:"sensitivity,omitempty" yaml:"sensitivity,omitempty"`
}

// DefaultConfigPath returns ~/.voicegate/config.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cli: home directory: %w", err)
	}
	return filepath.Join(home, DefaultBaseDir, DefaultConfigFile), nil
}

// LoadConfig reads the config at path, or the default path when empty. A
// missing file yields an empty config.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	cfg := &Config{Contexts: map[string]*Context{}, path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cli: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cli: parse %s: %w", path, err)
	}
	if cfg.Contexts == nil {
		cfg.Contexts = map[string]*Context{}
	}
	for name, c := range cfg.Contexts {
		c.Name = name
	}
	cfg.path = path
	return cfg, nil
}

// Path returns the file the config is saved to.
func (c *Config) Path() string { return c.path }

// Save writes the config with owner-only permissions; it holds secrets.
func (c *Config) Save() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("cli: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("cli: marshal config: %w", err)
	}
	return os.WriteFile(c.path, data, 0o600)
}

// SetContext adds or replaces a context. The first context becomes current.
func (c *Config) SetContext(ctx *Context) error {
	if ctx.Name == "" {
		return errors.New("cli: context needs a name")
	}
	if ctx.Server == "" {
		return fmt.Errorf("cli: context %q needs a server", ctx.Name)
	}
	c.Contexts[ctx.Name] = ctx
	if c.CurrentContext == "" {
		c.CurrentContext = ctx.Name
	}
	return c.Save()
}

func (c *Config) DeleteContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("cli: context %q not found", name)
	}
	delete(c.Contexts, name)
	if c.CurrentContext == name {
		c.CurrentContext = ""
	}
	return c.Save()
}

func (c *Config) UseContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("cli: context %q not found", name)
	}
	c.CurrentContext = name
	return c.Save()
}

// Resolve returns the named context, or the current one when name is empty.
func (c *Config) Resolve(name string) (*Context, error) {
	if name == "" {
		if c.CurrentContext == "" {
			return nil, ErrNoContext
		}
		name = c.CurrentContext
	}
	ctx, ok := c.Contexts[name]
	if !ok {
		return nil, fmt.Errorf("cli: context %q not found", name)
	}
	return ctx, nil
}

// Names lists context names in sorted order.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Contexts))
	for n := range c.Contexts {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// StreamURL returns the websocket URL of the streaming endpoint.
func (ctx *Context) StreamURL(path string) (string, error) {
	s := strings.TrimRight(ctx.Server, "/")
	switch {
	case strings.HasPrefix(s, "http://"):
		s = "ws://" + strings.TrimPrefix(s, "http://")
	case strings.HasPrefix(s, "https://"):
		s = "wss://" + strings.TrimPrefix(s, "https://")
	case strings.HasPrefix(s, "ws://"), strings.HasPrefix(s, "wss://"):
	default:
		return "", fmt.Errorf("cli: server %q must be an http(s) or ws(s) URL", ctx.Server)
	}
	return s + path, nil
}

// MaskAPIKey hides all but the ends of a key.
func MaskAPIKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
