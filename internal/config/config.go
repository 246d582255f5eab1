// Package config loads rollcage settings: defaults, then the YAML file,
// then .env and ROLLCAGE_* variables, then command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"rollcage/internal/logging"
)

type Config struct {
	Ollama     OllamaConfig     `yaml:"ollama"`
	Intent     IntentConfig     `yaml:"intent"`
	Library    LibraryConfig    `yaml:"library"`
	Speech     SpeechConfig     `yaml:"speech"`
	Screenshot ScreenshotConfig `yaml:"screenshot"`
	Latex      CommandConfig    `yaml:"latex"`
	Converter  CommandConfig    `yaml:"converter"`
	Flags      FlagsConfig      `yaml:"flags"`
	IPC        IPCConfig        `yaml:"ipc"`
	Hub        HubConfig        `yaml:"hub"`
	Log        LogConfig        `yaml:"log"`
}

type OllamaConfig struct {
	URL         string `yaml:"url"`
	Model       string `yaml:"model"`
	VisionModel string `yaml:"vision_model"`
	Timeout     string `yaml:"timeout"`
	Proxy       string `yaml:"proxy"` // socks5 host:port, empty for direct
	Binary      string `yaml:"binary"`
}

// IntentConfig points at an OpenAI-compatible endpoint. Empty URL means the
// /v1/ endpoint of the Ollama server.
type IntentConfig struct {
	URL    string `yaml:"url"`
	Model  string `yaml:"model"`
	APIKey string `yaml:"api_key"`
}

// LibraryConfig holds the data directories. Empty entries live under Root.
type LibraryConfig struct {
	Root          string `yaml:"root"`
	Conversations string `yaml:"conversations"`
	Agents        string `yaml:"agents"`
	Models        string `yaml:"models"`
	Llava         string `yaml:"llava"`
	Splice        string `yaml:"splice"`
	Latex         string `yaml:"latex"`
}

type SpeechConfig struct {
	WhisperModel     string  `yaml:"whisper_model"`
	Language         string  `yaml:"language"`
	Threads          int     `yaml:"threads"`
	Voice            string  `yaml:"voice"`
	SilenceThreshold float64 `yaml:"silence_threshold"`
	SilenceDuration  string  `yaml:"silence_duration"`
	MaxDuration      string  `yaml:"max_duration"`
	Cue              string  `yaml:"cue"`
	Notify           bool    `yaml:"notify"`
	Duck             bool    `yaml:"duck"`
	DuckFactor       float64 `yaml:"duck_factor"`
	KeepRecordings   string  `yaml:"keep_recordings"` // directory, empty to discard
}

type ScreenshotConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

type CommandConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// FlagsConfig is the state the loop starts in.
type FlagsConfig struct {
	Listen       bool `yaml:"listen"`
	Leap         bool `yaml:"leap"`
	Latex        bool `yaml:"latex"`
	Llava        bool `yaml:"llava"`
	Splice       bool `yaml:"splice"`
	AutoCommands bool `yaml:"auto_commands"`
}

type IPCConfig struct {
	Socket string `yaml:"socket"`
}

type HubConfig struct {
	URL       string `yaml:"url"`
	Name      string `yaml:"name"`
	Reconnect string `yaml:"reconnect"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func DefaultConfig() *Config {
	return &Config{
		Ollama: OllamaConfig{
			URL:         "http://localhost:11434",
			Model:       "llama3",
			VisionModel: "llava",
			Timeout:     "300s",
			Binary:      "ollama",
		},
		Intent: IntentConfig{
			APIKey: "ollama",
		},
		Library: LibraryConfig{
			Root: defaultDataDir(),
		},
		Speech: SpeechConfig{
			WhisperModel:     "third_party/whisper.cpp/models/ggml-medium.bin",
			Language:         "auto",
			Voice:            "en",
			SilenceThreshold: 0.01,
			SilenceDuration:  "1s",
			MaxDuration:      "30s",
			Notify:           true,
			Duck:             true,
			DuckFactor:       0.3,
		},
		Screenshot: ScreenshotConfig{
			Command: "grim",
		},
		Converter: CommandConfig{
			Command: "python3",
			Args:    []string{"convert_hf_to_gguf.py", "{{.Input}}", "--outfile", "{{.Output}}"},
		},
		Flags: FlagsConfig{
			Leap: true,
		},
		Hub: HubConfig{
			Name:      "rollcage",
			Reconnect: "2s",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultPath is $XDG_CONFIG_HOME/rollcage/config.yaml.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "rollcage.yaml"
	}
	return filepath.Join(dir, "rollcage", "config.yaml")
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "rollcage")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "rollcage-library"
	}
	return filepath.Join(home, ".local", "share", "rollcage")
}

// Load reads path over the defaults and applies the environment. A missing
// file is not an error. envFile, when present, is loaded into the process
// environment first. Call Finish once flags are applied.
func Load(path, envFile string) (*Config, error) {
	cfg := DefaultConfig()

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Finish derives the unset paths and endpoints and validates the result.
func (c *Config) Finish() error {
	c.resolve()
	return c.Validate()
}

func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	c.Ollama.URL = getEnv("ROLLCAGE_OLLAMA_URL", getEnv("OLLAMA_HOST", c.Ollama.URL))
	c.Ollama.Model = getEnv("ROLLCAGE_MODEL", c.Ollama.Model)
	c.Ollama.VisionModel = getEnv("ROLLCAGE_VISION_MODEL", c.Ollama.VisionModel)
	c.Ollama.Proxy = getEnv("ROLLCAGE_PROXY", c.Ollama.Proxy)

	c.Intent.URL = getEnv("ROLLCAGE_INTENT_URL", c.Intent.URL)
	c.Intent.Model = getEnv("ROLLCAGE_INTENT_MODEL", c.Intent.Model)
	c.Intent.APIKey = getEnv("OPENAI_API_KEY", c.Intent.APIKey)

	c.Library.Root = getEnv("ROLLCAGE_LIBRARY", c.Library.Root)
	c.Speech.WhisperModel = getEnv("ROLLCAGE_WHISPER_MODEL", c.Speech.WhisperModel)
	c.Speech.Voice = getEnv("ROLLCAGE_VOICE", c.Speech.Voice)
	c.IPC.Socket = getEnv("ROLLCAGE_SOCKET", c.IPC.Socket)
	c.Hub.URL = getEnv("ROLLCAGE_HUB", c.Hub.URL)
	c.Log.Level = getEnv("ROLLCAGE_LOG", c.Log.Level)

	c.Flags.Listen = getBoolEnv("ROLLCAGE_LISTEN", c.Flags.Listen)
	c.Flags.Leap = getBoolEnv("ROLLCAGE_LEAP", c.Flags.Leap)
}

// resolve fills the library directories left empty and the intent endpoint.
func (c *Config) resolve() {
	lib := &c.Library
	for _, d := range []struct {
		dst  *string
		name string
	}{
		{&lib.Conversations, "conversations"},
		{&lib.Agents, "agents"},
		{&lib.Models, "models"},
		{&lib.Llava, "llava"},
		{&lib.Splice, "splice"},
		{&lib.Latex, "latex"},
	} {
		if *d.dst == "" {
			*d.dst = filepath.Join(lib.Root, d.name)
		}
	}

	if c.Ollama.URL != "" && !strings.Contains(c.Ollama.URL, "://") {
		c.Ollama.URL = "http://" + c.Ollama.URL
	}
	if c.Intent.URL == "" {
		c.Intent.URL = strings.TrimRight(c.Ollama.URL, "/") + "/v1/"
	}
	if c.Intent.Model == "" {
		c.Intent.Model = c.Ollama.Model
	}
}

func (c *Config) Validate() error {
	if c.Ollama.URL == "" {
		return fmt.Errorf("ollama.url must be set")
	}
	if c.Ollama.Model == "" {
		return fmt.Errorf("ollama.model must be set")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Speech.DuckFactor < 0 || c.Speech.DuckFactor > 1 {
		return fmt.Errorf("speech.duck_factor %v out of range [0, 1]", c.Speech.DuckFactor)
	}
	for name, s := range map[string]string{
		"ollama.timeout":          c.Ollama.Timeout,
		"speech.silence_duration": c.Speech.SilenceDuration,
		"speech.max_duration":     c.Speech.MaxDuration,
		"hub.reconnect":           c.Hub.Reconnect,
	} {
		if s == "" {
			continue
		}
		if _, err := time.ParseDuration(s); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// Duration parses s, falling back to def when empty or malformed.
func Duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
