package config

import (
	"github.com/spf13/pflag"
)

// AddFlags registers the command-line overrides on fs. Defaults are left
// empty so only flags the user set win over the file and environment.
func AddFlags(fs *pflag.FlagSet) {
	fs.StringP("model", "m", "", "Agent (Ollama model) to chat with")
	fs.String("vision-model", "", "Vision model used with /llava flow")
	fs.StringP("ollama", "u", "", "Ollama server URL")
	fs.StringP("proxy", "p", "", "Socks proxy address for the Ollama client")
	fs.String("library", "", "Library root for conversations, agents and captures")
	fs.String("whisper-model", "", "Path to the whisper ggml model")
	fs.String("voice", "", "espeak-ng voice name")
	fs.String("socket", "", "Hotkey control socket path")
	fs.String("hub", "", "Websocket hub URL (empty to disable)")
	fs.StringP("log", "l", "", "Log level (debug, info, warn, error)")
	fs.Bool("listen", false, "Start with voice input")
	fs.Bool("speak", false, "Start with spoken replies")
}

// ApplyFlags copies every flag the user changed into c.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	strs := map[string]*string{
		"model":         &c.Ollama.Model,
		"vision-model":  &c.Ollama.VisionModel,
		"ollama":        &c.Ollama.URL,
		"proxy":         &c.Ollama.Proxy,
		"library":       &c.Library.Root,
		"whisper-model": &c.Speech.WhisperModel,
		"voice":         &c.Speech.Voice,
		"socket":        &c.IPC.Socket,
		"hub":           &c.Hub.URL,
		"log":           &c.Log.Level,
	}
	for name, dst := range strs {
		if fs.Lookup(name) == nil || !fs.Changed(name) {
			continue
		}
		v, err := fs.GetString(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	if fs.Lookup("listen") != nil && fs.Changed("listen") {
		v, err := fs.GetBool("listen")
		if err != nil {
			return err
		}
		c.Flags.Listen = v
	}
	if fs.Lookup("speak") != nil && fs.Changed("speak") {
		v, err := fs.GetBool("speak")
		if err != nil {
			return err
		}
		c.Flags.Leap = !v
	}
	return nil
}
