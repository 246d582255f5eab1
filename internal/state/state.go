// Package state holds the per-session flags. A State is a value; every change
// goes through Apply so the cross-flag rules hold after each transition.
package state

const DefaultVoice = "en"

type State struct {
	Model string

	Listen       bool // voice input instead of typed input
	Leap         bool // skip spoken replies
	Latex        bool
	Llava        bool
	Splice       bool
	AutoSpeech   bool // a recording is armed
	Chunk        bool // cut the running recording
	AutoCommands bool

	VoiceName  string
	SaveName   string
	LoadName   string
	TensorName string
}

// Default is the state a session starts in: typed input, no spoken replies.
func Default(model string) State {
	return State{
		Model:     model,
		Leap:      true,
		VoiceName: DefaultVoice,
	}
}

type Transition func(State) State

// Apply runs ts in order and normalizes the result.
func Apply(s State, ts ...Transition) State {
	for _, t := range ts {
		if t == nil {
			continue
		}
		s = normalize(t(s))
	}
	return s
}

func normalize(s State) State {
	if s.Chunk {
		s.AutoSpeech = true
	}
	if !s.Listen {
		s.AutoSpeech = false
		s.Chunk = false
	}
	return s
}

func SetListen(on bool) Transition {
	return func(s State) State { s.Listen = on; return s }
}

func SetLeap(on bool) Transition {
	return func(s State) State { s.Leap = on; return s }
}

// SetSpeech switches both directions at once: voice in and spoken replies out.
func SetSpeech(on bool) Transition {
	return func(s State) State {
		s.Listen = on
		s.Leap = !on
		return s
	}
}

func SetLatex(on bool) Transition {
	return func(s State) State { s.Latex = on; return s }
}

func SetLlava(on bool) Transition {
	return func(s State) State { s.Llava = on; return s }
}

func SetSplice(on bool) Transition {
	return func(s State) State { s.Splice = on; return s }
}

func SetAutoSpeech(on bool) Transition {
	return func(s State) State {
		s.AutoSpeech = on
		if !on {
			s.Chunk = false
		}
		return s
	}
}

func SetChunk(on bool) Transition {
	return func(s State) State { s.Chunk = on; return s }
}

func SetAutoCommands(on bool) Transition {
	return func(s State) State { s.AutoCommands = on; return s }
}

func SetModel(name string) Transition {
	return func(s State) State { s.Model = name; return s }
}

func SetVoice(name string) Transition {
	return func(s State) State {
		if name != "" {
			s.VoiceName = name
		}
		return s
	}
}

// Captured names from one normalized input line. A nil pointer means the
// pattern did not match on that line.
type Captures struct {
	Voice  *string
	Save   *string
	Load   *string
	Tensor *string
}

// WithCaptures copies names found on the current line into the state. Save
// and load names are cleared when their pattern did not match; voice and
// tensor names keep their previous value.
func WithCaptures(c Captures) Transition {
	return func(s State) State {
		if c.Voice != nil {
			s.VoiceName = *c.Voice
		}
		if c.Tensor != nil {
			s.TensorName = *c.Tensor
		}
		s.SaveName = deref(c.Save)
		s.LoadName = deref(c.Load)
		return s
	}
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
