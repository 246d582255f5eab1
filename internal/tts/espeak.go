// Package tts speaks replies through espeak-ng.
package tts

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <string.h>
#include <espeak-ng/speak_lib.h>

static int
espeak_say(const char *text, const char *voice, int rate)
{
	if (!text || !voice)
	{ return -1; }

	if (espeak_Initialize(AUDIO_OUTPUT_SYNCH_PLAYBACK, 500, NULL, 0) < 0)
	{ return -2; }

	if (espeak_SetVoiceByName(voice) != EE_OK)
	{
		espeak_VOICE specs;
		memset(&specs, 0, sizeof(specs));
		specs.languages = voice;
		if (espeak_SetVoiceByProperties(&specs) != EE_OK)
		{
			espeak_Terminate();
			return -3;
		}
	}
	if (rate > 0)
	{ espeak_SetParameter(espeakRATE, rate, 0); }

	espeak_Synth(text, strlen(text) + 1, 0, POS_CHARACTER, 0, espeakCHARS_AUTO, NULL, NULL);
	espeak_Synchronize();
	espeak_Terminate();

	return 0;
}
*/
import "C"

import (
	"context"
	"fmt"
	"sync"
	"unsafe"
)

// Espeak serializes playback; espeak-ng keeps global state.
type Espeak struct {
	mu   sync.Mutex
	rate int // words per minute, 0 = espeak default
}

func NewEspeak(rate int) *Espeak {
	return &Espeak{rate: rate}
}

// Speak says text with the named voice (espeak voice name or language).
func (e *Espeak) Speak(text, voice string) error {
	if text == "" {
		return nil
	}
	if voice == "" {
		voice = "en"
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))
	cvoice := C.CString(voice)
	defer C.free(unsafe.Pointer(cvoice))

	rc := C.espeak_say(ctext, cvoice, C.int(e.rate))
	if rc != 0 {
		return fmt.Errorf("espeak_say failed: %d", int(rc))
	}
	return nil
}

// SpeakSentences says text one sentence at a time so ctx can stop a long
// reply between sentences.
func (e *Espeak) SpeakSentences(ctx context.Context, text, voice string) error {
	for _, s := range SplitSentences(text) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.Speak(s, voice); err != nil {
			return err
		}
	}
	return nil
}
