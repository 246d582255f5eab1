package audio

import (
	"context"
	"math"
	"time"

	"github.com/gordonklaus/portaudio"

	rcerrors "rollcage/internal/errors"
)

const SampleRate = 16000

// VAD tunes the silence detector used by RecordAuto.
type VAD struct {
	FrameSize int           // samples per read, 320 = 20ms
	Threshold float64       // frame RMS above this counts as speech
	Silence   time.Duration // trailing silence that ends an utterance
	Max       time.Duration // hard cap on one recording
}

func DefaultVAD() VAD {
	return VAD{
		FrameSize: 320,
		Threshold: 0.015,
		Silence:   600 * time.Millisecond,
		Max:       10 * time.Second,
	}
}

type Recorder struct {
	vad VAD
}

func NewRecorder(vad VAD) *Recorder {
	def := DefaultVAD()
	if vad.FrameSize <= 0 {
		vad.FrameSize = def.FrameSize
	}
	if vad.Threshold <= 0 {
		vad.Threshold = def.Threshold
	}
	if vad.Silence <= 0 {
		vad.Silence = def.Silence
	}
	if vad.Max <= 0 {
		vad.Max = def.Max
	}
	return &Recorder{vad: vad}
}

func (r *Recorder) Init() error {
	return portaudio.Initialize()
}

func (r *Recorder) Close() {
	portaudio.Terminate()
}

// RecordAuto captures one utterance: it starts keeping audio at the first
// loud frame and ends after the configured trailing silence, when stop is
// closed, or at the length cap.
func (r *Recorder) RecordAuto(ctx context.Context, stop <-chan struct{}) ([]float32, error) {
	return r.capture(ctx, stop, newSegmenter(r.vad, true))
}

// RecordUntil keeps everything until stop is closed or the length cap; used
// for chunked dictation where pauses must not end the take.
func (r *Recorder) RecordUntil(ctx context.Context, stop <-chan struct{}) ([]float32, error) {
	return r.capture(ctx, stop, newSegmenter(r.vad, false))
}

func (r *Recorder) capture(ctx context.Context, stop <-chan struct{}, seg *segmenter) ([]float32, error) {
	buf := make([]float32, r.vad.FrameSize)

	stream, err := portaudio.OpenDefaultStream(1, 0, SampleRate, len(buf), buf)
	if err != nil {
		return nil, rcerrors.NewSpeechError("open stream", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, rcerrors.NewSpeechError("start stream", err)
	}
	defer stream.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-stop:
			break loop
		default:
		}

		if err := stream.Read(); err != nil {
			return nil, rcerrors.NewSpeechError("read stream", err)
		}
		if seg.push(buf) {
			break loop
		}
	}

	pcm := seg.samples()
	if len(pcm) == 0 {
		return nil, rcerrors.NewSpeechError("record", rcerrors.ErrNoSpeech)
	}
	return pcm, nil
}

// segmenter decides which frames belong to the recording.
type segmenter struct {
	vad       VAD
	useVAD    bool
	speaking  bool
	silent    time.Duration
	elapsed   time.Duration
	frameTime time.Duration
	out       []float32
}

func newSegmenter(vad VAD, useVAD bool) *segmenter {
	return &segmenter{
		vad:       vad,
		useVAD:    useVAD,
		frameTime: time.Duration(vad.FrameSize) * time.Second / SampleRate,
		out:       make([]float32, 0, SampleRate*3),
	}
}

// push consumes one frame and reports whether the recording is complete.
func (s *segmenter) push(frame []float32) bool {
	s.elapsed += s.frameTime

	switch {
	case !s.useVAD:
		s.out = append(s.out, frame...)
	case frameRMS(frame) > s.vad.Threshold:
		s.speaking = true
		s.silent = 0
		s.out = append(s.out, frame...)
	case s.speaking:
		s.silent += s.frameTime
		if s.silent >= s.vad.Silence {
			return true
		}
		s.out = append(s.out, frame...)
	}

	return s.elapsed >= s.vad.Max
}

func (s *segmenter) samples() []float32 {
	return s.out
}

func frameRMS(f []float32) float64 {
	if len(f) == 0 {
		return 0
	}
	var s float64
	for _, x := range f {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(f)))
}
