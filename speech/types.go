// Package speech provides the TTS and STT provider contracts and the
// Google Cloud implementations used for discussion audio.
package speech

import (
	"context"
	"time"

	"github.com/hitolab/gdflow/types"
)

// TTSRequest is one synthesis call. Voice settings come from the
// speaking participant's profile.
type TTSRequest struct {
	Text     string             `json:"text"`
	Language string             `json:"language,omitempty"`
	Voice    types.VoiceProfile `json:"voice"`
}

// TTSResponse carries synthesized audio. Audio is LINEAR16 PCM at the
// provider's sample rate unless Format says otherwise.
type TTSResponse struct {
	Provider   string        `json:"provider"`
	Audio      []byte        `json:"-"`
	Format     string        `json:"format"`
	SampleRate int           `json:"sample_rate"`
	CharCount  int           `json:"char_count,omitempty"`
	Latency    time.Duration `json:"latency,omitempty"`
}

// TTSProvider converts text to speech. Implementations must be safe
// for concurrent use; the synthesis pipeline runs several calls at
// once.
type TTSProvider interface {
	Synthesize(ctx context.Context, req *TTSRequest) (*TTSResponse, error)
	Name() string
}

// STTRequest is one recognition call over a finished speech segment.
type STTRequest struct {
	Audio      []byte `json:"-"`
	SampleRate int    `json:"sample_rate"`
	Language   string `json:"language,omitempty"`
}

// STTResponse is the recognized text.
type STTResponse struct {
	Provider   string  `json:"provider"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence,omitempty"`
}

// STTProvider converts speech to text.
type STTProvider interface {
	Transcribe(ctx context.Context, req *STTRequest) (*STTResponse, error)
	Name() string
}
